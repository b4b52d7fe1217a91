package engine

import (
	cache "github.com/patrickmn/go-cache"

	"server/internal/infra"
)

// RequiredKeys enumerates the configuration keys each variant demands at
// construction time. Missing keys fail with a ConfigError naming the key.
var RequiredKeys = map[EngineType][]string{
	EngineReplicate:     {KeyAPIToken},
	EngineFluxWorking:   {KeyAPIToken},
	EngineStateOfTheArt: {KeyAPIToken},
	EngineHFInference:   {KeyAPIToken},
	EngineLocalSDXL:     {KeyModelPath},
	EngineStandalone:    {},
}

// Factory builds configured engine instances. Construction itself is a pure
// mapping from tag plus config; CachedEngine additionally memoizes
// instances per tag so expensive backends (the local pipeline in
// particular) are built once per process.
type Factory struct {
	logger    *infra.Logger
	instances *cache.Cache
}

// NewFactory returns a factory with an unbounded, non-expiring instance
// cache.
func NewFactory(logger *infra.Logger) *Factory {
	return &Factory{
		logger:    ensureLogger(logger),
		instances: cache.New(cache.NoExpiration, 0),
	}
}

// CreateEngine validates cfg for the requested variant and constructs a
// fresh instance. Unknown tags fail with UnsupportedEngineError;
// construction never partially succeeds.
func (f *Factory) CreateEngine(t EngineType, cfg Config) (Engine, error) {
	if cfg == nil {
		cfg = Config{}
	}
	switch t {
	case EngineReplicate, EngineFluxWorking, EngineStateOfTheArt:
		return NewReplicateEngine(t, cfg, f.logger)
	case EngineHFInference:
		return NewHFInferenceEngine(cfg, f.logger)
	case EngineLocalSDXL:
		return NewLocalSDXLEngine(cfg, f.logger)
	case EngineStandalone:
		return NewProceduralEngine(cfg, f.logger), nil
	default:
		return nil, &UnsupportedEngineError{Type: t}
	}
}

// Register seeds the instance cache with a pre-built engine for the tag,
// replacing any existing instance.
func (f *Factory) Register(t EngineType, eng Engine) {
	f.instances.SetDefault(string(t), eng)
}

// CachedEngine returns the process-wide instance for the tag, constructing
// it on first use. Instances are read-mostly after construction and safe to
// share across requests.
func (f *Factory) CachedEngine(t EngineType, cfg Config) (Engine, error) {
	if hit, ok := f.instances.Get(string(t)); ok {
		if eng, ok := hit.(Engine); ok {
			return eng, nil
		}
	}
	eng, err := f.CreateEngine(t, cfg)
	if err != nil {
		return nil, err
	}
	f.instances.SetDefault(string(t), eng)
	return eng, nil
}
