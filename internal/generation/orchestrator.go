// Package generation composes the redesign pipeline: quota check, prompt
// synthesis, conditioning preprocessing, and engine selection with
// fallback.
package generation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"server/internal/conditioning"
	"server/internal/engine"
	"server/internal/infra"
	"server/internal/prompt"
	"server/internal/ratelimit"
)

// Request is the orchestrator's inbound contract: raw image bytes supplied
// by the storage layer plus the user identity and style parameters.
type Request struct {
	UserID       string
	RequestID    string
	PrimaryImage []byte
	RoomImages   map[engine.Direction][]byte
	Style        engine.StyleParameters
}

// Orchestrator sequences one generation request end to end.
//
// Fallback policy: engines are attempted strictly in the configured
// priority order and any engine-level failure advances to the next entry;
// the request fails only when the whole chain is exhausted. With STANDALONE
// in the chain that cannot happen, since the procedural engine always
// returns images.
type Orchestrator struct {
	limiter        *ratelimit.Limiter
	adapter        *conditioning.Adapter
	factory        *engine.Factory
	priority       []engine.EngineType
	configs        map[engine.EngineType]engine.Config
	attemptTimeout time.Duration
	logger         *infra.Logger
}

// Options wires the orchestrator's collaborators.
type Options struct {
	Limiter        *ratelimit.Limiter
	Adapter        *conditioning.Adapter
	Factory        *engine.Factory
	Priority       []engine.EngineType
	Configs        map[engine.EngineType]engine.Config
	AttemptTimeout time.Duration
	Logger         *infra.Logger
}

// NewOrchestrator validates and assembles the pipeline. The priority list
// must be non-empty.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Limiter == nil {
		return nil, fmt.Errorf("generation: limiter is required")
	}
	if opts.Factory == nil {
		return nil, fmt.Errorf("generation: engine factory is required")
	}
	if len(opts.Priority) == 0 {
		return nil, fmt.Errorf("generation: engine priority list is empty")
	}
	adapter := opts.Adapter
	if adapter == nil {
		adapter = conditioning.NewAdapter(conditioning.DefaultResolution)
	}
	timeout := opts.AttemptTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		l := infra.NewLogger("production")
		logger = &l
	}
	return &Orchestrator{
		limiter:        opts.Limiter,
		adapter:        adapter,
		factory:        opts.Factory,
		priority:       opts.Priority,
		configs:        opts.Configs,
		attemptTimeout: timeout,
		logger:         logger,
	}, nil
}

// Generate runs the full pipeline and always returns a well-formed result;
// runtime failures never escape as errors.
func (o *Orchestrator) Generate(ctx context.Context, req Request) *engine.GenerationResult {
	if allowed, denial := o.limiter.Check(req.UserID); !allowed {
		return &engine.GenerationResult{Success: false, ErrorMessage: denial}
	}

	positive := prompt.BuildPositive(req.Style)
	negative := prompt.BuildNegative(req.Style)

	primary, err := o.adapter.Prepare(req.PrimaryImage)
	if err != nil {
		return &engine.GenerationResult{
			Success:      false,
			ErrorMessage: fmt.Sprintf("primary image unreadable: %v", err),
		}
	}

	genReq := engine.GenerationRequest{
		PositivePrompt: positive,
		NegativePrompt: negative,
		Primary:        primary,
		RoomImages:     o.prepareDirections(ctx, req),
		Style:          req.Style,
		RequestID:      req.RequestID,
	}

	var last *engine.GenerationResult
	for _, tag := range o.priority {
		eng, err := o.factory.CachedEngine(tag, o.configs[tag])
		if err != nil {
			o.logger.Warn().Err(err).Str("engine", string(tag)).Msg("generation: engine unavailable, skipping")
			last = engine.Failure(tag, fmt.Sprintf("engine %s not configured", tag))
			continue
		}

		attemptCtx, cancel := context.WithTimeout(ctx, o.attemptTimeout)
		result := eng.GenerateImg2Img(attemptCtx, genReq)
		cancel()

		if result != nil && result.Success {
			o.logger.Info().
				Str("user_id", req.UserID).
				Str("engine", result.EngineUsed).
				Float64("inference_seconds", result.InferenceSeconds).
				Int("images", len(result.Images)).
				Msg("generation: succeeded")
			return result
		}
		last = result
		msg := ""
		if result != nil {
			msg = result.ErrorMessage
		}
		o.logger.Warn().
			Str("engine", string(tag)).
			Str("reason", msg).
			Msg("generation: engine attempt failed, trying next in priority order")
	}

	if last == nil {
		last = &engine.GenerationResult{Success: false, ErrorMessage: "no generation engines configured"}
	}
	return last
}

// prepareDirections preprocesses the four directional photographs in
// parallel. An unreadable or absent direction is skipped, never substituted
// with another direction's image.
func (o *Orchestrator) prepareDirections(ctx context.Context, req Request) map[engine.Direction]*engine.ConditioningImage {
	out := make(map[engine.Direction]*engine.ConditioningImage, len(engine.Directions))
	var mu sync.Mutex
	g, _ := errgroup.WithContext(ctx)

	for _, dir := range engine.Directions {
		data, ok := req.RoomImages[dir]
		if !ok || len(data) == 0 {
			continue
		}
		dir, data := dir, data
		g.Go(func() error {
			ci, err := o.adapter.Prepare(data)
			if err != nil {
				o.logger.Warn().Err(err).Str("direction", string(dir)).Msg("generation: skipping unreadable direction")
				return nil
			}
			mu.Lock()
			out[dir] = ci
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// EngineReport describes one configured engine for the diagnostics surface.
type EngineReport struct {
	Engine  string            `json:"engine"`
	Healthy bool              `json:"healthy"`
	Info    map[string]string `json:"info"`
}

// EngineReports probes every engine in priority order. Unconstructible
// engines are reported rather than omitted.
func (o *Orchestrator) EngineReports(ctx context.Context) []EngineReport {
	reports := make([]EngineReport, 0, len(o.priority))
	for _, tag := range o.priority {
		eng, err := o.factory.CachedEngine(tag, o.configs[tag])
		if err != nil {
			reports = append(reports, EngineReport{
				Engine: string(tag),
				Info:   map[string]string{"engine_type": string(tag), "status": "unconfigured"},
			})
			continue
		}
		reports = append(reports, EngineReport{
			Engine:  string(tag),
			Healthy: eng.HealthCheck(ctx),
			Info:    eng.ModelInfo(),
		})
	}
	return reports
}

// Usage exposes the limiter's read-only view for the usage endpoint.
func (o *Orchestrator) Usage(userID string) ratelimit.Usage {
	return o.limiter.Usage(userID)
}
