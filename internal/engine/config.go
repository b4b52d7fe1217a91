package engine

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config is the per-engine configuration mapping. Recognized keys are typed
// through the accessors below; unrecognized keys are ignored. Required keys
// per variant are enforced by the factory.
type Config map[string]any

// Recognized configuration keys.
const (
	KeyAPIToken          = "api_token"
	KeyBaseURL           = "base_url"
	KeyModel             = "model"
	KeyDevice            = "device"
	KeyResolution        = "resolution"
	KeyModelPath         = "model_path"
	KeyMaxRetries        = "max_retries"
	KeyNumOutputs        = "num_outputs"
	KeyInferenceSteps    = "num_inference_steps"
	KeyGuidanceScale     = "guidance_scale"
	KeyStrength          = "strength"
	KeyConditioningScale = "conditioning_scale"
	KeyRequestTimeout    = "request_timeout"
)

// Clone returns a shallow copy so callers can derive per-engine variants
// without mutating a shared base.
func (c Config) Clone() Config {
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

func (c Config) str(key, fallback string) string {
	v, ok := c[key]
	if !ok {
		return fallback
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return fallback
	}
	return s
}

func (c Config) integer(key string, fallback int) int {
	switch v := c[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return fallback
}

func (c Config) float(key string, fallback float64) float64 {
	switch v := c[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return fallback
}

func (c Config) duration(key string, fallback time.Duration) time.Duration {
	switch v := c[key].(type) {
	case time.Duration:
		return v
	case int:
		return time.Duration(v) * time.Second
	case string:
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			return d
		}
	}
	return fallback
}

// requireString enforces a non-empty string value for key, the factory's
// construction-time contract.
func (c Config) requireString(key string) (string, error) {
	v, ok := c[key]
	if !ok {
		return "", &ConfigError{Key: key}
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return "", &ConfigError{Key: key, Reason: "value is empty"}
	}
	return s, nil
}

// sampling collects the diffusion sampling knobs shared by every variant.
type sampling struct {
	Resolution        int
	NumOutputs        int
	InferenceSteps    int
	GuidanceScale     float64
	Strength          float64
	ConditioningScale float64
}

func samplingFromConfig(cfg Config) sampling {
	return sampling{
		Resolution:        cfg.integer(KeyResolution, 512),
		NumOutputs:        clampOutputs(cfg.integer(KeyNumOutputs, 3)),
		InferenceSteps:    cfg.integer(KeyInferenceSteps, 30),
		GuidanceScale:     cfg.float(KeyGuidanceScale, 7.5),
		Strength:          cfg.float(KeyStrength, 0.8),
		ConditioningScale: cfg.float(KeyConditioningScale, 0.9),
	}
}

func clampOutputs(n int) int {
	if n <= 0 {
		return 1
	}
	if n > 4 {
		return 4
	}
	return n
}
