package generation

import (
	"fmt"

	"server/internal/engine"
	"server/internal/infra"
)

// ParsePriority converts the configured engine names into typed tags,
// rejecting unknown entries outright rather than skipping them.
func ParsePriority(names []string) ([]engine.EngineType, error) {
	out := make([]engine.EngineType, 0, len(names))
	for _, name := range names {
		tag, ok := engine.ParseEngineType(name)
		if !ok {
			return nil, fmt.Errorf("generation: unknown engine %q in priority list", name)
		}
		out = append(out, tag)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("generation: engine priority list is empty")
	}
	return out, nil
}

// EngineConfigs derives the per-engine configuration maps from the service
// configuration. The Replicate-backed presets share one API token.
func EngineConfigs(cfg *infra.Config) map[engine.EngineType]engine.Config {
	sampling := engine.Config{
		"resolution":          cfg.Resolution,
		"num_outputs":         cfg.NumOutputs,
		"num_inference_steps": cfg.InferenceSteps,
		"guidance_scale":      cfg.GuidanceScale,
		"strength":            cfg.Strength,
		"conditioning_scale":  cfg.ConditioningScale,
		"max_retries":         cfg.MaxRetries,
		"request_timeout":     cfg.GenerationTimeout,
	}

	replicate := sampling.Clone()
	replicate["api_token"] = cfg.ReplicateAPIToken
	if cfg.ReplicateModel != "" {
		replicate["model"] = cfg.ReplicateModel
	}

	flux := sampling.Clone()
	flux["api_token"] = cfg.ReplicateAPIToken

	sota := sampling.Clone()
	sota["api_token"] = cfg.ReplicateAPIToken

	hf := sampling.Clone()
	hf["api_token"] = cfg.HFAPIToken
	if cfg.HFModel != "" {
		hf["model"] = cfg.HFModel
	}

	local := sampling.Clone()
	local["model_path"] = cfg.LocalModelPath
	local["device"] = cfg.Device

	return map[engine.EngineType]engine.Config{
		engine.EngineReplicate:     replicate,
		engine.EngineFluxWorking:   flux,
		engine.EngineStateOfTheArt: sota,
		engine.EngineHFInference:   hf,
		engine.EngineLocalSDXL:     local,
		engine.EngineStandalone:    sampling.Clone(),
	}
}
