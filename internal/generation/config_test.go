package generation

import (
	"testing"
	"time"

	"server/internal/engine"
	"server/internal/infra"
)

func TestParsePriority(t *testing.T) {
	got, err := ParsePriority([]string{"replicate", " STANDALONE "})
	if err != nil {
		t.Fatalf("ParsePriority error: %v", err)
	}
	if len(got) != 2 || got[0] != engine.EngineReplicate || got[1] != engine.EngineStandalone {
		t.Fatalf("ParsePriority = %v", got)
	}

	if _, err := ParsePriority([]string{"REPLICATE", "midjourney"}); err == nil {
		t.Fatal("expected error for unknown engine name")
	}
	if _, err := ParsePriority(nil); err == nil {
		t.Fatal("expected error for empty list")
	}
}

func TestEngineConfigs(t *testing.T) {
	cfg := &infra.Config{
		ReplicateAPIToken: "r8_tok",
		HFAPIToken:        "hf_tok",
		HFModel:           "acme/custom-sdxl",
		LocalModelPath:    "/opt/models/sdxl",
		Device:            "cuda",
		Resolution:        768,
		NumOutputs:        2,
		InferenceSteps:    25,
		GuidanceScale:     6.5,
		Strength:          0.7,
		ConditioningScale: 0.8,
		MaxRetries:        2,
		GenerationTimeout: 90 * time.Second,
	}

	configs := EngineConfigs(cfg)

	for _, tag := range []engine.EngineType{engine.EngineReplicate, engine.EngineFluxWorking, engine.EngineStateOfTheArt} {
		if got := configs[tag]["api_token"]; got != "r8_tok" {
			t.Fatalf("%s api_token = %v", tag, got)
		}
	}
	if got := configs[engine.EngineHFInference]["api_token"]; got != "hf_tok" {
		t.Fatalf("hf api_token = %v", got)
	}
	if got := configs[engine.EngineHFInference]["model"]; got != "acme/custom-sdxl" {
		t.Fatalf("hf model = %v", got)
	}
	if got := configs[engine.EngineLocalSDXL]["model_path"]; got != "/opt/models/sdxl" {
		t.Fatalf("local model_path = %v", got)
	}
	if got := configs[engine.EngineLocalSDXL]["device"]; got != "cuda" {
		t.Fatalf("local device = %v", got)
	}
	if got := configs[engine.EngineStandalone]["resolution"]; got != 768 {
		t.Fatalf("standalone resolution = %v", got)
	}
	if _, ok := configs[engine.EngineStandalone]["api_token"]; ok {
		t.Fatal("standalone config must not carry credentials")
	}
	if _, ok := configs[engine.EngineReplicate]["model"]; ok {
		t.Fatal("model key should be absent when no override is configured")
	}
}
