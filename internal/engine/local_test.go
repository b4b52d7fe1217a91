package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalRequiresModelPath(t *testing.T) {
	_, err := NewLocalSDXLEngine(Config{}, nil)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	if cfgErr.Key != KeyModelPath {
		t.Fatalf("ConfigError.Key = %q, want %q", cfgErr.Key, KeyModelPath)
	}
}

func TestLocalFallsBackWithoutWeights(t *testing.T) {
	dir := t.TempDir()
	eng, err := NewLocalSDXLEngine(Config{KeyModelPath: dir, KeyResolution: 32, KeyNumOutputs: 2}, nil)
	if err != nil {
		t.Fatalf("NewLocalSDXLEngine error: %v", err)
	}

	if info := eng.ModelInfo(); info["status"] != "fallback" {
		t.Fatalf("status = %q, want fallback", info["status"])
	}
	if !eng.HealthCheck(context.Background()) {
		t.Fatal("engine should report healthy even without weights")
	}

	result := eng.GenerateImg2Img(context.Background(), GenerationRequest{RequestID: "fb"})
	if !result.Success {
		t.Fatalf("fallback generation failed: %s", result.ErrorMessage)
	}
	if result.EngineUsed != string(EngineStandalone) {
		t.Fatalf("EngineUsed = %q, want STANDALONE via fallback", result.EngineUsed)
	}
	if len(result.Images) != 2 {
		t.Fatalf("got %d images, want 2", len(result.Images))
	}
}

func TestLocalRunsPipelineWithWeights(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "model_index.json"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("write model index: %v", err)
	}

	eng, err := NewLocalSDXLEngine(Config{KeyModelPath: dir, KeyResolution: 32, KeyNumOutputs: 1}, nil)
	if err != nil {
		t.Fatalf("NewLocalSDXLEngine error: %v", err)
	}
	if info := eng.ModelInfo(); info["status"] != "ready" {
		t.Fatalf("status = %q, want ready", info["status"])
	}

	result := eng.GenerateImg2Img(context.Background(), GenerationRequest{
		RequestID: "local-1",
		Primary:   conditioningFixture(t, 32),
		Style:     StyleParameters{WallColor: "green"},
	})
	if !result.Success {
		t.Fatalf("generation failed: %s", result.ErrorMessage)
	}
	if result.EngineUsed != string(EngineLocalSDXL) {
		t.Fatalf("EngineUsed = %q, want LOCAL_SDXL", result.EngineUsed)
	}
}

func TestLocalDetectsSafetensors(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "unet.safetensors"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write weights: %v", err)
	}
	if !hasModelAssets(dir) {
		t.Fatal("safetensors file should count as model assets")
	}
	if hasModelAssets(t.TempDir()) {
		t.Fatal("empty directory reported as having assets")
	}
}
