package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func conditioningFixture(t *testing.T, size int) *ConditioningImage {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 180, G: 170, B: 160, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode fixture: %v", err)
	}
	return &ConditioningImage{Image: buf.Bytes(), Width: size, Height: size}
}

func TestProceduralGenerateSucceeds(t *testing.T) {
	eng := NewProceduralEngine(Config{KeyResolution: 64, KeyNumOutputs: 3}, nil)
	req := GenerationRequest{
		PositivePrompt: "modern bedroom",
		Primary:        conditioningFixture(t, 64),
		Style:          StyleParameters{FurnitureStyle: "modern", WallColor: "blue", FlooringMaterial: "marble"},
		RequestID:      "req-1",
	}

	result := eng.GenerateImg2Img(context.Background(), req)
	if !result.Success {
		t.Fatalf("generate failed: %s", result.ErrorMessage)
	}
	if len(result.Images) != 3 {
		t.Fatalf("got %d images, want 3", len(result.Images))
	}
	if result.EngineUsed != string(EngineStandalone) {
		t.Fatalf("EngineUsed = %q", result.EngineUsed)
	}
	if result.ErrorMessage != "" {
		t.Fatalf("success result carries error: %q", result.ErrorMessage)
	}

	for i, payload := range result.Images {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			t.Fatalf("image %d not base64: %v", i, err)
		}
		img, err := png.Decode(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("image %d not png: %v", i, err)
		}
		if b := img.Bounds(); b.Dx() != 64 || b.Dy() != 64 {
			t.Fatalf("image %d bounds = %v, want 64x64", i, b)
		}
	}
}

func TestProceduralDeterministicVariations(t *testing.T) {
	eng := NewProceduralEngine(Config{KeyResolution: 48, KeyNumOutputs: 2}, nil)
	req := GenerationRequest{
		PositivePrompt: "scandinavian living room",
		Primary:        conditioningFixture(t, 48),
		Style:          StyleParameters{FurnitureStyle: "scandinavian"},
		RequestID:      "req-7",
	}

	first := eng.GenerateImg2Img(context.Background(), req)
	second := eng.GenerateImg2Img(context.Background(), req)
	if !first.Success || !second.Success {
		t.Fatal("generation failed")
	}
	for i := range first.Images {
		if first.Images[i] != second.Images[i] {
			t.Fatalf("image %d not reproducible across runs", i)
		}
	}
	if first.Images[0] == first.Images[1] {
		t.Fatal("variations within one run should differ")
	}
}

func TestProceduralWithoutConditioning(t *testing.T) {
	eng := NewProceduralEngine(Config{KeyResolution: 32, KeyNumOutputs: 1}, nil)
	result := eng.GenerateImg2Img(context.Background(), GenerationRequest{RequestID: "bare"})
	if !result.Success {
		t.Fatalf("generate without conditioning failed: %s", result.ErrorMessage)
	}
	if len(result.Images) != 1 {
		t.Fatalf("got %d images, want 1", len(result.Images))
	}
}

func TestProceduralCancelledContext(t *testing.T) {
	eng := NewProceduralEngine(Config{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := eng.GenerateImg2Img(ctx, GenerationRequest{RequestID: "x"})
	if result.Success {
		t.Fatal("expected failure for cancelled context")
	}
	if result.ErrorMessage == "" {
		t.Fatal("failure result must carry an error message")
	}
}

func TestProceduralHealthAndInfo(t *testing.T) {
	eng := NewProceduralEngine(Config{}, nil)
	if !eng.HealthCheck(context.Background()) {
		t.Fatal("procedural engine should always be healthy")
	}
	info := eng.ModelInfo()
	if info["engine_type"] != string(EngineStandalone) || info["status"] != "ready" {
		t.Fatalf("ModelInfo = %v", info)
	}
}
