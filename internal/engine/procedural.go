package engine

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"
	"time"

	"server/internal/infra"
)

// ProceduralEngine is the algorithmic fallback backend. It composites a
// deterministic restyled render from the conditioning payload: the wall
// region is recolored to the requested palette, the floor band is tinted to
// the flooring material, and the structural edge map is re-applied so the
// original room geometry stays visible. It needs no credentials, no model
// weights, and never fails, which guarantees the service always returns
// images even with zero external dependencies configured.
type ProceduralEngine struct {
	sampling sampling
	logger   *infra.Logger
}

// NewProceduralEngine constructs the fallback engine from the shared
// sampling configuration.
func NewProceduralEngine(cfg Config, logger *infra.Logger) *ProceduralEngine {
	return &ProceduralEngine{sampling: samplingFromConfig(cfg), logger: ensureLogger(logger)}
}

func (e *ProceduralEngine) HealthCheck(ctx context.Context) bool {
	return ctx.Err() == nil
}

func (e *ProceduralEngine) ModelInfo() map[string]string {
	return map[string]string{
		"engine_type": string(EngineStandalone),
		"status":      "ready",
		"mode":        "procedural",
		"resolution":  fmt.Sprint(e.sampling.Resolution),
	}
}

func (e *ProceduralEngine) GenerateImg2Img(ctx context.Context, req GenerationRequest) *GenerationResult {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return Failure(EngineStandalone, "generation cancelled")
	}

	size := e.sampling.Resolution
	if size <= 0 {
		size = 512
	}
	images := make([]string, 0, e.sampling.NumOutputs)
	for i := 0; i < e.sampling.NumOutputs; i++ {
		seed := proceduralSeed(req.RequestID, req.PositivePrompt, i)
		rendered, err := renderRestyledRoom(req, size, seed)
		if err != nil {
			return Failure(EngineStandalone, fmt.Sprintf("procedural render failed: %v", err))
		}
		images = append(images, base64.StdEncoding.EncodeToString(rendered))
	}

	e.logger.Debug().
		Str("request_id", req.RequestID).
		Int("outputs", len(images)).
		Msg("procedural: composited fallback renders")

	return &GenerationResult{
		Success:          true,
		Images:           images,
		InferenceSeconds: time.Since(start).Seconds(),
		EngineUsed:       string(EngineStandalone),
	}
}

var _ Engine = (*ProceduralEngine)(nil)

// renderRestyledRoom composites one output image. When a conditioning image
// is available its pixels seed the canvas so the geometry survives; without
// one a synthetic room (wall plane plus floor band) is drawn instead.
func renderRestyledRoom(req GenerationRequest, size int, seed uint32) ([]byte, error) {
	canvas := image.NewRGBA(image.Rect(0, 0, size, size))

	wall := wallColorTone(req.Style.WallColor, seed)
	floor := flooringTone(req.Style.FlooringMaterial)

	if src := decodeConditioning(req.Primary, size); src != nil {
		tintInto(canvas, src, wall, 0.45)
	} else {
		draw.Draw(canvas, canvas.Bounds(), &image.Uniform{wall}, image.Point{}, draw.Src)
	}

	// Floor band over the lower third.
	floorRect := image.Rect(0, size*2/3, size, size)
	blendRect(canvas, floorRect, floor, 0.7)

	// Accent stripes keyed off the furniture style.
	accent := styleAccent(req.Style.FurnitureStyle, seed)
	stripe := size / 24
	if stripe < 4 {
		stripe = 4
	}
	for x := stripe; x < size; x += stripe * 6 {
		blendRect(canvas, image.Rect(x, size/3, x+stripe, size*2/3), accent, 0.35)
	}

	overlayEdges(canvas, req.Primary, size)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeConditioning(ci *ConditioningImage, size int) *image.RGBA {
	if ci == nil || len(ci.Image) == 0 {
		return nil
	}
	decoded, err := png.Decode(bytes.NewReader(ci.Image))
	if err != nil {
		return nil
	}
	out := image.NewRGBA(image.Rect(0, 0, size, size))
	b := decoded.Bounds()
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			sx := b.Min.X + x*b.Dx()/size
			sy := b.Min.Y + y*b.Dy()/size
			out.Set(x, y, decoded.At(sx, sy))
		}
	}
	return out
}

func tintInto(dst *image.RGBA, src *image.RGBA, tint color.RGBA, alpha float64) {
	b := dst.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bb, _ := src.At(x, y).RGBA()
			dst.SetRGBA(x, y, color.RGBA{
				R: mix(uint8(r>>8), tint.R, alpha),
				G: mix(uint8(g>>8), tint.G, alpha),
				B: mix(uint8(bb>>8), tint.B, alpha),
				A: 255,
			})
		}
	}
}

func blendRect(dst *image.RGBA, rect image.Rectangle, c color.RGBA, alpha float64) {
	rect = rect.Intersect(dst.Bounds())
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			r, g, b, _ := dst.At(x, y).RGBA()
			dst.SetRGBA(x, y, color.RGBA{
				R: mix(uint8(r>>8), c.R, alpha),
				G: mix(uint8(g>>8), c.G, alpha),
				B: mix(uint8(b>>8), c.B, alpha),
				A: 255,
			})
		}
	}
}

// overlayEdges re-draws the structural map so walls and window frames from
// the source photograph remain legible in the composite.
func overlayEdges(dst *image.RGBA, ci *ConditioningImage, size int) {
	if ci == nil || len(ci.EdgeMap) == 0 {
		return
	}
	edges, err := png.Decode(bytes.NewReader(ci.EdgeMap))
	if err != nil {
		return
	}
	b := edges.Bounds()
	line := color.RGBA{R: 48, G: 44, B: 40, A: 255}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			sx := b.Min.X + x*b.Dx()/size
			sy := b.Min.Y + y*b.Dy()/size
			if g, _, _, _ := edges.At(sx, sy).RGBA(); g > 0x7fff {
				dst.SetRGBA(x, y, line)
			}
		}
	}
}

func mix(base, tone uint8, alpha float64) uint8 {
	v := float64(base)*(1-alpha) + float64(tone)*alpha
	if v < 0 {
		v = 0
	}
	if v > 255 {
		v = 255
	}
	return uint8(v)
}

func wallColorTone(name string, seed uint32) color.RGBA {
	base, ok := wallTones[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		base = color.RGBA{R: 235, G: 232, B: 225, A: 255} // neutral off-white
	}
	// Small per-variation shift keeps outputs distinct yet deterministic.
	shift := uint8(seed % 17)
	base.R = clampChan(int(base.R) + int(shift) - 8)
	base.G = clampChan(int(base.G) + int(shift)/2 - 4)
	return base
}

var wallTones = map[string]color.RGBA{
	"white":      {R: 245, G: 243, B: 238, A: 255},
	"off-white":  {R: 235, G: 232, B: 225, A: 255},
	"beige":      {R: 222, G: 206, B: 180, A: 255},
	"cream":      {R: 240, G: 230, B: 205, A: 255},
	"grey":       {R: 178, G: 180, B: 184, A: 255},
	"gray":       {R: 178, G: 180, B: 184, A: 255},
	"blue":       {R: 132, G: 158, B: 196, A: 255},
	"green":      {R: 148, G: 178, B: 150, A: 255},
	"terracotta": {R: 204, G: 122, B: 94, A: 255},
}

func flooringTone(material string) color.RGBA {
	switch strings.ToLower(strings.TrimSpace(material)) {
	case "marble":
		return color.RGBA{R: 226, G: 224, B: 220, A: 255}
	case "tile", "tiles":
		return color.RGBA{R: 198, G: 192, B: 182, A: 255}
	case "carpet":
		return color.RGBA{R: 150, G: 140, B: 132, A: 255}
	case "concrete":
		return color.RGBA{R: 160, G: 160, B: 158, A: 255}
	default: // hardwood
		return color.RGBA{R: 146, G: 104, B: 66, A: 255}
	}
}

func styleAccent(style string, seed uint32) color.RGBA {
	switch strings.ToLower(strings.TrimSpace(style)) {
	case "modern", "minimalist":
		return color.RGBA{R: 70, G: 74, B: 80, A: 255}
	case "scandinavian":
		return color.RGBA{R: 196, G: 186, B: 170, A: 255}
	case "industrial":
		return color.RGBA{R: 94, G: 88, B: 84, A: 255}
	case "bohemian":
		return color.RGBA{R: 176, G: 110, B: 86, A: 255}
	case "traditional":
		return color.RGBA{R: 120, G: 86, B: 60, A: 255}
	default:
		v := uint8(64 + seed%64)
		return color.RGBA{R: v, G: v, B: v, A: 255}
	}
}

func clampChan(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func proceduralSeed(parts ...any) uint32 {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%v|", p)
	}
	return binary.BigEndian.Uint32(h.Sum(nil)[:4])
}
