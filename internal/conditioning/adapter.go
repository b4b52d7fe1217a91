// Package conditioning turns uploaded room photographs into model-ready
// conditioning inputs: an aspect-preserving resize onto an exact square
// canvas plus a derived edge map that lets engines keep the original room
// geometry while changing style elements.
package conditioning

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	_ "image/gif"
	_ "image/jpeg"

	xdraw "golang.org/x/image/draw"

	"server/internal/engine"
)

// DefaultResolution is the square canvas edge used when no override is
// configured.
const DefaultResolution = 512

// padBackground fills the letterbox area. A mid gray keeps diffusion models
// from hallucinating content into the padding.
var padBackground = color.RGBA{R: 127, G: 127, B: 127, A: 255}

// ImageDecodeError reports an unreadable input image. It fails only the
// affected direction; other directions proceed independently.
type ImageDecodeError struct {
	Err error
}

func (e *ImageDecodeError) Error() string {
	return fmt.Sprintf("conditioning: decode image: %v", e.Err)
}

func (e *ImageDecodeError) Unwrap() error { return e.Err }

// Adapter prepares conditioning payloads at a fixed target resolution.
type Adapter struct {
	resolution int
}

// NewAdapter builds an adapter; resolution <= 0 selects DefaultResolution.
func NewAdapter(resolution int) *Adapter {
	if resolution <= 0 {
		resolution = DefaultResolution
	}
	return &Adapter{resolution: resolution}
}

// Resolution returns the configured square canvas edge.
func (a *Adapter) Resolution() int { return a.resolution }

// Prepare decodes raw image bytes, fits them inside the square canvas
// preserving aspect ratio, pads the remainder, and derives the Sobel edge
// map. Unreadable input fails with ImageDecodeError.
func (a *Adapter) Prepare(data []byte) (*engine.ConditioningImage, error) {
	if len(data) == 0 {
		return nil, &ImageDecodeError{Err: fmt.Errorf("empty image payload")}
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &ImageDecodeError{Err: err}
	}

	canvas := fitToSquare(src, a.resolution)

	encoded, err := encodePNG(canvas)
	if err != nil {
		return nil, fmt.Errorf("conditioning: encode canvas: %w", err)
	}
	edges, err := encodePNG(sobelEdges(canvas))
	if err != nil {
		return nil, fmt.Errorf("conditioning: encode edge map: %w", err)
	}

	return &engine.ConditioningImage{
		Image:   encoded,
		EdgeMap: edges,
		Width:   a.resolution,
		Height:  a.resolution,
	}, nil
}

// fitToSquare scales src to fit within size x size without distortion and
// centers it on a padded square canvas.
func fitToSquare(src image.Image, size int) *image.RGBA {
	b := src.Bounds()
	srcW, srcH := b.Dx(), b.Dy()

	dstW, dstH := size, size
	if srcW > srcH {
		dstH = srcH * size / srcW
	} else if srcH > srcW {
		dstW = srcW * size / srcH
	}
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}

	canvas := image.NewRGBA(image.Rect(0, 0, size, size))
	xdraw.Draw(canvas, canvas.Bounds(), &image.Uniform{padBackground}, image.Point{}, xdraw.Src)

	offsetX := (size - dstW) / 2
	offsetY := (size - dstH) / 2
	target := image.Rect(offsetX, offsetY, offsetX+dstW, offsetY+dstH)
	xdraw.CatmullRom.Scale(canvas, target, src, b, xdraw.Over, nil)
	return canvas
}

// sobelEdges computes a thresholded gradient-magnitude map. White pixels
// mark structural edges (walls, window frames); everything else is black.
func sobelEdges(src *image.RGBA) *image.Gray {
	b := src.Bounds()
	gray := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			o := src.PixOffset(x, y)
			// Luma approximation.
			v := (299*int(src.Pix[o]) + 587*int(src.Pix[o+1]) + 114*int(src.Pix[o+2])) / 1000
			gray.SetGray(x, y, color.Gray{Y: uint8(v)})
		}
	}

	out := image.NewGray(b)
	const threshold = 96
	for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
		for x := b.Min.X + 1; x < b.Max.X-1; x++ {
			gx := -int(gray.GrayAt(x-1, y-1).Y) + int(gray.GrayAt(x+1, y-1).Y) +
				-2*int(gray.GrayAt(x-1, y).Y) + 2*int(gray.GrayAt(x+1, y).Y) +
				-int(gray.GrayAt(x-1, y+1).Y) + int(gray.GrayAt(x+1, y+1).Y)
			gy := -int(gray.GrayAt(x-1, y-1).Y) - 2*int(gray.GrayAt(x, y-1).Y) - int(gray.GrayAt(x+1, y-1).Y) +
				int(gray.GrayAt(x-1, y+1).Y) + 2*int(gray.GrayAt(x, y+1).Y) + int(gray.GrayAt(x+1, y+1).Y)
			if gx < 0 {
				gx = -gx
			}
			if gy < 0 {
				gy = -gy
			}
			if gx+gy > threshold*2 {
				out.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
