package engine

import (
	"context"
	"strings"
)

// EngineType enumerates the supported generation backends. Every tag maps to
// exactly one implementation and one required-configuration schema in the
// factory.
type EngineType string

const (
	EngineReplicate     EngineType = "REPLICATE"
	EngineHFInference   EngineType = "HF_INFERENCE"
	EngineLocalSDXL     EngineType = "LOCAL_SDXL"
	EngineFluxWorking   EngineType = "FLUX_WORKING"
	EngineStateOfTheArt EngineType = "STATE_OF_THE_ART"
	EngineStandalone    EngineType = "STANDALONE"
)

// ParseEngineType sanitizes free-form input into a known tag. The boolean is
// false for unknown variants.
func ParseEngineType(s string) (EngineType, bool) {
	switch EngineType(strings.ToUpper(strings.TrimSpace(s))) {
	case EngineReplicate:
		return EngineReplicate, true
	case EngineHFInference:
		return EngineHFInference, true
	case EngineLocalSDXL:
		return EngineLocalSDXL, true
	case EngineFluxWorking:
		return EngineFluxWorking, true
	case EngineStateOfTheArt:
		return EngineStateOfTheArt, true
	case EngineStandalone:
		return EngineStandalone, true
	default:
		return "", false
	}
}

// Direction identifies which wall a room photograph faces.
type Direction string

const (
	DirectionNorth Direction = "north"
	DirectionSouth Direction = "south"
	DirectionEast  Direction = "east"
	DirectionWest  Direction = "west"
)

// Directions lists the four directions in a stable order.
var Directions = []Direction{DirectionNorth, DirectionSouth, DirectionEast, DirectionWest}

// StyleParameters describes the requested look of the redesigned room. It is
// purely descriptive and constructed fresh per request.
type StyleParameters struct {
	RoomType         string
	FurnitureStyle   string
	WallColor        string
	FlooringMaterial string
	Budget           string
}

// ConditioningImage is a model-ready preprocessed room photograph. Image is a
// PNG-encoded square canvas; EdgeMap is the structural map derived from it.
type ConditioningImage struct {
	Image   []byte
	EdgeMap []byte
	Width   int
	Height  int
}

// GenerationRequest carries everything an engine needs for one
// image-to-image generation call. RoomImages may omit directions; engines
// may use only the primary image.
type GenerationRequest struct {
	PositivePrompt string
	NegativePrompt string
	Primary        *ConditioningImage
	RoomImages     map[Direction]*ConditioningImage
	Style          StyleParameters
	RequestID      string
}

// GenerationResult is the uniform outcome of a generation attempt.
//
// Invariant: Success is true iff Images is non-empty and ErrorMessage is
// empty; Success is false iff Images is empty and ErrorMessage is set.
type GenerationResult struct {
	Success          bool
	Images           []string // base64-encoded PNG payloads
	InferenceSeconds float64
	EngineUsed       string
	ErrorMessage     string
}

// Failure builds a failed result attributed to the given engine.
func Failure(engineType EngineType, msg string) *GenerationResult {
	return &GenerationResult{
		Success:      false,
		EngineUsed:   string(engineType),
		ErrorMessage: msg,
	}
}

// Engine is the capability contract every backend implements.
//
// GenerateImg2Img must never surface a raw transport or runtime error:
// failures are folded into a GenerationResult with Success=false.
// HealthCheck never returns an error; failures collapse to false.
type Engine interface {
	HealthCheck(ctx context.Context) bool
	ModelInfo() map[string]string
	GenerateImg2Img(ctx context.Context, req GenerationRequest) *GenerationResult
}
