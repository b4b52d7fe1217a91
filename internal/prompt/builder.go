// Package prompt synthesizes text prompts for the generation engines from
// structured style parameters. Building is deterministic: identical
// parameters always produce byte-identical prompts, so results are
// reproducible and cacheable downstream.
package prompt

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"server/internal/engine"
)

// MaxPromptLength bounds prompt output so downstream API limits are never
// exceeded. Prompts are truncated at a clause boundary, never mid-word.
const MaxPromptLength = 900

// Fallback tokens used when a style or material is unknown.
const (
	DefaultStyleDescriptor = "tastefully furnished, cohesive contemporary decor"
	DefaultRoomDescriptor  = "well proportioned living space"
	DefaultFlooringToken   = "hardwood flooring"
	DefaultWallColorToken  = "neutral"
)

var styleDescriptors = map[string]string{
	"modern":       "clean lines, minimalist layout, sleek furniture, uncluttered surfaces",
	"minimalist":   "sparse furnishing, hidden storage, monochrome palette, open floor area",
	"scandinavian": "light wood accents, cozy textiles, hygge atmosphere, soft natural light",
	"industrial":   "exposed brick, matte black metal frames, raw textures, factory windows",
	"bohemian":     "layered rugs, rattan furniture, trailing plants, eclectic patterns",
	"traditional":  "classic wooden furniture, warm tones, ornate detailing, symmetry",
	"luxury":       "marble surfaces, brass fixtures, plush upholstery, statement lighting",
	"rustic":       "reclaimed wood beams, stone accents, earthy palette, handcrafted decor",
}

var roomDescriptors = map[string]string{
	"living room": "spacious living room with a comfortable seating arrangement",
	"bedroom":     "restful bedroom with a well dressed bed as the focal point",
	"kitchen":     "functional kitchen with generous counter space",
	"dining room": "inviting dining room arranged around the dining table",
	"bathroom":    "clean bathroom with modern fittings",
	"office":      "focused home office with an organized desk setup",
	"balcony":     "open balcony styled as an outdoor retreat",
}

var qualityBoosters = []string{
	"photorealistic",
	"8k",
	"professional interior photography",
	"natural lighting",
	"high detail",
}

const baseNegativePrompt = "blurry, low quality, distorted, watermark, text, " +
	"deformed furniture, warped walls, unrealistic proportions, oversaturated"

var styleNegativeExtras = map[string]string{
	"minimalist":   "clutter, busy patterns",
	"scandinavian": "dark oppressive tones",
	"luxury":       "cheap materials, plastic furniture",
}

var titleCaser = cases.Title(language.English)

// BuildPositive assembles the positive prompt in a stable clause order:
// room descriptor, style descriptor, wall color clause, flooring clause,
// budget clause, quality boosters.
func BuildPositive(p engine.StyleParameters) string {
	clauses := make([]string, 0, 6)

	room := strings.ToLower(strings.TrimSpace(p.RoomType))
	if desc, ok := roomDescriptors[room]; ok {
		clauses = append(clauses, desc)
	} else if room != "" {
		clauses = append(clauses, room+", "+DefaultRoomDescriptor)
	} else {
		clauses = append(clauses, DefaultRoomDescriptor)
	}

	style := strings.ToLower(strings.TrimSpace(p.FurnitureStyle))
	if desc, ok := styleDescriptors[style]; ok {
		clauses = append(clauses, titleCaser.String(style)+" interior design, "+desc)
	} else {
		clauses = append(clauses, DefaultStyleDescriptor)
	}

	wall := strings.ToLower(strings.TrimSpace(p.WallColor))
	if wall == "" {
		wall = DefaultWallColorToken
	}
	clauses = append(clauses, wall+" painted walls")

	floor := strings.ToLower(strings.TrimSpace(p.FlooringMaterial))
	if floor == "" {
		clauses = append(clauses, DefaultFlooringToken)
	} else {
		clauses = append(clauses, floor+" flooring")
	}

	if budget := budgetClause(p.Budget); budget != "" {
		clauses = append(clauses, budget)
	}

	clauses = append(clauses, strings.Join(qualityBoosters, ", "))

	return truncateAtClause(strings.Join(clauses, ", "), MaxPromptLength)
}

// BuildNegative returns the fixed artifact blocklist, extended with
// per-style exclusions where defined.
func BuildNegative(p engine.StyleParameters) string {
	style := strings.ToLower(strings.TrimSpace(p.FurnitureStyle))
	if extra, ok := styleNegativeExtras[style]; ok {
		return truncateAtClause(baseNegativePrompt+", "+extra, MaxPromptLength)
	}
	return baseNegativePrompt
}

func budgetClause(budget string) string {
	switch strings.ToLower(strings.TrimSpace(budget)) {
	case "low", "budget":
		return "affordable furnishings, smart budget-friendly choices"
	case "medium", "mid":
		return "balanced mid-range furnishings"
	case "high", "premium":
		return "premium designer furnishings, high-end finishes"
	default:
		return ""
	}
}

func truncateAtClause(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := strings.LastIndex(s[:limit], ", ")
	if cut <= 0 {
		return s[:limit]
	}
	return s[:cut]
}
