// Package artwork handles the color side of playlist and song visuals.
// Actual dominant-color extraction from image bytes is an external
// collaborator; this package owns the palette bookkeeping the library does
// with the extracted colors.
package artwork

import (
	"context"

	"github.com/lucasb-eyer/go-colorful"
)

// Extractor is the external color-extraction collaborator: given an artwork
// URL it returns a dominant color and a small representative palette, both
// as hex strings.
type Extractor interface {
	Extract(ctx context.Context, artworkURL string) (dominant string, palette []string, err error)
}

// Two colors closer than this in Lab space are treated as duplicates when
// merging palettes.
const duplicateDistance = 0.08

// Normalize parses a hex color and returns its canonical "#rrggbb" form.
func Normalize(hex string) (string, bool) {
	c, err := colorful.Hex(hex)
	if err != nil {
		return "", false
	}
	return c.Hex(), true
}

// MergePalette folds incoming colors into an existing palette, skipping
// invalid values and perceptual near-duplicates, capped at limit entries.
func MergePalette(existing, incoming []string, limit int) []string {
	merged := make([]string, 0, limit)
	parsed := make([]colorful.Color, 0, limit)

	appendColor := func(hex string) {
		if len(merged) >= limit {
			return
		}
		c, err := colorful.Hex(hex)
		if err != nil {
			return
		}
		for _, seen := range parsed {
			if c.DistanceLab(seen) < duplicateDistance {
				return
			}
		}
		merged = append(merged, c.Hex())
		parsed = append(parsed, c)
	}

	for _, hex := range existing {
		appendColor(hex)
	}
	for _, hex := range incoming {
		appendColor(hex)
	}

	return merged
}

// Dominant picks the most saturated reasonably-bright color from a palette,
// falling back to the first valid entry.
func Dominant(palette []string) (string, bool) {
	var best colorful.Color
	bestScore := -1.0

	for _, hex := range palette {
		c, err := colorful.Hex(hex)
		if err != nil {
			continue
		}
		_, s, v := c.Hsv()
		score := s * v
		if score > bestScore {
			best = c
			bestScore = score
		}
	}

	if bestScore < 0 {
		return "", false
	}
	return best.Hex(), true
}
