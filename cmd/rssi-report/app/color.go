package app

import (
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

const (
	hueStart = 236.0
	hueEnd   = 0.0
)

var noDataColor = color.RGBA{R: 0xa0, G: 0xa0, B: 0xa0, A: 0xff}

// levelColor maps a level to a blue (weak) to red (strong) hue
func levelColor(level *float64, minLevel, maxLevel float64) color.Color {
	if level == nil {
		return noDataColor
	}

	span := maxLevel - minLevel
	if span <= 0 {
		return colorful.Hsv(hueEnd, 1, 0.90)
	}

	normalized := (*level - minLevel) / span
	hue := hueStart - normalized*(hueStart-hueEnd)
	hue = math.Min(math.Max(hue, hueEnd), hueStart)

	return colorful.Hsv(hue, 1, 0.90)
}
