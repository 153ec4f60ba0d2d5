package app

import (
	"image/color"
	"testing"
	"time"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/roman-kulish/antenna-station/internal/storage"
)

func TestReportRenderer_Render(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	data := NewReportData(&storage.Session{ID: 1, Station: "north-1", Role: "station", Preset: "5.8"})
	for _, r := range testReadings(base) {
		data.Update(r)
	}
	data.Finish()

	img, err := NewReportRenderer(RenderConfig{Location: time.UTC}).Render(data)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}

	// three bars fit into the minimum chart width
	if got := img.Bounds().Dx(); got != defaultLeftBorder+minChartWidth+defaultRightBorder {
		t.Errorf("width = %d", got)
	}
	if got := img.Bounds().Dy(); got != defaultTopBorder+defaultChartHeight+defaultBottomBorder {
		t.Errorf("height = %d", got)
	}

	baseY := defaultTopBorder + defaultChartHeight
	barCenter := func(i int) int {
		return defaultLeftBorder + defaultBarGap + i*(defaultBarWidth+defaultBarGap) + defaultBarWidth/2
	}

	// the strongest bar spans the full chart height in the hottest color
	red := color.RGBAModel.Convert(colorful.Hsv(hueEnd, 1, 0.90))
	for _, y := range []int{baseY - 5, defaultTopBorder + 1} {
		if got := img.At(barCenter(1), y); got != red {
			t.Errorf("strongest bar at y=%d = %v, want %v", y, got, red)
		}
	}

	// the weakest bar is short: white above it
	if r, g, b, _ := img.At(barCenter(0), baseY-100).RGBA(); r != 0xffff || g != 0xffff || b != 0xffff {
		t.Errorf("expected white above the weakest bar")
	}

	// a non-numeric reading leaves a marker
	if got := img.At(barCenter(2), baseY-1); got != noDataColor {
		t.Errorf("no data marker = %v, want %v", got, noDataColor)
	}
}

func TestReportRenderer_Empty(t *testing.T) {
	if _, err := NewReportRenderer(RenderConfig{}).Render(NewReportData(nil)); err == nil {
		t.Error("expected error for an empty report")
	}
}
