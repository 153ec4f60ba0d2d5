package app

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
)

const (
	dpi            = 96.0
	fontSize       = 10.0
	tickMarkWidth  = 5
	pixelsPerLabel = 60

	defaultBarWidth    = 24
	defaultBarGap      = 8
	defaultChartHeight = 320
	minChartWidth      = 320

	// Default border sizes in pixels
	defaultTopBorder    = 40
	defaultLeftBorder   = 70
	defaultBottomBorder = 60
	defaultRightBorder  = 40

	defaultDatetimeFormat = time.DateTime
)

var gridColor = color.RGBA{R: 0xe0, G: 0xe0, B: 0xe0, A: 0xff}

// BorderConfig defines the sizes of white space around the chart
type BorderConfig struct {
	Top    int // Space for the title
	Left   int // Space for the level scale
	Bottom int // Space for frequency labels and the information bar
	Right  int // Right padding
}

// RenderConfig holds the configuration of the bar chart
type RenderConfig struct {
	DatetimeFormat string         // Format string for date/time display
	Location       *time.Location // Timezone for time display

	FontSize    float64
	BarWidth    int
	BarGap      int
	ChartHeight int

	BorderConfig BorderConfig
}

// ReportRenderer draws the latest RSSI per frequency as a bar chart
type ReportRenderer struct {
	config RenderConfig
}

func NewReportRenderer(config RenderConfig) *ReportRenderer {
	if config.DatetimeFormat == "" {
		config.DatetimeFormat = defaultDatetimeFormat
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	if config.FontSize == 0 {
		config.FontSize = fontSize
	}
	if config.BarWidth == 0 {
		config.BarWidth = defaultBarWidth
	}
	if config.BarGap == 0 {
		config.BarGap = defaultBarGap
	}
	if config.ChartHeight == 0 {
		config.ChartHeight = defaultChartHeight
	}
	if config.BorderConfig.Top == 0 {
		config.BorderConfig.Top = defaultTopBorder
	}
	if config.BorderConfig.Left == 0 {
		config.BorderConfig.Left = defaultLeftBorder
	}
	if config.BorderConfig.Bottom == 0 {
		config.BorderConfig.Bottom = defaultBottomBorder
	}
	if config.BorderConfig.Right == 0 {
		config.BorderConfig.Right = defaultRightBorder
	}

	return &ReportRenderer{config: config}
}

// chart is the geometry of one rendering
type chart struct {
	area       image.Rectangle
	base, peak float64 // levels at the bottom and top of the chart area
}

func (c *chart) levelY(level float64) int {
	ratio := (level - c.base) / (c.peak - c.base)
	return c.area.Max.Y - int(math.Round(ratio*float64(c.area.Dy())))
}

// Render creates an image of the report
func (r *ReportRenderer) Render(data *ReportData) (*image.RGBA, error) {
	if len(data.Bars) == 0 {
		return nil, fmt.Errorf("no readings to render")
	}

	b := r.config.BorderConfig
	chartWidth := max(len(data.Bars)*(r.config.BarWidth+r.config.BarGap)+r.config.BarGap, minChartWidth)
	img := image.NewRGBA(image.Rect(0, 0, b.Left+chartWidth+b.Right, b.Top+r.config.ChartHeight+b.Bottom))

	// Fill with white background
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	c := &chart{
		area: image.Rect(b.Left, b.Top, b.Left+chartWidth, b.Top+r.config.ChartHeight),
		base: min(0, data.LevelMin),
	}
	step := calculateNiceLevelStep(data.LevelMax-c.base, r.config.ChartHeight)
	c.peak = c.base + math.Ceil((data.LevelMax-c.base)/step)*step
	if c.peak <= c.base {
		c.peak = c.base + step
	}

	ann, err := newAnnotator(r.config)
	if err != nil {
		return nil, fmt.Errorf("creating annotator: %w", err)
	}
	defer ann.Close()

	ann.context.SetClip(img.Bounds())
	ann.context.SetDst(img)

	if err = ann.drawLevelScale(img, c, step); err != nil {
		return nil, fmt.Errorf("drawing level scale: %w", err)
	}

	r.renderBars(img, c, data)

	if err = ann.drawFrequencyLabels(img, c, data); err != nil {
		return nil, fmt.Errorf("drawing frequency labels: %w", err)
	}
	if err = ann.drawTitle(data); err != nil {
		return nil, fmt.Errorf("drawing title: %w", err)
	}
	if err = ann.drawInfoBar(img, data); err != nil {
		return nil, fmt.Errorf("drawing info bar: %w", err)
	}

	return img, nil
}

// barX returns the left edge of the i-th bar
func barX(config RenderConfig, c *chart, i int) int {
	return c.area.Min.X + config.BarGap + i*(config.BarWidth+config.BarGap)
}

func (r *ReportRenderer) renderBars(img *image.RGBA, c *chart, data *ReportData) {
	baseY := c.levelY(max(c.base, 0))

	for i, bar := range data.Bars {
		x := barX(r.config, c, i)

		top := baseY - 2 // no data marker
		if bar.Level != nil {
			top = min(c.levelY(*bar.Level), baseY-1)
		}

		rect := image.Rect(x, top, x+r.config.BarWidth, baseY)
		draw.Draw(img, rect, image.NewUniform(levelColor(bar.Level, data.LevelMin, data.LevelMax)), image.Point{}, draw.Src)
	}

	// axis
	for x := c.area.Min.X; x < c.area.Max.X; x++ {
		img.Set(x, baseY, color.Black)
	}
}

type annotator struct {
	context  *freetype.Context
	config   RenderConfig
	fontFace font.Face
}

func newAnnotator(config RenderConfig) (*annotator, error) {
	parsedFont, err := freetype.ParseFont(gomono.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	ctx := freetype.NewContext()
	ctx.SetDPI(dpi)
	ctx.SetFont(parsedFont)
	ctx.SetFontSize(config.FontSize)
	ctx.SetHinting(font.HintingNone)
	ctx.SetSrc(image.Black)

	return &annotator{
		context: ctx,
		config:  config,
		fontFace: truetype.NewFace(parsedFont, &truetype.Options{
			Size:    config.FontSize,
			DPI:     dpi,
			Hinting: font.HintingNone,
		}),
	}, nil
}

func (a *annotator) Close() error {
	if a.fontFace != nil {
		return a.fontFace.Close()
	}
	return nil
}

func (a *annotator) fontHeight() int {
	metrics := a.fontFace.Metrics()
	return (metrics.Ascent + metrics.Descent).Round()
}

func (a *annotator) drawLevelScale(img *image.RGBA, c *chart, step float64) error {
	descent := a.fontFace.Metrics().Descent.Round()

	for level := c.base; level <= c.peak+step/2; level += step {
		y := c.levelY(level)

		// grid line and tick mark
		for x := c.area.Min.X; x < c.area.Max.X; x++ {
			img.Set(x, y, gridColor)
		}
		for x := c.area.Min.X - tickMarkWidth; x < c.area.Min.X; x++ {
			img.Set(x, y, color.Black)
		}

		label := humanize.Commaf(level)
		width := font.MeasureString(a.fontFace, label).Round()
		pt := freetype.Pt(c.area.Min.X-tickMarkWidth-3-width, y+a.fontHeight()/2-descent)
		if _, err := a.context.DrawString(label, pt); err != nil {
			return fmt.Errorf("drawing level label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawFrequencyLabels(img *image.RGBA, c *chart, data *ReportData) error {
	baseY := c.levelY(max(c.base, 0))

	// widest label decides how many bars a label spans
	var widest int
	for _, bar := range data.Bars {
		widest = max(widest, font.MeasureString(a.fontFace, humanize.Comma(bar.Frequency)).Round())
	}
	pitch := a.config.BarWidth + a.config.BarGap
	every := max(1, int(math.Ceil(float64(widest+a.config.BarGap)/float64(pitch))))

	textY := c.area.Max.Y + tickMarkWidth + a.fontHeight()
	for i, bar := range data.Bars {
		if i%every != 0 {
			continue
		}

		center := barX(a.config, c, i) + a.config.BarWidth/2
		for y := baseY; y < baseY+tickMarkWidth; y++ {
			img.Set(center, y, color.Black)
		}

		label := humanize.Comma(bar.Frequency)
		width := font.MeasureString(a.fontFace, label).Round()
		if _, err := a.context.DrawString(label, freetype.Pt(center-width/2, textY)); err != nil {
			return fmt.Errorf("drawing frequency label: %w", err)
		}
	}
	return nil
}

func (a *annotator) drawTitle(data *ReportData) error {
	title := "RSSI per frequency"
	if s := data.Session; s != nil {
		title = fmt.Sprintf("%s (%s), preset %s, session %d", s.Station, s.Role, s.Preset, s.ID)
	}

	pt := freetype.Pt(a.config.BorderConfig.Left, a.config.BorderConfig.Top/2+a.fontHeight()/2)
	_, err := a.context.DrawString(title, pt)
	return err
}

func (a *annotator) drawInfoBar(img *image.RGBA, data *ReportData) error {
	info := fmt.Sprintf("Freq: MHz; %s readings; Time: %s - %s",
		humanize.Comma(int64(data.Readings)),
		data.TimestampStart.In(a.config.Location).Format(a.config.DatetimeFormat),
		data.TimestampEnd.In(a.config.Location).Format(a.config.DatetimeFormat))

	textY := img.Bounds().Max.Y - a.fontFace.Metrics().Descent.Round() - 6
	_, err := a.context.DrawString(info, freetype.Pt(a.config.BorderConfig.Left, textY))
	return err
}

// calculateNiceLevelStep picks a 1-2-5 step giving a label every pixelsPerLabel
func calculateNiceLevelStep(span float64, height int) float64 {
	if span <= 0 {
		return 1
	}

	desiredSteps := max(1, float64(height)/pixelsPerLabel)
	rough := span / desiredSteps

	magnitude := math.Pow(10, math.Floor(math.Log10(rough)))
	for _, m := range []float64{1, 2, 5, 10} {
		if step := m * magnitude; step >= rough {
			return max(step, 1)
		}
	}
	return max(10*magnitude, 1)
}
