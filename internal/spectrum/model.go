package spectrum

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// WithinPreset iterates the curated frequency list of a preset
	WithinPreset ScanMode = iota
	// ByStep iterates an arithmetic sequence [min, max) of a preset with a fixed stride
	ByStep
)

// RSSIPending is shown for a frequency which has been tuned but has no RSSI reading yet.
const RSSIPending = "..."

// ScanMode selects how a scan list is generated.
type ScanMode int

func (m ScanMode) String() string {
	switch m {
	case WithinPreset:
		return "withinPreset"
	case ByStep:
		return "byStep"
	}
	return fmt.Sprintf("ScanMode(%d)", int(m))
}

// ParseScanMode parses a scan mode name. Matching is case-insensitive.
func ParseScanMode(s string) (ScanMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "withinpreset", "within-preset", "preset":
		return WithinPreset, nil
	case "bystep", "by-step", "step":
		return ByStep, nil
	}
	return 0, fmt.Errorf("spectrum.ScanMode: unknown mode '%s'", s)
}

func (m *ScanMode) UnmarshalYAML(value *yaml.Node) error {
	mode, err := ParseScanMode(value.Value)
	if err != nil {
		return err
	}

	*m = mode
	return nil
}

func (m ScanMode) MarshalYAML() (interface{}, error) {
	return m.String(), nil
}

// RSSIReading is a signal strength reading correlated to the frequency it was taken on.
type RSSIReading struct {
	Frequency Frequency `json:"frequency"` // Frequency the antenna was tuned to
	RSSI      string    `json:"rssi"`      // Literal digit string reported by the antenna
	Timestamp time.Time `json:"timestamp"` // When the reading was received
}

// Preset is a named frequency band with a curated list of frequencies.
type Preset struct {
	Name         string        `yaml:"name" json:"name"`
	MinFrequency int64         `yaml:"minFrequency" json:"minFrequency"`
	MaxFrequency int64         `yaml:"maxFrequency" json:"maxFrequency"`
	Frequencies  FrequencyList `yaml:"frequencies" json:"frequencies"`
}

func (p *Preset) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("spectrum.Preset: name is required")
	}
	if p.MinFrequency <= 0 {
		return fmt.Errorf("spectrum.Preset '%s': min frequency must be positive: %d", p.Name, p.MinFrequency)
	}
	if p.MaxFrequency <= p.MinFrequency {
		return fmt.Errorf("spectrum.Preset '%s': max frequency must be greater than min: %d <= %d", p.Name, p.MaxFrequency, p.MinFrequency)
	}
	if err := p.Frequencies.Validate(); err != nil {
		return fmt.Errorf("spectrum.Preset '%s': %w", p.Name, err)
	}
	return nil
}

// MinFrequencyValue returns the lower band edge as a Frequency.
func (p *Preset) MinFrequencyValue() Frequency {
	return NewFrequency(p.MinFrequency)
}

// List returns the scan list for the given mode. The step is only used by ByStep.
func (p *Preset) List(mode ScanMode, step int64) (FrequencyList, error) {
	switch mode {
	case WithinPreset:
		return p.Frequencies.Clone(), nil
	case ByStep:
		return StepList(p.MinFrequency, p.MaxFrequency, step)
	}
	return nil, fmt.Errorf("spectrum.Preset: unsupported scan mode: %s", mode)
}

// FindPreset looks a preset up by name.
func FindPreset(presets []Preset, name string) (*Preset, bool) {
	for i := range presets {
		if presets[i].Name == name {
			return &presets[i], true
		}
	}
	return nil, false
}
