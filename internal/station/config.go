package station

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/roman-kulish/antenna-station/internal/spectrum"
)

const (
	// RoleStation owns an antenna link, reports RSSI and follows frequencies from the bus
	RoleStation Role = "station"
	// RoleTower has no antenna, chooses frequencies and collects RSSI from the bus
	RoleTower Role = "tower"
)

const (
	HistorySize = 5

	MinScanDelay     = time.Second
	MaxScanDelay     = 10 * time.Second
	DefaultScanDelay = 3 * time.Second
	DefaultScanStep  = 10
)

// ScanSteps are the supported ByStep strides in MHz
var ScanSteps = []int64{1, 5, 10, 20}

var (
	ErrInvalidScanDelay = fmt.Errorf("scan delay must be between %s and %s", MinScanDelay, MaxScanDelay)
	ErrInvalidScanStep  = fmt.Errorf("scan step must be one of %v", ScanSteps)
)

// Role selects which side of the bus a station is on
type Role string

// ParseRole parses a role name. Matching is case-insensitive.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleStation, RoleTower:
		return r, nil
	}
	return "", fmt.Errorf("station.Role: unknown role '%s'", s)
}

// ScanConfig holds the scan settings a station starts with
type ScanConfig struct {
	Mode  spectrum.ScanMode
	Delay time.Duration
	Step  int64
}

// DefaultScanConfig returns the WithinPreset mode with default delay and step
func DefaultScanConfig() ScanConfig {
	return ScanConfig{
		Mode:  spectrum.WithinPreset,
		Delay: DefaultScanDelay,
		Step:  DefaultScanStep,
	}
}

func (c *ScanConfig) Validate() error {
	if err := ValidateScanDelay(c.Delay); err != nil {
		return err
	}
	return ValidateScanStep(c.Step)
}

// Config is the configuration of a single station
type Config struct {
	Name     string
	Location string
	Role     Role
	Preset   spectrum.Preset
	Scan     ScanConfig
}

func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New("station.Config: name is required")
	}
	if strings.ContainsAny(c.Name, ".*> \t") {
		return fmt.Errorf("station.Config: invalid name '%s'", c.Name)
	}
	if _, err := ParseRole(string(c.Role)); err != nil {
		return fmt.Errorf("station.Config '%s': %w", c.Name, err)
	}
	if err := c.Preset.Validate(); err != nil {
		return fmt.Errorf("station.Config '%s': %w", c.Name, err)
	}
	if err := c.Scan.Validate(); err != nil {
		return fmt.Errorf("station.Config '%s': %w", c.Name, err)
	}
	return nil
}

func ValidateScanDelay(d time.Duration) error {
	if d < MinScanDelay || d > MaxScanDelay {
		return fmt.Errorf("%w: %s", ErrInvalidScanDelay, d)
	}
	return nil
}

func ValidateScanStep(step int64) error {
	if !slices.Contains(ScanSteps, step) {
		return fmt.Errorf("%w: %d", ErrInvalidScanStep, step)
	}
	return nil
}
