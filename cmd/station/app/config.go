package app

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/antenna-station/internal/antenna"
	"github.com/roman-kulish/antenna-station/internal/bus"
	"github.com/roman-kulish/antenna-station/internal/spectrum"
	"github.com/roman-kulish/antenna-station/internal/station"
)

const (
	defaultBusName       = "antenna-station"
	defaultMaxReconnects = 60
	defaultReconnectWait = 2 * time.Second
)

// Config represents the main application configuration
type Config struct {
	Settings Settings          `yaml:"settings"`
	Bus      BusConfig         `yaml:"bus"`
	Storage  StorageConfig     `yaml:"storage"`
	Presets  []spectrum.Preset `yaml:"presets"`
	Stations []StationConfig   `yaml:"stations"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel       LogLevel     `yaml:"logLevel"`
	Role           station.Role `yaml:"role"`
	MetricsAddress string       `yaml:"metricsAddress"`
	Console        bool         `yaml:"console"`
}

// BusConfig represents the message bus settings. An empty URL keeps the
// frequency and RSSI mirroring inside the process.
type BusConfig struct {
	URL           string       `yaml:"url"`
	Name          string       `yaml:"name"`
	MaxReconnects int          `yaml:"maxReconnects"`
	ReconnectWait TimeDuration `yaml:"reconnectWait"`
}

// StorageConfig represents storage settings
type StorageConfig struct {
	DataDirectory string `yaml:"dataDirectory"`
	Enabled       bool   `yaml:"enabled"`
}

// StationConfig represents a single station configuration
type StationConfig struct {
	Name       string     `yaml:"name"`
	Location   string     `yaml:"location"`
	Preset     string     `yaml:"preset"`
	SerialPort string     `yaml:"serialPort"`
	Enabled    bool       `yaml:"enabled"`
	Scan       ScanConfig `yaml:"scan"`
}

// ScanConfig represents the scan settings a station starts with
type ScanConfig struct {
	Mode  spectrum.ScanMode `yaml:"mode"`
	Delay TimeDuration      `yaml:"delay"`
	Step  int64             `yaml:"step"`
}

// LoadConfig reads the configuration file at path, applies defaults and
// validates the result
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig parses a YAML configuration, applies defaults and validates the result
func ParseConfig(data []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	config.setDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) setDefaults() {
	if c.Settings.Role == "" {
		c.Settings.Role = station.RoleStation
	}
	if c.Bus.Name == "" {
		c.Bus.Name = defaultBusName
	}
	if c.Bus.MaxReconnects == 0 {
		c.Bus.MaxReconnects = defaultMaxReconnects
	}
	if c.Bus.ReconnectWait == 0 {
		c.Bus.ReconnectWait = NewTimeDuration(defaultReconnectWait)
	}

	defaults := station.DefaultScanConfig()
	for i := range c.Stations {
		scan := &c.Stations[i].Scan
		if scan.Delay == 0 {
			scan.Delay = NewTimeDuration(defaults.Delay)
		}
		if scan.Step == 0 {
			scan.Step = defaults.Step
		}
	}
}

func (c *Config) Validate() error {
	role, err := station.ParseRole(string(c.Settings.Role))
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}
	c.Settings.Role = role

	if err = c.Bus.ReconnectWait.Validate(); err != nil {
		return fmt.Errorf("bus: %w", err)
	}

	for i := range c.Presets {
		if err = c.Presets[i].Validate(); err != nil {
			return err
		}
		if _, ok := spectrum.FindPreset(c.Presets[:i], c.Presets[i].Name); ok {
			return fmt.Errorf("preset '%s' is defined more than once", c.Presets[i].Name)
		}
	}

	names := make(map[string]struct{}, len(c.Stations))
	for _, sc := range c.Stations {
		if _, ok := names[sc.Name]; ok {
			return fmt.Errorf("station '%s' is defined more than once", sc.Name)
		}
		names[sc.Name] = struct{}{}

		if _, err = c.StationConfig(sc); err != nil {
			return err
		}
		if role == station.RoleStation && sc.SerialPort == "" && sc.Enabled {
			return fmt.Errorf("station '%s': serial port is required", sc.Name)
		}
	}

	if len(c.EnabledStations()) == 0 {
		return errors.New("no stations enabled in configuration")
	}

	return nil
}

// EnabledStations returns the stations to run
func (c *Config) EnabledStations() []StationConfig {
	var enabled []StationConfig
	for _, sc := range c.Stations {
		if sc.Enabled {
			enabled = append(enabled, sc)
		}
	}
	return enabled
}

// StationConfig resolves the preset of sc and returns the station configuration
func (c *Config) StationConfig(sc StationConfig) (station.Config, error) {
	preset, ok := spectrum.FindPreset(c.Presets, sc.Preset)
	if !ok {
		return station.Config{}, fmt.Errorf("station '%s': unknown preset '%s'", sc.Name, sc.Preset)
	}

	config := station.Config{
		Name:     sc.Name,
		Location: sc.Location,
		Role:     c.Settings.Role,
		Preset:   *preset,
		Scan: station.ScanConfig{
			Mode:  sc.Scan.Mode,
			Delay: sc.Scan.Delay.Duration(),
			Step:  sc.Scan.Step,
		},
	}
	if err := config.Validate(); err != nil {
		return station.Config{}, err
	}

	return config, nil
}

// AntennaConfig returns the serial configuration of sc
func (sc *StationConfig) AntennaConfig() antenna.Config {
	return antenna.NewConfig(sc.SerialPort)
}

// BusConfig returns the NATS configuration
func (c *Config) BusConfig() bus.Config {
	return bus.Config{
		URL:           c.Bus.URL,
		Name:          c.Bus.Name,
		MaxReconnects: c.Bus.MaxReconnects,
		ReconnectWait: c.Bus.ReconnectWait.Duration(),
	}
}
