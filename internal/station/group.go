package station

import (
	"context"
	"errors"
	"fmt"

	"github.com/roman-kulish/antenna-station/internal/spectrum"
)

// Group is the set of stations run by one process
type Group struct {
	stations []*Station
}

func NewGroup(stations ...*Station) *Group {
	return &Group{stations: stations}
}

func (g *Group) Stations() []*Station {
	return g.stations
}

// Station looks a station up by name
func (g *Group) Station(name string) (*Station, bool) {
	for _, s := range g.stations {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// StopAll stops the scans of every station
func (g *Group) StopAll() {
	for _, s := range g.stations {
		s.StopScan()
	}
}

// SyncFrequency stops every scan, then sets f on each station configured with
// the named preset. Stations on other presets keep their frequency.
func (g *Group) SyncFrequency(ctx context.Context, f spectrum.Frequency, preset string) error {
	g.StopAll()

	var errs []error
	for _, s := range g.stations {
		if s.Preset().Name != preset {
			continue
		}
		if err := s.SetFrequency(ctx, f); err != nil {
			errs = append(errs, fmt.Errorf("station '%s': %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every station
func (g *Group) Close() error {
	var errs []error
	for _, s := range g.stations {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("station '%s': %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
