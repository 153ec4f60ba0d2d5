package app

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/antenna-station/internal/spectrum"
	"github.com/roman-kulish/antenna-station/internal/station"
)

func newTestTower(t *testing.T, name, preset string) *station.Station {
	t.Helper()

	s, err := station.New(station.Config{
		Name:   name,
		Role:   station.RoleTower,
		Preset: spectrum.Preset{Name: preset, MinFrequency: 100, MaxFrequency: 140, Frequencies: spectrum.FrequencyList{"100", "110", "120"}},
		Scan:   station.DefaultScanConfig(),
	})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	return s
}

func newTestConsole(t *testing.T) (*Console, *station.Group, *bytes.Buffer) {
	t.Helper()

	group := station.NewGroup(
		newTestTower(t, "a", "1.2"),
		newTestTower(t, "b", "1.2"),
		newTestTower(t, "c", "5.8"),
	)
	t.Cleanup(func() { _ = group.Close() })

	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	return NewConsole(group, &out, logger), group, &out
}

func TestConsole_Frequency(t *testing.T) {
	console, group, out := newTestConsole(t)
	ctx := context.Background()

	require.NoError(t, console.Execute(ctx, "freq a 0120"))
	a, _ := group.Station("a")
	assert.EqualValues(t, "120", a.Frequency())

	require.NoError(t, console.Execute(ctx, "history a"))
	assert.Contains(t, out.String(), "120 MHz")
	assert.Contains(t, out.String(), spectrum.RSSIPending)

	assert.Error(t, console.Execute(ctx, "freq a"))
	assert.Error(t, console.Execute(ctx, "freq a abc"))
	assert.ErrorContains(t, console.Execute(ctx, "freq z 100"), "unknown station")
	assert.ErrorIs(t, console.Execute(ctx, "tune a 100"), ErrUnknownCommand)
}

func TestConsole_ScanSettings(t *testing.T) {
	console, group, _ := newTestConsole(t)
	ctx := context.Background()
	a, _ := group.Station("a")

	require.NoError(t, console.Execute(ctx, "mode a byStep"))
	require.NoError(t, console.Execute(ctx, "delay a 2"))
	require.NoError(t, console.Execute(ctx, "step a 5"))

	settings := a.ScanSettings()
	assert.Equal(t, spectrum.ByStep, settings.Mode)
	assert.Equal(t, 2*time.Second, settings.Delay)
	assert.EqualValues(t, 5, settings.Step)

	require.NoError(t, console.Execute(ctx, "delay a 1500ms"))
	assert.Equal(t, 1500*time.Millisecond, a.ScanSettings().Delay)

	assert.ErrorIs(t, console.Execute(ctx, "delay a 11s"), station.ErrInvalidScanDelay)
	assert.ErrorIs(t, console.Execute(ctx, "step a 3"), station.ErrInvalidScanStep)

	require.NoError(t, console.Execute(ctx, "scan a"))
	assert.True(t, a.Scanning())
	require.NoError(t, console.Execute(ctx, "scan a"))
	assert.False(t, a.Scanning())
}

func TestConsole_BusModeRejectsControls(t *testing.T) {
	console, group, out := newTestConsole(t)
	ctx := context.Background()
	a, _ := group.Station("a")

	require.NoError(t, console.Execute(ctx, "local a"))
	assert.False(t, a.Local())
	assert.Contains(t, out.String(), "listening to the bus")

	for _, line := range []string{"freq a 110", "scan a", "mode a byStep", "delay a 2", "step a 5"} {
		assert.ErrorIs(t, console.Execute(ctx, line), ErrNotLocal, line)
	}
	assert.EqualValues(t, "100", a.Frequency())

	// history stays readable
	assert.NoError(t, console.Execute(ctx, "history a"))

	require.NoError(t, console.Execute(ctx, "local a"))
	assert.NoError(t, console.Execute(ctx, "freq a 110"))
}

func TestConsole_GroupCommands(t *testing.T) {
	console, group, _ := newTestConsole(t)
	ctx := context.Background()

	for _, s := range group.Stations() {
		require.NoError(t, s.StartScan(false))
	}

	require.NoError(t, console.Execute(ctx, "sync 130 1.2"))
	for _, s := range group.Stations() {
		assert.False(t, s.Scanning(), s.Name())
	}

	a, _ := group.Station("a")
	c, _ := group.Station("c")
	assert.EqualValues(t, "130", a.Frequency())
	assert.EqualValues(t, "100", c.Frequency())

	require.NoError(t, c.StartScan(false))
	require.NoError(t, console.Execute(ctx, "stop-all"))
	assert.False(t, c.Scanning())

	assert.Error(t, console.Execute(ctx, "sync 130"))
}

func TestConsole_Run(t *testing.T) {
	console, group, out := newTestConsole(t)
	console.Watch()

	in := strings.NewReader("help\n\nfreq b 110\nbogus\nlist\nquit\nfreq b 120\n")
	require.NoError(t, console.Run(context.Background(), in))

	b, _ := group.Station("b")
	assert.EqualValues(t, "110", b.Frequency(), "commands after quit are not executed")

	output := out.String()
	assert.Contains(t, output, "commands:")
	assert.Contains(t, output, "error: unknown command 'bogus'")
	assert.Contains(t, output, "STATION")
	assert.Contains(t, output, "110 MHz")
}
