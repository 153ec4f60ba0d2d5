package app

import (
	"bytes"
	"context"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/roman-kulish/antenna-station/internal/spectrum"
	"github.com/roman-kulish/antenna-station/internal/storage"
)

func newTestDatabase(t *testing.T) (string, int64) {
	t.Helper()

	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "session.sqlite")
	store := storage.NewSqliteStore(dbPath)

	id, err := store.CreateSession(ctx, "north-1", "station", "5.8")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	base := time.Now().Add(-time.Minute)
	readings := []spectrum.RSSIReading{
		{Frequency: "5658", RSSI: "12", Timestamp: base},
		{Frequency: "5695", RSSI: "48", Timestamp: base.Add(3 * time.Second)},
		{Frequency: "5732", RSSI: "20", Timestamp: base.Add(6 * time.Second)},
		{Frequency: "5658", RSSI: "15", Timestamp: base.Add(9 * time.Second)},
	}
	if err = store.StoreReadings(ctx, id, readings); err != nil {
		t.Fatalf("StoreReadings: %v", err)
	}
	if err = store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	return dbPath, id
}

func TestRun(t *testing.T) {
	dbPath, id := newTestDatabase(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	config := NewConfig()
	config.DBPath = dbPath
	config.SessionID = id
	config.OutputFile = filepath.Join(t.TempDir(), "report.png")

	var out bytes.Buffer
	if err := Run(context.Background(), config, &out, logger); err != nil {
		t.Fatalf("Run: %v", err)
	}

	summary := out.String()
	for _, want := range []string{"north-1 (station), preset 5.8", "4 readings on 3 frequencies", "Strongest: 5.695 GHz, RSSI 48"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q:\n%s", want, summary)
		}
	}

	f, err := os.Open(config.OutputFile)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}
	defer f.Close()

	if _, err = png.Decode(f); err != nil {
		t.Errorf("report is not a PNG: %v", err)
	}
}

func TestRun_Filters(t *testing.T) {
	dbPath, id := newTestDatabase(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	minFreq := spectrum.Frequency("5690")
	config := NewConfig()
	config.DBPath = dbPath
	config.SessionID = id
	config.MinFrequency = &minFreq
	config.OutputFile = filepath.Join(t.TempDir(), "report.png")

	var out bytes.Buffer
	if err := Run(context.Background(), config, &out, logger); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(out.String(), "2 readings on 2 frequencies") {
		t.Errorf("unexpected summary:\n%s", out.String())
	}

	maxFreq := spectrum.Frequency("5600")
	config.MinFrequency = nil
	config.MaxFrequency = &maxFreq
	if err := Run(context.Background(), config, io.Discard, logger); err == nil {
		t.Error("expected error for a report without readings")
	}
}

func TestRun_ListSessions(t *testing.T) {
	dbPath, _ := newTestDatabase(t)

	config := NewConfig()
	config.DBPath = dbPath
	config.ListSessions = true

	var out bytes.Buffer
	if err := Run(context.Background(), config, &out, slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
		t.Fatalf("Run: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header and one session, got:\n%s", out.String())
	}
	if fields := strings.Fields(lines[1]); fields[1] != "north-1" || fields[len(fields)-1] != "3" {
		t.Errorf("unexpected session line: %q", lines[1])
	}
}

func TestRun_MissingDatabase(t *testing.T) {
	config := NewConfig()
	config.DBPath = filepath.Join(t.TempDir(), "missing.sqlite")
	config.SessionID = 1

	if err := Run(context.Background(), config, io.Discard, slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Error("expected error for a missing database")
	}
}
