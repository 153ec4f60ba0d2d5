package app

import (
	"flag"
	"io"
	"strings"
	"testing"
	"time"
)

func parseArgs(args ...string) (*Config, error) {
	fs := flag.NewFlagSet("rssi-report", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return NewConfigFromArgs(fs, args)
}

func TestNewConfigFromArgs(t *testing.T) {
	config, err := parseArgs("-db", "session.sqlite", "-s", "3", "-o", "report", "-f", "JPEG",
		"-min-freq", "5700", "-max-freq", "05900", "-from", "2024-05-01T12:00:00Z", "-tz", "UTC")
	if err != nil {
		t.Fatalf("NewConfigFromArgs: %v", err)
	}

	if config.OutputFile != "report.jpeg" || config.Format != ImageJPEG {
		t.Errorf("output = %s (%s)", config.OutputFile, config.Format)
	}
	if config.SessionID != 3 {
		t.Errorf("session = %d, want 3", config.SessionID)
	}
	if config.MinFrequency == nil || *config.MinFrequency != "5700" {
		t.Errorf("min frequency = %v", config.MinFrequency)
	}
	if config.MaxFrequency == nil || *config.MaxFrequency != "5900" {
		t.Errorf("max frequency = %v", config.MaxFrequency)
	}
	if config.MinTimestamp == nil || !config.MinTimestamp.Equal(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("from = %v", config.MinTimestamp)
	}
	if config.MaxTimestamp != nil {
		t.Errorf("to = %v, want nil", config.MaxTimestamp)
	}
	if config.TimeZone != time.UTC {
		t.Errorf("time zone = %v", config.TimeZone)
	}
}

func TestNewConfigFromArgs_List(t *testing.T) {
	config, err := parseArgs("-db", "session.sqlite", "-list")
	if err != nil {
		t.Fatalf("NewConfigFromArgs: %v", err)
	}
	if !config.ListSessions {
		t.Error("expected list mode")
	}
}

func TestNewConfigFromArgs_Invalid(t *testing.T) {
	tests := []struct {
		args    []string
		wantErr string
	}{
		{[]string{"-s", "1", "-o", "out"}, "db path is required"},
		{[]string{"-db", "x", "-o", "out"}, "session id is required"},
		{[]string{"-db", "x", "-s", "1"}, "output file is required"},
		{[]string{"-db", "x", "-s", "1", "-o", "out", "-f", "gif"}, "invalid image format"},
		{[]string{"-db", "x", "-s", "1", "-o", "out", "-min-freq", "low"}, "min-freq"},
		{[]string{"-db", "x", "-s", "1", "-o", "out", "-to", "yesterday"}, "to"},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			_, err := parseArgs(tt.args...)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}
