package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/roman-kulish/antenna-station/internal/antenna"
	"github.com/roman-kulish/antenna-station/internal/bus"
	"github.com/roman-kulish/antenna-station/internal/scan"
	"github.com/roman-kulish/antenna-station/internal/spectrum"
)

var (
	_ scan.Metrics    = (*StationMetrics)(nil)
	_ antenna.Metrics = (*StationMetrics)(nil)
	_ bus.Metrics     = (*Collector)(nil)
)

func TestStationMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	m := collector.Station("north-1")

	m.ScanActive(true)
	m.ScanStep("400")
	m.TuneSent("400")
	m.RSSIReceived(spectrum.RSSIReading{Frequency: "400", RSSI: "123", Timestamp: time.Now()})
	m.RSSIReceived(spectrum.RSSIReading{Frequency: "400", RSSI: "not-a-number", Timestamp: time.Now()})
	m.FrameError(antenna.FrameDecodeFailure)
	m.FrameError(antenna.FrameParseFailure)
	m.FrameError(antenna.FrameParseFailure)

	if got := testutil.ToFloat64(collector.ScanActive.WithLabelValues("north-1")); got != 1 {
		t.Errorf("scan_active = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.ScanSteps.WithLabelValues("north-1")); got != 1 {
		t.Errorf("scan_steps_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.TuneCommands.WithLabelValues("north-1")); got != 1 {
		t.Errorf("antenna_tune_commands_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(collector.TunedFreq.WithLabelValues("north-1")); got != 400 {
		t.Errorf("antenna_tuned_frequency_mhz = %v, want 400", got)
	}
	if got := testutil.ToFloat64(collector.RSSIReadings.WithLabelValues("north-1")); got != 2 {
		t.Errorf("antenna_rssi_readings_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(collector.LastRSSI.WithLabelValues("north-1")); got != 123 {
		t.Errorf("antenna_last_rssi = %v, want 123", got)
	}
	if got := testutil.ToFloat64(collector.FrameErrors.WithLabelValues("north-1", "parse")); got != 2 {
		t.Errorf("antenna_frame_errors_total{kind=parse} = %v, want 2", got)
	}
	if got := testutil.CollectAndCount(collector.RSSIIntervals); got != 1 {
		t.Errorf("antenna_rssi_interval_seconds series = %d, want 1", got)
	}

	m.ScanActive(false)
	if got := testutil.ToFloat64(collector.ScanActive.WithLabelValues("north-1")); got != 0 {
		t.Errorf("scan_active = %v, want 0", got)
	}
}

func TestCollectorReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()

	first, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	second, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("second NewCollector: %v", err)
	}

	first.BusMessage("in", bus.TopicRSSI)
	second.BusMessage("in", bus.TopicRSSI)

	if got := testutil.ToFloat64(first.BusMessages.WithLabelValues("in", "rssi")); got != 2 {
		t.Errorf("bus_messages_total = %v, want 2", got)
	}
}

func TestMetricsHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	collector.Station("tower").ScanStep("5800")
	collector.BusMessage("out", bus.TopicFrequency)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	collector.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}

	body, _ := io.ReadAll(rr.Body)
	for _, want := range []string{
		`scan_steps_total{station="tower"} 1`,
		`bus_messages_total{direction="out",topic="frequency"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
