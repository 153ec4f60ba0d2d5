package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roman-kulish/antenna-station/internal/antenna"
	"github.com/roman-kulish/antenna-station/internal/bus"
	"github.com/roman-kulish/antenna-station/internal/spectrum"
)

// Collector bundles Prometheus metrics of stations, their antenna links and the bus.
type Collector struct {
	gatherer prometheus.Gatherer

	TuneCommands  *prometheus.CounterVec
	RSSIReadings  *prometheus.CounterVec
	FrameErrors   *prometheus.CounterVec
	ScanSteps     *prometheus.CounterVec
	BusMessages   *prometheus.CounterVec
	LastRSSI      *prometheus.GaugeVec
	TunedFreq     *prometheus.GaugeVec
	ScanActive    *prometheus.GaugeVec
	RSSIIntervals *prometheus.HistogramVec
}

// NewCollector registers the metrics against the provided registerer,
// defaulting to the global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := Collector{gatherer: gatherer}
	var err error

	if c.TuneCommands, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "antenna_tune_commands_total",
		Help: "Total number of tune commands written to antenna links.",
	}, []string{"station"}), "antenna_tune_commands_total"); err != nil {
		return nil, err
	}
	if c.RSSIReadings, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "antenna_rssi_readings_total",
		Help: "Total number of RSSI readings received from antenna links.",
	}, []string{"station"}), "antenna_rssi_readings_total"); err != nil {
		return nil, err
	}
	if c.FrameErrors, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "antenna_frame_errors_total",
		Help: "Total number of undecodable or unparseable antenna responses, labeled by kind.",
	}, []string{"station", "kind"}), "antenna_frame_errors_total"); err != nil {
		return nil, err
	}
	if c.ScanSteps, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scan_steps_total",
		Help: "Total number of frequencies requested by scan sessions.",
	}, []string{"station"}), "scan_steps_total"); err != nil {
		return nil, err
	}
	if c.BusMessages, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bus_messages_total",
		Help: "Total number of bus messages, labeled by direction and topic.",
	}, []string{"direction", "topic"}), "bus_messages_total"); err != nil {
		return nil, err
	}
	if c.LastRSSI, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "antenna_last_rssi",
		Help: "Last numeric RSSI reported by the antenna.",
	}, []string{"station"}), "antenna_last_rssi"); err != nil {
		return nil, err
	}
	if c.TunedFreq, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "antenna_tuned_frequency_mhz",
		Help: "Frequency the antenna was last tuned to, in MHz.",
	}, []string{"station"}), "antenna_tuned_frequency_mhz"); err != nil {
		return nil, err
	}
	if c.ScanActive, err = registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scan_active",
		Help: "1 while a scan session is running, 0 otherwise.",
	}, []string{"station"}), "scan_active"); err != nil {
		return nil, err
	}
	if c.RSSIIntervals, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "antenna_rssi_interval_seconds",
		Help:    "Time between a tune command and the first RSSI reading on the new frequency.",
		Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"station"}), "antenna_rssi_interval_seconds"); err != nil {
		return nil, err
	}

	return &c, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *Collector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// BusMessage satisfies bus.Metrics
func (c *Collector) BusMessage(direction string, topic bus.Topic) {
	if c == nil {
		return
	}
	c.BusMessages.WithLabelValues(direction, string(topic)).Inc()
}

// Station returns a recorder for the metrics of one station. It satisfies the
// scan and antenna Metrics interfaces.
func (c *Collector) Station(name string) *StationMetrics {
	return &StationMetrics{c: c, station: name}
}

// StationMetrics records metrics labeled with a station name
type StationMetrics struct {
	c       *Collector
	station string

	// tunedAt is written by TuneSent and read by RSSIReceived; the antenna
	// link calls both from its event goroutine.
	tunedAt time.Time
}

func (m *StationMetrics) ScanStep(spectrum.Frequency) {
	m.c.ScanSteps.WithLabelValues(m.station).Inc()
}

func (m *StationMetrics) ScanActive(active bool) {
	var v float64
	if active {
		v = 1
	}
	m.c.ScanActive.WithLabelValues(m.station).Set(v)
}

func (m *StationMetrics) TuneSent(f spectrum.Frequency) {
	m.c.TuneCommands.WithLabelValues(m.station).Inc()
	if v, err := f.Value(); err == nil {
		m.c.TunedFreq.WithLabelValues(m.station).Set(float64(v))
	}
	m.tunedAt = time.Now()
}

func (m *StationMetrics) RSSIReceived(r spectrum.RSSIReading) {
	m.c.RSSIReadings.WithLabelValues(m.station).Inc()
	if v, err := strconv.ParseFloat(r.RSSI, 64); err == nil {
		m.c.LastRSSI.WithLabelValues(m.station).Set(v)
	}
	if !m.tunedAt.IsZero() {
		m.c.RSSIIntervals.WithLabelValues(m.station).Observe(r.Timestamp.Sub(m.tunedAt).Seconds())
		m.tunedAt = time.Time{}
	}
}

func (m *StationMetrics) FrameError(kind antenna.FrameErrorKind) {
	m.c.FrameErrors.WithLabelValues(m.station, string(kind)).Inc()
}

// Serve exposes the handler at /metrics on addr until ctx is done.
func (c *Collector) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", slog.String("address", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server: %w", err)

	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	}
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}
