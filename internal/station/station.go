package station

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roman-kulish/antenna-station/internal/antenna"
	"github.com/roman-kulish/antenna-station/internal/bus"
	"github.com/roman-kulish/antenna-station/internal/scan"
	"github.com/roman-kulish/antenna-station/internal/spectrum"
)

var (
	// ErrNotReady is returned when tuning a station whose antenna link could not be opened
	ErrNotReady = errors.New("station is not ready")

	// ErrNoLink is returned when a station role is configured without an antenna link
	ErrNoLink = errors.New("station role requires an antenna link")
)

// Link is the antenna link of a station
type Link interface {
	Open() error
	Close() error
	Tune(ctx context.Context, f spectrum.Frequency) error
	OnRSSI(h antenna.RSSIHandler)
	OnReadError(h antenna.ReadErrorHandler)
}

// Recorder persists the RSSI readings of a station
type Recorder interface {
	CreateSession(ctx context.Context, station, role, preset string) (int64, error)
	StoreReading(ctx context.Context, sessionID int64, r spectrum.RSSIReading) error
}

// HistoryEntry is a frequency the station was set to and the RSSI reported for it
type HistoryEntry struct {
	Frequency spectrum.Frequency `json:"frequency"`
	RSSI      string             `json:"rssi"`
}

// StatusHandler receives human-readable status updates of a station
type StatusHandler func(station, status string)

// WithLogger sets the logger for the station
func WithLogger(logger *slog.Logger) func(s *Station) {
	return func(s *Station) {
		s.logger = logger.With(
			slog.String("station", s.config.Name),
			slog.String("role", string(s.config.Role)),
		)
	}
}

// WithLink sets the antenna link. It is required for the station role and ignored by towers.
func WithLink(link Link) func(s *Station) {
	return func(s *Station) {
		s.link = link
	}
}

// WithBus mirrors frequencies and RSSI readings over b
func WithBus(b bus.Bus) func(s *Station) {
	return func(s *Station) {
		s.bus = b
	}
}

// WithRecorder persists RSSI readings into a new session of r
func WithRecorder(r Recorder) func(s *Station) {
	return func(s *Station) {
		s.recorder = r
	}
}

// WithScanMetrics sets the metrics recorder for the station's scans
func WithScanMetrics(m scan.Metrics) func(s *Station) {
	return func(s *Station) {
		s.scanMetrics = m
	}
}

// Station keeps the current frequency of one antenna (or of one remote antenna,
// for a tower), its recent history, and drives frequency scans.
type Station struct {
	config Config

	link        Link
	bus         bus.Bus
	recorder    Recorder
	scanner     *scan.Scheduler
	scanMetrics scan.Metrics

	// setMu serialises frequency changes so the antenna is tuned in the same
	// order the current frequency is updated
	setMu sync.Mutex

	// scanMu serialises scan control; it is never held while waiting on setMu
	scanMu sync.Mutex

	mu        sync.Mutex
	frequency spectrum.Frequency
	history   []HistoryEntry
	local     bool
	ready     bool
	scan      ScanConfig
	sessionID int64
	subs      []bus.Subscription
	status    string

	handlersMu     sync.RWMutex
	statusHandlers []StatusHandler

	logger *slog.Logger
}

// New creates a station. A station role starts listening to the bus, a tower
// starts in local mode. The current frequency starts at the preset's lower edge.
func New(config Config, options ...func(s *Station)) (*Station, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := Station{
		config:    config,
		frequency: config.Preset.MinFrequencyValue(),
		local:     config.Role == RoleTower,
		scan:      config.Scan,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&s)
	}

	if config.Role == RoleStation {
		if s.link == nil {
			return nil, fmt.Errorf("station '%s': %w", config.Name, ErrNoLink)
		}
		s.link.OnRSSI(s.onAntennaRSSI)
		s.link.OnReadError(s.onAntennaReadError)
	} else {
		s.link = nil
	}

	schedulerOptions := []func(*scan.Scheduler){scan.WithLogger(s.logger)}
	if s.scanMetrics != nil {
		schedulerOptions = append(schedulerOptions, scan.WithMetrics(s.scanMetrics))
	}
	s.scanner = scan.NewScheduler(schedulerOptions...)
	s.scanner.OnFrequencyRequested(s.onScanFrequency)

	return &s, nil
}

// Start opens the antenna link, starts a recording session and subscribes to
// the bus. When the link cannot be opened the station stays not ready and the
// *antenna.LinkOpenError is returned; there is no retry.
func (s *Station) Start(ctx context.Context) error {
	if s.recorder != nil {
		id, err := s.recorder.CreateSession(ctx, s.config.Name, string(s.config.Role), s.config.Preset.Name)
		if err != nil {
			s.logger.Warn(fmt.Sprintf("readings will not be recorded: %s", err.Error()))
		} else {
			s.mu.Lock()
			s.sessionID = id
			s.mu.Unlock()
		}
	}

	if s.link != nil {
		if err := s.link.Open(); err != nil {
			s.setStatus(fmt.Sprintf("Failed to connect to the antenna: %s. Check the port and restart.", err.Error()))
			s.logger.Error(err.Error())
			return err
		}
	}

	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()

	if s.bus != nil {
		if err := s.subscribe(); err != nil {
			return err
		}
	}

	s.logger.Info("station started", slog.String("preset", s.config.Preset.Name))

	return nil
}

func (s *Station) subscribe() error {
	var sub bus.Subscription
	var err error

	switch s.config.Role {
	case RoleStation:
		sub, err = s.bus.Subscribe(bus.TopicFrequency, s.config.Name, s.onBusFrequency)
	case RoleTower:
		sub, err = s.bus.Subscribe(bus.TopicRSSI, s.config.Name, s.onBusRSSI)
	}
	if err != nil {
		return fmt.Errorf("station '%s': %w", s.config.Name, err)
	}

	s.mu.Lock()
	s.subs = append(s.subs, sub)
	s.mu.Unlock()

	return nil
}

// Close stops the scan, unsubscribes from the bus and closes the antenna link
func (s *Station) Close() error {
	s.StopScan()

	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.ready = false
	s.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			errs = append(errs, err)
		}
	}

	if s.link != nil {
		if err := s.link.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// OnStatus subscribes h to status updates
func (s *Station) OnStatus(h StatusHandler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()

	s.statusHandlers = append(s.statusHandlers, h)
}

// SetFrequency makes f the current frequency. An unchanged frequency is
// ignored. Otherwise f is added to the history with a pending RSSI, the
// antenna is tuned (station role) or f is published to the bus (tower role).
func (s *Station) SetFrequency(ctx context.Context, f spectrum.Frequency) error {
	if f.IsZero() {
		return errors.New("frequency is required")
	}

	s.setMu.Lock()
	defer s.setMu.Unlock()

	s.mu.Lock()
	if s.link != nil && !s.ready {
		s.mu.Unlock()
		return ErrNotReady
	}
	if f == s.frequency {
		s.mu.Unlock()
		return nil
	}

	prevFrequency, prevHistory := s.frequency, s.history
	s.frequency = f
	s.history = append([]HistoryEntry{{Frequency: f, RSSI: spectrum.RSSIPending}}, s.history...)
	if len(s.history) > HistorySize {
		s.history = s.history[:HistorySize]
	}
	s.mu.Unlock()

	s.logger.Debug("frequency set", slog.String("frequency", f.String()))

	if s.link != nil {
		if err := s.link.Tune(ctx, f); err != nil {
			// the antenna kept its old frequency
			s.mu.Lock()
			s.frequency, s.history = prevFrequency, prevHistory
			s.mu.Unlock()

			s.setStatus(fmt.Sprintf("[Antenna] Tune failed: %s", err.Error()))
			return fmt.Errorf("tuning to %s: %w", f, err)
		}
		return nil
	}

	if s.bus != nil {
		msg := bus.Message{Station: s.config.Name, Frequency: f}
		if err := s.bus.Publish(ctx, bus.TopicFrequency, msg); err != nil {
			s.logger.Warn(fmt.Sprintf("error publishing frequency: %s", err.Error()))
			return fmt.Errorf("publishing %s: %w", f, err)
		}
		s.setStatus(fmt.Sprintf("[Bus] Published frequency: %s", f))
	}

	return nil
}

// StartScan starts scanning from the current frequency with the current scan
// settings. With implicitTrigger the next frequency is set without delay.
func (s *Station) StartScan(implicitTrigger bool) error {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	return s.startScanLocked(implicitTrigger)
}

// StopScan stops a running scan. It is safe to call when no scan is running.
func (s *Station) StopScan() {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	s.stopScanLocked()
}

// ToggleScan stops a running scan or starts a new one with an implicit
// trigger. It returns whether a scan is running afterwards.
func (s *Station) ToggleScan() (bool, error) {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	if s.scanner.Running() {
		s.stopScanLocked()
		return false, nil
	}

	if err := s.startScanLocked(true); err != nil {
		return false, err
	}
	return true, nil
}

// SetScanMode changes the scan mode, restarting a running scan
func (s *Station) SetScanMode(mode spectrum.ScanMode) error {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	s.mu.Lock()
	s.scan.Mode = mode
	s.mu.Unlock()

	return s.restartScanLocked()
}

// SetScanDelay changes the scan delay, restarting a running scan
func (s *Station) SetScanDelay(delay time.Duration) error {
	if err := ValidateScanDelay(delay); err != nil {
		return err
	}

	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	s.mu.Lock()
	s.scan.Delay = delay
	s.mu.Unlock()

	return s.restartScanLocked()
}

// SetScanStep changes the ByStep stride. A running scan is restarted only
// when it is in ByStep mode.
func (s *Station) SetScanStep(step int64) error {
	if err := ValidateScanStep(step); err != nil {
		return err
	}

	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	s.mu.Lock()
	s.scan.Step = step
	mode := s.scan.Mode
	s.mu.Unlock()

	if mode != spectrum.ByStep {
		return nil
	}
	return s.restartScanLocked()
}

// SetLocalMode switches between local control and following the bus.
// Any running scan is stopped.
func (s *Station) SetLocalMode(local bool) {
	s.scanMu.Lock()
	defer s.scanMu.Unlock()

	s.stopScanLocked()

	s.mu.Lock()
	s.local = local
	s.mu.Unlock()

	if local {
		s.setStatus("Station is set to local mode")
	} else {
		s.setStatus("Station is listening to the bus")
	}
}

// ToggleLocalMode flips the local mode and returns the new value
func (s *Station) ToggleLocalMode() bool {
	local := !s.Local()
	s.SetLocalMode(local)
	return local
}

func (s *Station) startScanLocked(implicitTrigger bool) error {
	s.mu.Lock()
	if s.link != nil && !s.ready {
		s.mu.Unlock()
		return ErrNotReady
	}
	settings := s.scan
	current := s.frequency
	s.mu.Unlock()

	list, err := s.config.Preset.List(settings.Mode, settings.Step)
	if err != nil {
		return err
	}

	if err = s.scanner.Start(list, current, settings.Delay, implicitTrigger); err != nil {
		return err
	}

	s.setStatus(fmt.Sprintf("[Scan] Started %s, every %s", settings.Mode, settings.Delay))
	return nil
}

func (s *Station) stopScanLocked() {
	if !s.scanner.Running() {
		return
	}

	s.scanner.Stop()
	s.setStatus("[Scan] Stopped")
}

func (s *Station) restartScanLocked() error {
	if !s.scanner.Running() {
		return nil
	}

	s.stopScanLocked()
	return s.startScanLocked(false)
}

func (s *Station) onScanFrequency(f spectrum.Frequency) {
	if err := s.SetFrequency(context.Background(), f); err != nil {
		s.logger.Warn(fmt.Sprintf("error setting scanned frequency: %s", err.Error()))
	}
}

// onAntennaRSSI correlates a reading with the current frequency. Readings
// taken on any other frequency are stale and dropped.
func (s *Station) onAntennaRSSI(r spectrum.RSSIReading) {
	s.mu.Lock()
	if r.Frequency.IsZero() || r.Frequency != s.frequency {
		s.mu.Unlock()
		s.logger.Debug("stale RSSI dropped", slog.String("frequency", r.Frequency.String()))
		return
	}
	if len(s.history) > 0 {
		s.history[0].RSSI = r.RSSI
	}
	local := s.local
	sessionID := s.sessionID
	s.mu.Unlock()

	s.setStatus(fmt.Sprintf("[Antenna] Received RSSI: %s", r.RSSI))

	ctx := context.Background()

	if s.recorder != nil && sessionID != 0 {
		if err := s.recorder.StoreReading(ctx, sessionID, r); err != nil {
			s.logger.Warn(fmt.Sprintf("error storing reading: %s", err.Error()))
		}
	}

	if local || s.bus == nil {
		return
	}

	msg := bus.Message{
		Station:   s.config.Name,
		Frequency: r.Frequency,
		RSSI:      r.RSSI,
		Timestamp: r.Timestamp,
	}
	if err := s.bus.Publish(ctx, bus.TopicRSSI, msg); err != nil {
		s.logger.Warn(fmt.Sprintf("error publishing RSSI: %s", err.Error()))
		return
	}
	s.setStatus(fmt.Sprintf("[Bus] Published RSSI: %s", r.RSSI))
}

func (s *Station) onAntennaReadError(err *antenna.FrameError) {
	s.setStatus("[Antenna] RSSI read error")
}

func (s *Station) onBusFrequency(msg bus.Message) {
	if s.Local() {
		return
	}

	f, err := spectrum.ParseFrequency(msg.Frequency.String())
	if err != nil {
		s.logger.Warn(fmt.Sprintf("invalid frequency from bus: %s", err.Error()))
		return
	}

	s.setStatus(fmt.Sprintf("[Bus] Received frequency: %s", f))

	if err = s.SetFrequency(context.Background(), f); err != nil {
		s.logger.Warn(fmt.Sprintf("error setting frequency from bus: %s", err.Error()))
	}
}

// onBusRSSI applies a reading reported by the remote station to the latest history entry
func (s *Station) onBusRSSI(msg bus.Message) {
	var f spectrum.Frequency
	if !msg.Frequency.IsZero() {
		var err error
		if f, err = spectrum.ParseFrequency(msg.Frequency.String()); err != nil {
			s.logger.Warn(fmt.Sprintf("invalid RSSI frequency from bus: %s", err.Error()))
			return
		}
	}

	s.mu.Lock()
	if len(s.history) > 0 {
		s.history[0].RSSI = msg.RSSI
	}
	s.mu.Unlock()

	s.setStatus(fmt.Sprintf("[Bus] Received RSSI: %s", msg.RSSI))

	if s.recorder == nil || f.IsZero() {
		return
	}

	s.mu.Lock()
	sessionID := s.sessionID
	s.mu.Unlock()

	if sessionID == 0 {
		return
	}

	r := spectrum.RSSIReading{Frequency: f, RSSI: msg.RSSI, Timestamp: msg.Timestamp}
	if err := s.recorder.StoreReading(context.Background(), sessionID, r); err != nil {
		s.logger.Warn(fmt.Sprintf("error storing reading: %s", err.Error()))
	}
}

func (s *Station) setStatus(status string) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()

	s.logger.Info(status)

	s.handlersMu.RLock()
	handlers := s.statusHandlers
	s.handlersMu.RUnlock()

	for _, h := range handlers {
		h(s.config.Name, status)
	}
}

func (s *Station) Name() string {
	return s.config.Name
}

func (s *Station) Location() string {
	return s.config.Location
}

func (s *Station) Role() Role {
	return s.config.Role
}

func (s *Station) Preset() spectrum.Preset {
	return s.config.Preset
}

// Frequency returns the current frequency
func (s *Station) Frequency() spectrum.Frequency {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.frequency
}

// History returns a copy of the frequency history, newest first
func (s *Station) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]HistoryEntry(nil), s.history...)
}

func (s *Station) Local() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.local
}

// Ready returns false until Start succeeds, and for good when the antenna link fails to open
func (s *Station) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.ready
}

func (s *Station) Scanning() bool {
	return s.scanner.Running()
}

func (s *Station) ScanSettings() ScanConfig {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.scan
}

// Status returns the last status message
func (s *Station) Status() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.status
}
