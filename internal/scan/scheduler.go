package scan

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/roman-kulish/antenna-station/internal/spectrum"
)

// FrequencyHandler receives frequencyRequested events. It is called on the
// scheduler's worker goroutine and must not call Stop on the same scheduler.
type FrequencyHandler func(f spectrum.Frequency)

// Metrics receives scheduler events for instrumentation
type Metrics interface {
	ScanStep(f spectrum.Frequency)
	ScanActive(active bool)
}

// WithLogger sets the logger for the scheduler
func WithLogger(logger *slog.Logger) func(s *Scheduler) {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithMetrics sets the metrics recorder for the scheduler
func WithMetrics(m Metrics) func(s *Scheduler) {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// Scheduler advances through a frequency list on a timer, forever, until stopped.
// Each Start creates a fresh session which owns its own worker goroutine; the
// queue and cursor belong to that goroutine alone.
type Scheduler struct {
	mu      sync.Mutex
	session *session

	handlersMu sync.RWMutex
	handlers   []FrequencyHandler

	logger  *slog.Logger
	metrics Metrics
}

type session struct {
	list  spectrum.FrequencyList // snapshot, never mutated
	queue spectrum.FrequencyList // remaining entries of the current cycle
	delay time.Duration
	first spectrum.Frequency // emitted without delay when set

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a stopped scheduler with a discard logger
func NewScheduler(options ...func(s *Scheduler)) *Scheduler {
	s := Scheduler{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// OnFrequencyRequested subscribes h to frequencyRequested events.
func (s *Scheduler) OnFrequencyRequested(h FrequencyHandler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()

	s.handlers = append(s.handlers, h)
}

// Start begins a new scan session over list, resuming after current.
// With implicitTrigger the first frequency is emitted straight away instead of
// after one delay. The list is copied; later changes by the caller have no effect.
func (s *Scheduler) Start(list spectrum.FrequencyList, current spectrum.Frequency, delay time.Duration, implicitTrigger bool) error {
	if err := list.Validate(); err != nil {
		return &StartError{Reason: ErrInvalidList, Err: err}
	}
	if delay <= 0 {
		return &StartError{Reason: ErrInvalidDelay}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		return ErrAlreadyRunning
	}

	snapshot := list.Clone()
	cursor := StartIndex(snapshot, current)

	sess := session{
		list:  snapshot,
		delay: delay,
		done:  make(chan struct{}),
	}

	if implicitTrigger {
		sess.first = snapshot[cursor]
		cursor++
	}
	sess.queue = snapshot[cursor:]

	var ctx context.Context
	ctx, sess.cancel = context.WithCancel(context.Background())
	s.session = &sess

	s.logger.Info("scan started",
		slog.Int("frequencies", len(snapshot)),
		slog.String("current", current.String()),
		slog.Duration("delay", delay),
		slog.Bool("implicitTrigger", implicitTrigger))

	if s.metrics != nil {
		s.metrics.ScanActive(true)
	}

	go s.run(ctx, &sess)

	return nil
}

// Stop ends the running session, if any. The pending wait is cancelled and
// once Stop returns no further frequencyRequested events fire for that session.
// It is safe to call Stop multiple times or before Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	sess := s.session
	s.session = nil
	s.mu.Unlock()

	if sess == nil {
		return // already stopped
	}

	sess.cancel()
	<-sess.done

	if s.metrics != nil {
		s.metrics.ScanActive(false)
	}

	s.logger.Info("scan stopped")
}

// Running reports whether a session is active
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.session != nil
}

func (s *Scheduler) run(ctx context.Context, sess *session) {
	defer close(sess.done)

	if !sess.first.IsZero() {
		if !s.emit(ctx, sess.first) {
			return
		}
	}

	for {
		if len(sess.queue) == 0 {
			sess.queue = sess.list // refill, the cycle continues with the same cadence
		}

		f := sess.queue[0]
		sess.queue = sess.queue[1:]

		timer := time.NewTimer(sess.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return

		case <-timer.C:
		}

		if !s.emit(ctx, f) {
			return
		}
	}
}

// emit delivers f to the subscribers unless the session has been cancelled.
// Stop waits for the worker to exit, so a cancelled session never emits again.
func (s *Scheduler) emit(ctx context.Context, f spectrum.Frequency) bool {
	if ctx.Err() != nil {
		return false
	}

	s.handlersMu.RLock()
	handlers := s.handlers
	s.handlersMu.RUnlock()

	s.logger.Debug("frequency requested", slog.String("frequency", f.String()))

	for _, h := range handlers {
		h(f)
	}

	if s.metrics != nil {
		s.metrics.ScanStep(f)
	}

	return true
}
