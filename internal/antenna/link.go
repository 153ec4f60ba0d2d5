package antenna

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/roman-kulish/antenna-station/internal/spectrum"
)

const readBufferSize = 64

// RSSIHandler receives rssiReceived events on the link's event goroutine.
// Handlers must not call Tune or Close on the same link.
type RSSIHandler func(r spectrum.RSSIReading)

// ReadErrorHandler receives readError events on the link's event goroutine
type ReadErrorHandler func(err *FrameError)

// Metrics receives link events for instrumentation
type Metrics interface {
	TuneSent(f spectrum.Frequency)
	RSSIReceived(r spectrum.RSSIReading)
	FrameError(kind FrameErrorKind)
}

// WithLogger sets the logger for the link
func WithLogger(logger *slog.Logger) func(l *Link) {
	return func(l *Link) {
		l.logger = logger.With(slog.String("port", l.config.PortName))
	}
}

// WithMetrics sets the metrics recorder for the link
func WithMetrics(m Metrics) func(l *Link) {
	return func(l *Link) {
		l.metrics = m
	}
}

// WithOpener replaces the serial port opener, mostly useful in tests
func WithOpener(open Opener) func(l *Link) {
	return func(l *Link) {
		l.open = open
	}
}

// Link is a line protocol connection to an antenna controller. It sends tune
// commands and reports RSSI responses. All connection state (tracked frequency
// and receive buffer) is owned by a single event goroutine per open connection.
type Link struct {
	config Config
	open   Opener

	mu   sync.Mutex
	conn *conn

	handlersMu    sync.RWMutex
	rssiHandlers  []RSSIHandler
	errorHandlers []ReadErrorHandler

	logger  *slog.Logger
	metrics Metrics
}

type conn struct {
	port   io.ReadWriteCloser
	tunes  chan tuneRequest
	chunks chan []byte

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// owned by the event goroutine
	frequency spectrum.Frequency
	buf       []byte
}

type tuneRequest struct {
	frequency spectrum.Frequency
	result    chan error
}

// NewLink creates a closed link for the given port configuration
func NewLink(config Config, options ...func(l *Link)) *Link {
	l := Link{
		config: config,
		open:   OpenSerial,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&l)
	}

	return &l
}

// OnRSSI subscribes h to rssiReceived events
func (l *Link) OnRSSI(h RSSIHandler) {
	l.handlersMu.Lock()
	defer l.handlersMu.Unlock()

	l.rssiHandlers = append(l.rssiHandlers, h)
}

// OnReadError subscribes h to readError events
func (l *Link) OnReadError(h ReadErrorHandler) {
	l.handlersMu.Lock()
	defer l.handlersMu.Unlock()

	l.errorHandlers = append(l.errorHandlers, h)
}

// Open opens the port and starts listening for responses. An already open
// connection is closed first, so the tracked frequency starts out unset.
func (l *Link) Open() error {
	if err := l.config.Validate(); err != nil {
		return &LinkOpenError{Port: l.config.PortName, Err: err}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn != nil {
		if err := l.closeLocked(); err != nil {
			l.logger.Warn(fmt.Sprintf("error closing previous connection: %s", err.Error()))
		}
	}

	port, err := l.open(l.config)
	if err != nil {
		return &LinkOpenError{Port: l.config.PortName, Err: err}
	}

	c := conn{
		port:   port,
		tunes:  make(chan tuneRequest),
		chunks: make(chan []byte),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	// The reader is not tracked by the wait group: a blocked Read only returns
	// once the port is closed, and Close must not depend on the driver for that.
	go l.readPort(&c)

	c.wg.Add(1)
	go l.loop(&c)

	l.conn = &c
	l.logger.Info("antenna link open", slog.Uint64("baudRate", uint64(l.config.BaudRate)))

	return nil
}

// Close closes the port. It is safe to call Close on a closed link.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.conn == nil {
		return nil // already closed
	}

	return l.closeLocked()
}

// IsOpen returns true if the link has an open connection
func (l *Link) IsOpen() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.conn != nil
}

// Tune asks the antenna to tune to f. Nothing is written when f equals the
// frequency last sent on this connection. The tracked frequency is updated
// once the command has been written, without waiting for an acknowledgement.
func (l *Link) Tune(ctx context.Context, f spectrum.Frequency) error {
	l.mu.Lock()
	c := l.conn
	l.mu.Unlock()

	if c == nil {
		return ErrNotOpen
	}

	req := tuneRequest{
		frequency: f,
		result:    make(chan error, 1),
	}

	select {
	case c.tunes <- req:
	case <-c.ctx.Done():
		return ErrNotOpen
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.result:
		return err
	case <-c.ctx.Done():
		return ErrNotOpen
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Link) closeLocked() error {
	c := l.conn
	l.conn = nil

	c.cancel()
	err := c.port.Close()
	c.wg.Wait()

	l.logger.Info("antenna link closed")

	if err != nil && !errors.Is(err, fs.ErrClosed) {
		return fmt.Errorf("error closing port: %w", err)
	}
	return nil
}

// readPort forwards raw chunks from the port to the event goroutine
func (l *Link) readPort(c *conn) {
	buf := make([]byte, readBufferSize)

	for {
		n, err := c.port.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])

			select {
			case c.chunks <- chunk:
			case <-c.ctx.Done():
				return
			}
		}

		if err != nil {
			if c.ctx.Err() == nil && !errors.Is(err, io.EOF) && !errors.Is(err, fs.ErrClosed) {
				l.logger.Error(fmt.Sprintf("error reading port: %s", err.Error()))
			}
			return
		}
	}
}

// loop serialises tune requests and response handling for one connection
func (l *Link) loop(c *conn) {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return

		case req := <-c.tunes:
			req.result <- l.tune(c, req.frequency)

		case chunk := <-c.chunks:
			l.receive(c, chunk)
		}
	}
}

func (l *Link) tune(c *conn, f spectrum.Frequency) error {
	if f == c.frequency {
		l.logger.Debug("frequency unchanged, tune skipped", slog.String("frequency", f.String()))
		return nil
	}

	frame := EncodeTune(f)

	n, err := c.port.Write(frame)
	if err != nil {
		return fmt.Errorf("error writing tune command: %w", err)
	}
	if n != len(frame) {
		return fmt.Errorf("error writing tune command: %w", io.ErrShortWrite)
	}

	c.frequency = f

	l.logger.Debug("tune command sent", slog.String("frequency", f.String()))
	if l.metrics != nil {
		l.metrics.TuneSent(f)
	}

	return nil
}

// receive appends chunk to the connection buffer and emits one event per
// terminated frame. Any partial frame is kept for the next chunk.
func (l *Link) receive(c *conn, chunk []byte) {
	if !utf8.Valid(chunk) {
		c.buf = c.buf[:0]
		l.readError(&FrameError{Kind: FrameDecodeFailure, Data: chunk, Err: errors.New("invalid UTF-8")})
		return
	}

	c.buf = append(c.buf, chunk...)

	for {
		i := bytes.IndexByte(c.buf, FrameTerminator)
		if i < 0 {
			break
		}

		frame := string(c.buf[:i+1])
		c.buf = c.buf[:copy(c.buf, c.buf[i+1:])]

		rssi, err := ParseRSSI(frame)
		if err != nil {
			l.readError(&FrameError{Kind: FrameParseFailure, Data: []byte(frame), Err: err})
			continue
		}

		l.rssiReceived(spectrum.RSSIReading{
			Frequency: c.frequency,
			RSSI:      rssi,
			Timestamp: time.Now(),
		})
	}

	if len(c.buf) > MaxFrameSize {
		data := bytes.Clone(c.buf)
		c.buf = c.buf[:0]
		l.readError(&FrameError{Kind: FrameParseFailure, Data: data, Err: ErrFrameTooLong})
	}
}

func (l *Link) rssiReceived(r spectrum.RSSIReading) {
	l.handlersMu.RLock()
	handlers := l.rssiHandlers
	l.handlersMu.RUnlock()

	l.logger.Debug("RSSI received", slog.String("frequency", r.Frequency.String()), slog.String("rssi", r.RSSI))
	if l.metrics != nil {
		l.metrics.RSSIReceived(r)
	}

	for _, h := range handlers {
		h(r)
	}
}

func (l *Link) readError(err *FrameError) {
	l.handlersMu.RLock()
	handlers := l.errorHandlers
	l.handlersMu.RUnlock()

	l.logger.Warn(err.Error(), slog.String("data", fmt.Sprintf("%q", err.Data)))
	if l.metrics != nil {
		l.metrics.FrameError(err.Kind)
	}

	for _, h := range handlers {
		h(err)
	}
}
