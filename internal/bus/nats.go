package bus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Config is the NATS connection configuration
type Config struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
}

// WithLogger sets the logger for the bus
func WithLogger(logger *slog.Logger) func(b *NATS) {
	return func(b *NATS) {
		b.logger = logger
	}
}

// WithMetrics sets the metrics recorder for the bus
func WithMetrics(m Metrics) func(b *NATS) {
	return func(b *NATS) {
		b.metrics = m
	}
}

// NATS is a Bus backed by a NATS server
type NATS struct {
	nc       *nats.Conn
	instance uuid.UUID

	logger  *slog.Logger
	metrics Metrics
}

// Connect connects to the NATS server. Reconnects are handled by the client.
func Connect(config Config, options ...func(b *NATS)) (*NATS, error) {
	b := NATS{
		instance: uuid.New(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&b)
	}

	nc, err := nats.Connect(config.URL,
		nats.Name(config.Name),
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				b.logger.Warn(fmt.Sprintf("bus disconnected: %s", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			b.logger.Info("bus reconnected", slog.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("error connecting to NATS at '%s': %w", config.URL, err)
	}

	b.nc = nc
	b.logger.Info("bus connected",
		slog.String("url", nc.ConnectedUrl()),
		slog.String("instance", b.instance.String()))

	return &b, nil
}

func (b *NATS) Instance() uuid.UUID {
	return b.instance
}

func (b *NATS) Publish(ctx context.Context, topic Topic, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	if b.nc.IsClosed() {
		return ErrClosed
	}

	data, err := encode(stamp(msg, b.instance))
	if err != nil {
		return err
	}

	subject := Subject(topic, msg.Station)
	if err = b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("error publishing to '%s': %w", subject, err)
	}

	if b.metrics != nil {
		b.metrics.BusMessage("out", topic)
	}

	return nil
}

func (b *NATS) Subscribe(topic Topic, station string, h Handler) (Subscription, error) {
	if b.nc.IsClosed() {
		return nil, ErrClosed
	}

	subject := Subject(topic, station)
	sub, err := b.nc.Subscribe(subject, func(m *nats.Msg) {
		b.deliver(topic, m.Subject, m.Data, h)
	})
	if err != nil {
		return nil, fmt.Errorf("error subscribing to '%s': %w", subject, err)
	}

	b.logger.Debug("subscribed", slog.String("subject", subject))

	return sub, nil
}

// deliver decodes data and hands it to h unless it was published by this instance
func (b *NATS) deliver(topic Topic, subject string, data []byte, h Handler) {
	msg, err := decode(data)
	if err != nil {
		b.logger.Warn(err.Error(), slog.String("subject", subject))
		return
	}
	if msg.Origin == b.instance {
		return // own message
	}

	if b.metrics != nil {
		b.metrics.BusMessage("in", topic)
	}

	h(msg)
}

// Close drains pending messages and closes the connection
func (b *NATS) Close() error {
	if b.nc.IsClosed() {
		return nil
	}

	if err := b.nc.Drain(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		b.nc.Close()
		return fmt.Errorf("error draining bus connection: %w", err)
	}

	return nil
}
