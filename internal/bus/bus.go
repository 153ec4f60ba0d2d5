package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roman-kulish/antenna-station/internal/spectrum"
)

const (
	// TopicFrequency carries frequencies chosen by a tower for a station
	TopicFrequency Topic = "frequency"
	// TopicRSSI carries RSSI readings reported by a station
	TopicRSSI Topic = "rssi"
)

// ErrClosed is returned when publishing or subscribing on a closed bus
var ErrClosed = errors.New("bus is closed")

// Topic is the kind of message exchanged between stations and towers
type Topic string

// Subject returns the per-station subject of a topic, e.g. "rssi.north-1"
func Subject(topic Topic, station string) string {
	return string(topic) + "." + station
}

// Message is the envelope of every message on the bus
type Message struct {
	ID        uuid.UUID          `json:"id"`
	Origin    uuid.UUID          `json:"origin"` // bus instance which published the message
	Station   string             `json:"station"`
	Frequency spectrum.Frequency `json:"frequency"`
	RSSI      string             `json:"rssi,omitempty"`
	Timestamp time.Time          `json:"timestamp"`
}

func (m *Message) Validate() error {
	if m.Station == "" {
		return errors.New("bus.Message: station is required")
	}
	if strings.ContainsAny(m.Station, ".*> \t") {
		return fmt.Errorf("bus.Message: invalid station name '%s'", m.Station)
	}
	return nil
}

// Handler receives messages of a subscription. Messages published by the same
// bus instance are never delivered back to it.
type Handler func(msg Message)

// Subscription is an active subscription
type Subscription interface {
	Unsubscribe() error
}

// Bus mirrors frequency and RSSI updates between stations and towers
type Bus interface {
	Publish(ctx context.Context, topic Topic, msg Message) error
	Subscribe(topic Topic, station string, h Handler) (Subscription, error)
	Instance() uuid.UUID
	Close() error
}

// Metrics receives bus events for instrumentation
type Metrics interface {
	BusMessage(direction string, topic Topic)
}

// stamp completes msg before it is published by instance
func stamp(msg Message, instance uuid.UUID) Message {
	msg.ID = uuid.New()
	msg.Origin = instance
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	return msg
}

func encode(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("error encoding message: %w", err)
	}
	return data, nil
}

func decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("error decoding message: %w", err)
	}
	return msg, nil
}
