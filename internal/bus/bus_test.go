package bus

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubject(t *testing.T) {
	assert.Equal(t, "frequency.north-1", Subject(TopicFrequency, "north-1"))
	assert.Equal(t, "rssi.north-1", Subject(TopicRSSI, "north-1"))
}

func TestMessage_Validate(t *testing.T) {
	testCases := []struct {
		station string
		valid   bool
	}{
		{"north-1", true},
		{"", false},
		{"a.b", false},
		{"a*", false},
		{"a b", false},
	}

	for _, tc := range testCases {
		msg := Message{Station: tc.station}
		if tc.valid {
			assert.NoError(t, msg.Validate(), tc.station)
		} else {
			assert.Error(t, msg.Validate(), tc.station)
		}
	}
}

func TestMemory_PublishSubscribe(t *testing.T) {
	hub := NewHub()
	tower := hub.Connect()
	station := hub.Connect()
	ctx := context.Background()

	var received []Message
	_, err := station.Subscribe(TopicFrequency, "north-1", func(msg Message) {
		received = append(received, msg)
	})
	require.NoError(t, err)

	// other stations and topics are not delivered
	require.NoError(t, tower.Publish(ctx, TopicFrequency, Message{Station: "south-2", Frequency: "500"}))
	require.NoError(t, tower.Publish(ctx, TopicRSSI, Message{Station: "north-1", RSSI: "12"}))
	require.NoError(t, tower.Publish(ctx, TopicFrequency, Message{Station: "north-1", Frequency: "400"}))

	require.Len(t, received, 1)
	msg := received[0]
	assert.Equal(t, "north-1", msg.Station)
	assert.EqualValues(t, "400", msg.Frequency)
	assert.Equal(t, tower.Instance(), msg.Origin)
	assert.NotEqual(t, uuid.Nil, msg.ID)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestMemory_NoSelfEcho(t *testing.T) {
	hub := NewHub()
	b := hub.Connect()

	calls := 0
	_, err := b.Subscribe(TopicRSSI, "north-1", func(Message) { calls++ })
	require.NoError(t, err)

	require.NoError(t, b.Publish(context.Background(), TopicRSSI, Message{Station: "north-1", RSSI: "5"}))
	assert.Zero(t, calls, "own messages must not be delivered")
}

func TestMemory_Unsubscribe(t *testing.T) {
	hub := NewHub()
	pub, sub := hub.Connect(), hub.Connect()
	ctx := context.Background()

	calls := 0
	s, err := sub.Subscribe(TopicRSSI, "north-1", func(Message) { calls++ })
	require.NoError(t, err)

	require.NoError(t, pub.Publish(ctx, TopicRSSI, Message{Station: "north-1", RSSI: "1"}))
	require.NoError(t, s.Unsubscribe())
	require.NoError(t, pub.Publish(ctx, TopicRSSI, Message{Station: "north-1", RSSI: "2"}))

	assert.Equal(t, 1, calls)
}

func TestMemory_Close(t *testing.T) {
	hub := NewHub()
	pub, sub := hub.Connect(), hub.Connect()
	ctx := context.Background()

	calls := 0
	_, err := sub.Subscribe(TopicRSSI, "north-1", func(Message) { calls++ })
	require.NoError(t, err)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	require.NoError(t, pub.Publish(ctx, TopicRSSI, Message{Station: "north-1", RSSI: "1"}))
	assert.Zero(t, calls)

	assert.ErrorIs(t, sub.Publish(ctx, TopicRSSI, Message{Station: "north-1"}), ErrClosed)
	_, err = sub.Subscribe(TopicRSSI, "north-1", func(Message) {})
	assert.ErrorIs(t, err, ErrClosed)

	hub.Close()
	assert.ErrorIs(t, pub.Publish(ctx, TopicRSSI, Message{Station: "north-1"}), ErrClosed)
}

func TestMemory_CancelledContext(t *testing.T) {
	b := NewHub().Connect()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, b.Publish(ctx, TopicRSSI, Message{Station: "north-1"}), context.Canceled)
}

type recordingMetrics struct {
	in, out int
}

func (m *recordingMetrics) BusMessage(direction string, _ Topic) {
	switch direction {
	case "in":
		m.in++
	case "out":
		m.out++
	}
}

func TestNATS_Deliver(t *testing.T) {
	metrics := &recordingMetrics{}
	b := &NATS{
		instance: uuid.New(),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics:  metrics,
	}

	foreign, err := encode(stamp(Message{Station: "north-1", RSSI: "42"}, uuid.New()))
	require.NoError(t, err)
	own, err := encode(stamp(Message{Station: "north-1", RSSI: "43"}, b.instance))
	require.NoError(t, err)

	var received []Message
	h := func(msg Message) { received = append(received, msg) }

	b.deliver(TopicRSSI, "rssi.north-1", foreign, h)
	b.deliver(TopicRSSI, "rssi.north-1", own, h)
	b.deliver(TopicRSSI, "rssi.north-1", []byte("{not json"), h)

	require.Len(t, received, 1)
	assert.Equal(t, "42", received[0].RSSI)
	assert.Equal(t, 1, metrics.in)
}
