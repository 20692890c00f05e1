package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"content-harvester/pkg/config"
	"content-harvester/pkg/utils"
)

// fakeWriter records written messages
type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisherWithWriter(w)
	fixed := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	err := p.Publish(context.Background(),
		Event{Type: TypeCollected, ID: "c1", Keyword: "西昌", Source: "baidu"},
		Event{Type: TypeDepthCrawled, ID: "c1", URL: "https://example.com/a", Attributes: map[string]string{"repaired": "true"}},
	)
	require.NoError(t, err)
	require.Len(t, w.msgs, 2)

	for _, msg := range w.msgs {
		assert.Equal(t, "c1", string(msg.Key))
		assert.Equal(t, fixed, msg.Time)
	}
	assert.Equal(t, "event_type", w.msgs[1].Headers[0].Key)
	assert.Equal(t, "depth_crawled", string(w.msgs[1].Headers[0].Value))

	var got Event
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &got))
	assert.Equal(t, TypeCollected, got.Type)
	assert.Equal(t, "西昌", got.Keyword)
	assert.True(t, got.OccurredAt.Equal(fixed))
}

func TestKafkaPublisher_KeepsTimestamp(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisherWithWriter(w)
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, p.Publish(context.Background(), Event{Type: TypeStored, ID: "x", OccurredAt: at}))
	assert.Equal(t, at, w.msgs[0].Time)
}

func TestKafkaPublisher_Errors(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := NewKafkaPublisherWithWriter(w)

	err := p.Publish(context.Background(), Event{Type: TypeDeleted, ID: "x"})
	assert.ErrorIs(t, err, utils.ErrEventPublish)
	assert.Contains(t, err.Error(), "broker down")

	assert.NoError(t, p.Publish(context.Background()), "nothing to publish")
}

func TestKafkaPublisher_Close(t *testing.T) {
	w := &fakeWriter{}
	require.NoError(t, NewKafkaPublisherWithWriter(w).Close())
	assert.True(t, w.closed)
}

func TestNewKafkaPublisher_ConfiguresWriter(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	p := NewKafkaPublisher(config.EventsConfig{Brokers: []string{"k1:9092", "k2:9092"}, Topic: "harvest.lifecycle"}, logrus.NewEntry(log))

	w, ok := p.writer.(*kafka.Writer)
	require.True(t, ok)
	assert.Equal(t, "harvest.lifecycle", w.Topic)
	assert.Contains(t, w.Addr.String(), "k1:9092")
	assert.NotNil(t, w.Logger)
	assert.NotNil(t, w.ErrorLogger)
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), Event{Type: TypeStored}))
	assert.NoError(t, p.Close())
}
