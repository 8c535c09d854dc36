package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/bissquit/incident-console/internal/notifications"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

type fakeProducer struct {
	records []*kgo.Record
	err     error
	closed  bool
}

func (f *fakeProducer) ProduceSync(_ context.Context, rs ...*kgo.Record) kgo.ProduceResults {
	results := make(kgo.ProduceResults, 0, len(rs))
	for _, r := range rs {
		f.records = append(f.records, r)
		results = append(results, kgo.ProduceResult{Record: r, Err: f.err})
	}
	return results
}

func (f *fakeProducer) Close() {
	f.closed = true
}

func TestNewPublisher_NoBrokers(t *testing.T) {
	_, err := NewPublisher(Config{Topic: "incidents"})
	require.ErrorIs(t, err, ErrNoBrokers)
}

func TestPublisher_Publish(t *testing.T) {
	fake := &fakeProducer{}
	p := newPublisher("incident-events", fake)

	occurred := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	change := notifications.StatusChange{
		EventID:    "6b1f7f0e-0d5e-4a8f-9f4e-9d4f8f1b2c3d",
		Type:       notifications.EventStatusChanged,
		OccurredAt: occurred,
		From:       "reported",
		To:         "mitigating",
		Incident:   notifications.IncidentData{ID: "inc-1", Title: "Checkout errors"},
	}

	require.NoError(t, p.Publish(context.Background(), change, notifications.Message{}))
	require.Len(t, fake.records, 1)

	rec := fake.records[0]
	assert.Equal(t, "incident-events", rec.Topic)
	assert.Equal(t, []byte("inc-1"), rec.Key)
	assert.Equal(t, occurred, rec.Timestamp)
	assert.Equal(t, []kgo.RecordHeader{
		{Key: "event_id", Value: []byte(change.EventID)},
		{Key: "event_type", Value: []byte("incident.status_changed")},
	}, rec.Headers)

	var decoded notifications.StatusChange
	require.NoError(t, json.Unmarshal(rec.Value, &decoded))
	assert.Equal(t, "mitigating", decoded.To)
	assert.Equal(t, "inc-1", decoded.Incident.ID)
}

func TestPublisher_PublishError(t *testing.T) {
	fake := &fakeProducer{err: errors.New("leader not available")}
	p := newPublisher("incident-events", fake)

	err := p.Publish(context.Background(), notifications.StatusChange{}, notifications.Message{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leader not available")
}

func TestPublisher_Close(t *testing.T) {
	fake := &fakeProducer{}
	p := newPublisher("incident-events", fake)

	p.Close()
	assert.True(t, fake.closed)
	assert.Equal(t, "kafka", p.Name())
}
