package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/Corpus-Search-Platform/pkg/resilience"
)

type fakeReader struct {
	msgs chan kafka.Message

	mu        sync.Mutex
	committed []int64
	closed    bool
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{msgs: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		r.msgs <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

var fastRetry = resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}

func runConsumer(t *testing.T, c *Consumer, until func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()
	require.Eventually(t, until, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestConsumerRetriesTransientFailures(t *testing.T) {
	reader := newFakeReader(kafka.Message{Offset: 7, Key: []byte("doc-1"), Value: []byte(`{}`)})
	var mu sync.Mutex
	calls := 0
	c := NewConsumerWithReader(reader, "ingest", func(context.Context, []byte, []byte) error {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls < 3 {
			return errors.New("postgres unavailable")
		}
		return nil
	}).WithRetry(fastRetry)

	runConsumer(t, c, func() bool { return len(reader.commits()) == 1 })
	assert.Equal(t, []int64{7}, reader.commits())
	assert.Equal(t, 3, calls)
	assert.True(t, reader.closed)
}

func TestConsumerSkipsUndecodableMessages(t *testing.T) {
	reader := newFakeReader(
		kafka.Message{Offset: 1, Value: []byte(`not json`)},
		kafka.Message{Offset: 2, Value: []byte(`{"id":"a"}`)},
	)
	var seen []string
	c := NewConsumerWithReader(reader, "events", func(_ context.Context, _ []byte, value []byte) error {
		v, err := DecodeJSON[struct {
			ID string `json:"id"`
		}](value)
		if err != nil {
			return err
		}
		seen = append(seen, v.ID)
		return nil
	}).WithRetry(fastRetry)

	runConsumer(t, c, func() bool { return len(reader.commits()) == 2 })
	assert.Equal(t, []int64{1, 2}, reader.commits())
	assert.Equal(t, []string{"a"}, seen)
}

func TestConsumerLeavesFailedMessagesUncommitted(t *testing.T) {
	reader := newFakeReader(
		kafka.Message{Offset: 1, Value: []byte(`{}`)},
		kafka.Message{Offset: 2, Value: []byte(`{}`)},
	)
	c := NewConsumerWithReader(reader, "ingest", func(_ context.Context, _ []byte, _ []byte) error {
		return errors.New("always failing")
	}).WithRetry(fastRetry)

	runConsumer(t, c, func() bool { return len(reader.msgs) == 0 })
	assert.Empty(t, reader.commits())
}

func TestDecodeJSONWrapsErrDecode(t *testing.T) {
	_, err := DecodeJSON[map[string]int]([]byte(`{"a":"b"}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDecode)

	v, err := DecodeJSON[map[string]int]([]byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, 1, v["a"])
}

type fakeWriter struct {
	writes [][]kafka.Message
	err    error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.writes = append(w.writes, msgs)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestProducerPublishEncodesJSON(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, "events")

	require.NoError(t, p.Publish(context.Background(), Event{Key: "q1", Value: map[string]int{"hits": 3}}))
	require.Len(t, w.writes, 1)
	assert.Equal(t, "q1", string(w.writes[0][0].Key))
	assert.JSONEq(t, `{"hits":3}`, string(w.writes[0][0].Value))
}

func TestProducerPublishBatch(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, "events")

	require.NoError(t, p.PublishBatch(context.Background(), nil))
	assert.Empty(t, w.writes)

	require.NoError(t, p.PublishBatch(context.Background(), []Event{{Key: "a", Value: 1}, {Key: "b", Value: 2}}))
	require.Len(t, w.writes, 1)
	assert.Len(t, w.writes[0], 2)

	err := p.PublishBatch(context.Background(), []Event{{Key: "ok", Value: 1}, {Key: "bad", Value: make(chan int)}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"bad"`)
	assert.Len(t, w.writes, 1)
}

func TestProducerWrapsWriteErrors(t *testing.T) {
	p := NewProducerWithWriter(&fakeWriter{err: errors.New("broker gone")}, "events")
	err := p.Publish(context.Background(), Event{Key: "k", Value: "v"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker gone")
}
