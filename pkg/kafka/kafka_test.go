package kafka

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	msgs chan kafka.Message

	mu        sync.Mutex
	committed []int64
}

func newFakeReader(values ...string) *fakeReader {
	r := &fakeReader{msgs: make(chan kafka.Message, len(values))}
	for i, v := range values {
		r.msgs <- kafka.Message{Offset: int64(i), Value: []byte(v)}
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

func (r *fakeReader) Close() error { return nil }

func (r *fakeReader) commits() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func (w *fakeWriter) written() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

type funcHandler struct {
	topic string
	fn    func(context.Context, []byte) error
}

func (h funcHandler) Topic() string { return h.topic }
func (h funcHandler) Handle(ctx context.Context, b []byte) error { return h.fn(ctx, b) }

func newTestConsumer(t *testing.T, r *fakeReader, opts ...ConsumerOption) *Consumer {
	t.Helper()
	opts = append([]ConsumerOption{
		WithConsumerBrokers([]string{"localhost:9092"}),
		WithConsumerRetry(2, time.Millisecond, 2*time.Millisecond),
	}, opts...)
	c, err := NewConsumer(nil, opts...)
	require.NoError(t, err)
	c.WithReaderFactory(func(*ConsumerConfig, string) Reader { return r })
	return c
}

func stopWhen(t *testing.T, c *Consumer, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
}

func TestConsumerCommitsHandledMessages(t *testing.T) {
	r := newFakeReader("a", "b", "c")
	c := newTestConsumer(t, r, WithConsumerWorkers(2))

	var seen atomic.Int32
	require.NoError(t, c.RegisterHandler(funcHandler{topic: "recompute", fn: func(context.Context, []byte) error {
		seen.Add(1)
		return nil
	}}))
	require.NoError(t, c.Start(context.Background()))

	stopWhen(t, c, func() bool { return len(r.commits()) == 3 })
	assert.EqualValues(t, 3, seen.Load())
	assert.ElementsMatch(t, []int64{0, 1, 2}, r.commits())
}

func TestConsumerRetriesTransientErrors(t *testing.T) {
	r := newFakeReader("x")
	c := newTestConsumer(t, r)

	var calls atomic.Int32
	require.NoError(t, c.RegisterHandler(funcHandler{topic: "recompute", fn: func(context.Context, []byte) error {
		if calls.Add(1) < 3 {
			return errors.New("store unavailable")
		}
		return nil
	}}))
	require.NoError(t, c.Start(context.Background()))

	stopWhen(t, c, func() bool { return len(r.commits()) == 1 })
	assert.EqualValues(t, 3, calls.Load())
}

func TestConsumerParksPermanentFailuresInDLQ(t *testing.T) {
	r := newFakeReader("{bad")
	dlq := &fakeWriter{}
	c := newTestConsumer(t, r, WithConsumerDLQ("recompute.dlq"))
	c.WithDLQWriter(dlq)

	var calls atomic.Int32
	require.NoError(t, c.RegisterHandler(funcHandler{topic: "recompute", fn: func(context.Context, []byte) error {
		calls.Add(1)
		return Invalid(errors.New("malformed request"))
	}}))
	require.NoError(t, c.Start(context.Background()))

	stopWhen(t, c, func() bool { return len(r.commits()) == 1 })
	assert.EqualValues(t, 1, calls.Load(), "validation errors are not retried")
	parked := dlq.written()
	require.Len(t, parked, 1)
	assert.Equal(t, "recompute.dlq", parked[0].Topic)
	assert.Equal(t, []byte("{bad"), parked[0].Value)
}

func TestConsumerDoesNotCommitWithoutDLQ(t *testing.T) {
	r := newFakeReader("x")
	c := newTestConsumer(t, r)

	var calls atomic.Int32
	require.NoError(t, c.RegisterHandler(funcHandler{topic: "recompute", fn: func(context.Context, []byte) error {
		calls.Add(1)
		return errors.New("boom")
	}}))
	require.NoError(t, c.Start(context.Background()))

	stopWhen(t, c, func() bool { return calls.Load() == 3 })
	assert.Empty(t, r.commits())
}

func TestConsumerRecoversHandlerPanic(t *testing.T) {
	r := newFakeReader("x")
	dlq := &fakeWriter{}
	c := newTestConsumer(t, r, WithConsumerDLQ("dlq"), WithConsumerRetry(0, time.Millisecond, time.Millisecond))
	c.WithDLQWriter(dlq)

	var after atomic.Value
	c.WithConsumerHook(HookFuncs{After: func(_ context.Context, _ string, _ kafka.Message, err error) {
		if err != nil {
			after.Store(err)
		}
	}})
	require.NoError(t, c.RegisterHandler(funcHandler{topic: "recompute", fn: func(context.Context, []byte) error {
		panic("nil profile")
	}}))
	require.NoError(t, c.Start(context.Background()))

	stopWhen(t, c, func() bool { return len(dlq.written()) == 1 })
	var he *HookError
	require.ErrorAs(t, after.Load().(error), &he)
	assert.Equal(t, ErrCodePanic, he.Code)
}

func TestRegisterHandlerRejectsDuplicateTopic(t *testing.T) {
	c := newTestConsumer(t, newFakeReader())
	h := funcHandler{topic: "t", fn: func(context.Context, []byte) error { return nil }}
	require.NoError(t, c.RegisterHandler(h))
	assert.Error(t, c.RegisterHandler(h))
}

func TestStartRequiresHandlers(t *testing.T) {
	c := newTestConsumer(t, newFakeReader())
	assert.Error(t, c.Start(context.Background()))
}

func TestNewConsumerRequiresBrokers(t *testing.T) {
	_, err := NewConsumer(nil)
	assert.Error(t, err)
}

func TestBackoffWithJitterBounds(t *testing.T) {
	min, max := 10*time.Millisecond, 200*time.Millisecond
	for attempt := 1; attempt <= 40; attempt++ {
		d := backoffWithJitter(min, max, attempt)
		assert.Greater(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, max)
	}
	assert.LessOrEqual(t, backoffWithJitter(min, max, 1), min)
}

func TestParseCompression(t *testing.T) {
	assert.Equal(t, kafka.Snappy, parseCompression("snappy"))
	assert.Equal(t, kafka.Lz4, parseCompression("lz4"))
	assert.Equal(t, kafka.Zstd, parseCompression("zstd"))
	assert.Equal(t, kafka.Gzip, parseCompression(""))
}

func TestHookFuncsNilSafe(t *testing.T) {
	var h HookFuncs
	ctx := context.Background()
	got, err := h.BeforeHandle(ctx, "t", kafka.Message{})
	require.NoError(t, err)
	assert.Equal(t, ctx, got)
	assert.NotPanics(t, func() { h.AfterHandle(ctx, "t", kafka.Message{}, nil) })
}

func TestTraceIDFromHeaders(t *testing.T) {
	msg := kafka.Message{Headers: []kafka.Header{{Key: "trace_id", Value: []byte("abc")}}}
	ctx := WithTraceID(context.Background(), ExtractTraceID(msg))
	assert.Equal(t, "abc", TraceID(ctx))
	assert.Equal(t, "", TraceID(context.Background()))
}

func TestProducerPublishEncodesJSON(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, "gzip")

	type payload struct {
		EntityID string `json:"entity_id"`
	}
	require.NoError(t, p.Publish(context.Background(), "scores", []byte("AAPL"), payload{EntityID: "AAPL"}))
	require.NoError(t, p.Publish(context.Background(), "scores", nil, "raw"))

	msgs := w.written()
	require.Len(t, msgs, 2)
	assert.JSONEq(t, `{"entity_id":"AAPL"}`, string(msgs[0].Value))
	assert.Equal(t, []byte("AAPL"), msgs[0].Key)
	assert.Equal(t, "raw", string(msgs[1].Value))
}

func TestProducerPublishWrapsWriterError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := NewProducerWithWriter(w, "gzip")
	err := p.Publish(context.Background(), "scores", nil, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scores")
}
