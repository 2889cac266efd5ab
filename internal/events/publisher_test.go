package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillPublisher_InProcessRoundTrip(t *testing.T) {
	p, err := NewWatermillPublisher(WatermillConfig{Topic: "attempts"}, zerolog.Nop())
	require.NoError(t, err)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	messages, err := p.Subscribe(ctx)
	require.NoError(t, err)

	event := New(AttemptTerminated, 7, 1, 42)
	event.Reason = "tab switch"
	require.NoError(t, p.Publish(ctx, event))

	select {
	case msg := <-messages:
		var got AttemptEvent
		require.NoError(t, json.Unmarshal(msg.Payload, &got))
		msg.Ack()
		assert.Equal(t, event.ID, msg.UUID)
		assert.Equal(t, string(AttemptTerminated), msg.Metadata.Get("event_type"))
		assert.Equal(t, "1", msg.Metadata.Get("exam_id"))
		assert.Equal(t, "tab switch", got.Reason)
		assert.Equal(t, int64(42), got.UserID)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}

type recordingPublisher struct {
	events []*AttemptEvent
	err    error
	closed bool
}

func (r *recordingPublisher) Publish(_ context.Context, e *AttemptEvent) error {
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingPublisher) Close() error {
	r.closed = true
	return nil
}

func TestMulti_PublishesToAll(t *testing.T) {
	a := &recordingPublisher{err: errors.New("broker down")}
	b := &recordingPublisher{}

	err := Multi{a, b}.Publish(context.Background(), New(AttemptStarted, 1, 2, 3))

	require.Error(t, err)
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1, "a failing publisher must not block the others")

	require.NoError(t, Multi{a, b}.Close())
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}
