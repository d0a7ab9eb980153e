package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type blockingSink struct{}

func (blockingSink) Send(ctx context.Context, _ Event) error {
	<-ctx.Done()
	return ctx.Err()
}

type recordingSink struct{ got []Event }

func (r *recordingSink) Send(_ context.Context, e Event) error {
	r.got = append(r.got, e)
	return nil
}

func TestNewEventHasIDAndTime(t *testing.T) {
	a, b := NewEvent(), NewEvent()
	_, err := uuid.Parse(a.ID)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
	assert.WithinDuration(t, time.Now(), a.OccurredAt, time.Second)
}

func TestDeliverTimesOut(t *testing.T) {
	start := time.Now()
	err := Deliver(context.Background(), blockingSink{}, NewEvent(), 20*time.Millisecond)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), time.Second)
}

func TestDeliverNilSink(t *testing.T) {
	assert.NoError(t, Deliver(context.Background(), nil, NewEvent(), time.Second))
}

func TestDeliverPassesEvent(t *testing.T) {
	s := &recordingSink{}
	e := NewEvent()
	e.PID = 42
	require.NoError(t, Deliver(context.Background(), s, e, time.Second))
	require.Len(t, s.got, 1)
	assert.Equal(t, int32(42), s.got[0].PID)
}
