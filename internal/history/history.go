package history

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DefaultTable is the table (or index) kill events are written to.
const DefaultTable = "kill_history"

// Event records one termination attempt.
type Event struct {
	ID         string    `json:"id"`
	OccurredAt time.Time `json:"occurred_at"`
	Strategy   string    `json:"strategy"`
	Reason     string    `json:"reason"`
	PID        int32     `json:"pid"`
	Title      string    `json:"title"`
	URL        string    `json:"url"`
	RSS        uint64    `json:"rss"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
}

// NewEvent returns an Event with a fresh ID and the current time.
func NewEvent() Event {
	return Event{ID: uuid.NewString(), OccurredAt: time.Now().UTC()}
}

// Sink is a destination for kill events (audit or analytics systems).
// Implementations must be safe for concurrent use.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// Deliver sends e to s, giving up after timeout.
func Deliver(ctx context.Context, s Sink, e Event, timeout time.Duration) error {
	if s == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.Send(ctx, e)
}
