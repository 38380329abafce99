package event

import (
	"context"
	"time"

	"github.com/xraph/circulate/id"
)

// Store reads and acknowledges outbox events. Appending happens inside the
// reservation return write.
type Store interface {
	// PendingEvents returns undelivered events, oldest first.
	PendingEvents(ctx context.Context, limit int) ([]*Event, error)
	MarkEventDelivered(ctx context.Context, evtID id.EventID, at time.Time) error
}
