package repo

import (
	"context"

	"github.com/rawises/storefront-api/internal/events"
)

// Events implements events.EventStore over domain_events.
type Events struct {
	db dbtx
}

var _ events.EventStore = (*Events)(nil)

func (r *Events) InsertDomainEvent(ctx context.Context, ev events.Event) (events.Event, error) {
	err := r.db.QueryRow(ctx, `INSERT INTO domain_events (topic, aggregate_id, payload)
		VALUES ($1, $2, $3) RETURNING id::text, occurred_at`,
		ev.Topic, ev.AggregateID, []byte(ev.Payload)).Scan(&ev.ID, &ev.OccurredAt)
	return ev, err
}
