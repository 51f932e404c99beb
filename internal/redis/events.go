package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// ProcessedEventTTL bounds how long a reconciled event id is remembered.
// Provider redelivery windows are shorter than this.
const ProcessedEventTTL = 72 * time.Hour

const processedEventPrefix = "events:processed:"

// EventStore marks provider events as reconciled.
// It is an optimisation only: database constraints still reject duplicates
// when a mark is missing or expired.
type EventStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewEventStore creates a new EventStore.
func NewEventStore(client *redis.Client) *EventStore {
	return &EventStore{client: client, ttl: ProcessedEventTTL}
}

// IsProcessed reports whether the event was marked.
func (s *EventStore) IsProcessed(ctx context.Context, eventID string) (bool, error) {
	err := s.client.Get(ctx, processedEventPrefix+eventID).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// MarkProcessed records the event id.
func (s *EventStore) MarkProcessed(ctx context.Context, eventID string) error {
	return s.client.Set(ctx, processedEventPrefix+eventID, time.Now().UTC().Format(time.RFC3339), s.ttl).Err()
}
