package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// IdempotencyTTL is how long a stored response is replayed.
	IdempotencyTTL = 24 * time.Hour

	// idempotencyPendingTTL bounds a reservation whose request never finished.
	idempotencyPendingTTL = 30 * time.Second

	idempotencyPrefix = "idempotency:"
	pendingMarker     = "pending"
)

// ResponseStore keeps responses of requests sent with an Idempotency-Key.
type ResponseStore struct {
	client *redis.Client
}

// NewResponseStore creates a new ResponseStore.
func NewResponseStore(client *redis.Client) *ResponseStore {
	return &ResponseStore{client: client}
}

// Lookup returns the stored response for key. pending is true while another
// request holds the reservation.
func (s *ResponseStore) Lookup(ctx context.Context, key string) (data []byte, pending bool, err error) {
	data, err = s.client.Get(ctx, idempotencyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if string(data) == pendingMarker {
		return nil, true, nil
	}
	return data, false, nil
}

// Reserve claims key for one in-flight request.
func (s *ResponseStore) Reserve(ctx context.Context, key string) (bool, error) {
	return s.client.SetNX(ctx, idempotencyPrefix+key, pendingMarker, idempotencyPendingTTL).Result()
}

// Save replaces the reservation with the final response.
func (s *ResponseStore) Save(ctx context.Context, key string, data []byte) error {
	return s.client.Set(ctx, idempotencyPrefix+key, data, IdempotencyTTL).Err()
}

// Release drops the reservation so the request can be retried.
func (s *ResponseStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, idempotencyPrefix+key).Err()
}
