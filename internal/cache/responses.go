package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	responseKeyFmt   = "idempotency:%s"
	responseInFlight = "PROCESSING"
)

// ErrInFlight is returned when a request with the same key is still running
var ErrInFlight = errors.New("request with this idempotency key is in progress")

// StoredResponse is a replayable HTTP response
type StoredResponse struct {
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

// ResponseStore records responses of state-changing requests by Idempotency-Key
type ResponseStore struct {
	rdb     redis.Cmdable
	lockTTL time.Duration
	keepTTL time.Duration
}

func NewResponseStore(rdb redis.Cmdable) *ResponseStore {
	return &ResponseStore{rdb: rdb, lockTTL: 30 * time.Second, keepTTL: 24 * time.Hour}
}

// Begin claims key. It returns the stored response when the key already completed,
// ErrInFlight while another request holds it, and nil, nil when the caller should proceed.
func (s *ResponseStore) Begin(ctx context.Context, key string) (*StoredResponse, error) {
	k := fmt.Sprintf(responseKeyFmt, key)
	acquired, err := s.rdb.SetNX(ctx, k, responseInFlight, s.lockTTL).Result()
	if err != nil {
		return nil, err
	}
	if acquired {
		return nil, nil
	}
	val, err := s.rdb.Get(ctx, k).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrInFlight
	}
	if err != nil {
		return nil, err
	}
	if val == responseInFlight {
		return nil, ErrInFlight
	}
	var resp StoredResponse
	if err := json.Unmarshal([]byte(val), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Complete stores the response for replay
func (s *ResponseStore) Complete(ctx context.Context, key string, resp StoredResponse) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, fmt.Sprintf(responseKeyFmt, key), raw, s.keepTTL).Err()
}

// Abandon drops the claim so the request can be retried
func (s *ResponseStore) Abandon(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, fmt.Sprintf(responseKeyFmt, key)).Err()
}
