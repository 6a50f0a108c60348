package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rentcar-backend/internal/checkout"
	"rentcar-backend/internal/domain"
	"rentcar-backend/internal/logger"

	"github.com/redis/go-redis/v9"
)

const draftKeyFmt = "checkout:draft:%s"

// DraftStore keeps checkout drafts between requests. Every save refreshes the TTL.
type DraftStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewDraftStore(rdb redis.Cmdable, ttl time.Duration) *DraftStore {
	return &DraftStore{rdb: rdb, ttl: ttl}
}

func (s *DraftStore) Save(ctx context.Context, d checkout.Draft) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode draft: %w", err)
	}
	if err := s.rdb.Set(ctx, fmt.Sprintf(draftKeyFmt, d.SessionID), raw, s.ttl).Err(); err != nil {
		logger.Error("Failed to save checkout draft", "sessionID", d.SessionID, "error", err)
		return err
	}
	return nil
}

// Load returns the stored draft or a not-found error once it has expired
func (s *DraftStore) Load(ctx context.Context, sessionID string) (checkout.Draft, error) {
	raw, err := s.rdb.Get(ctx, fmt.Sprintf(draftKeyFmt, sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return checkout.Draft{}, domain.NewNotFoundError("checkout session", sessionID)
	}
	if err != nil {
		return checkout.Draft{}, err
	}
	var d checkout.Draft
	if err := json.Unmarshal(raw, &d); err != nil {
		return checkout.Draft{}, fmt.Errorf("decode draft %s: %w", sessionID, err)
	}
	return d, nil
}
