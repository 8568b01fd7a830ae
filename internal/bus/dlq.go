package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/oriys/optionspulse/internal/domain"
)

// PushDLQ appends entry to the named dead-letter list via LPUSH, matching
// §6's "list of DLQEntry (append via left-push)" key layout.
func (b *Bus) PushDLQ(ctx context.Context, key string, entry *domain.DLQEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}
	return b.client.LPush(ctx, key, raw).Err()
}

// ListDLQ returns up to limit most-recent DLQ entries (0 means all).
func (b *Bus) ListDLQ(ctx context.Context, key string, limit int64) ([]domain.DLQEntry, error) {
	stop := limit - 1
	if limit <= 0 {
		stop = -1
	}
	raws, err := b.client.LRange(ctx, key, 0, stop).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]domain.DLQEntry, 0, len(raws))
	for _, raw := range raws {
		var e domain.DLQEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}
