package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces the ledger keys.
const DefaultRedisPrefix = "hivesync:imported"

// Redis keeps one key per entry (written with SETNX) and a set of all ids.
type Redis struct {
	client *redis.Client
	prefix string
}

type redisEntry struct {
	ActionDate  string    `json:"action_date"`
	ChecklistID string    `json:"checklist_id,omitempty"`
	ImportedAt  time.Time `json:"imported_at"`
}

// OpenRedis connects to the Redis server at url (redis:// or rediss://).
func OpenRedis(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: parse redis URL: %v", ErrOpen, err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping redis: %v", ErrOpen, err)
	}

	return &Redis{client: client, prefix: DefaultRedisPrefix}, nil
}

func (r *Redis) entryKey(recordID string) string {
	return r.prefix + ":" + recordID
}

// KnownIDs returns every marked record id.
func (r *Redis) KnownIDs(ctx context.Context) (map[string]struct{}, error) {
	ids, err := r.client.SMembers(ctx, r.prefix).Result()
	if err != nil {
		return nil, fmt.Errorf("query imported ids: %w", err)
	}

	known := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		known[id] = struct{}{}
	}
	return known, nil
}

// Mark writes the entry key only if it does not exist yet. The id is always
// added to the index set so an interrupted earlier Mark is completed.
func (r *Redis) Mark(ctx context.Context, recordID, actionDate, checklistID string) error {
	data, err := json.Marshal(redisEntry{
		ActionDate:  actionDate,
		ChecklistID: checklistID,
		ImportedAt:  time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, recordID, err)
	}

	if err := r.client.SetNX(ctx, r.entryKey(recordID), data, 0).Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, recordID, err)
	}
	if err := r.client.SAdd(ctx, r.prefix, recordID).Err(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrWrite, recordID, err)
	}
	return nil
}

// Get returns the entry for recordID.
func (r *Redis) Get(ctx context.Context, recordID string) (*Entry, error) {
	data, err := r.client.Get(ctx, r.entryKey(recordID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, recordID)
	}
	if err != nil {
		return nil, fmt.Errorf("query entry %s: %w", recordID, err)
	}

	var e redisEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode entry %s: %w", recordID, err)
	}

	return &Entry{
		RecordID:    recordID,
		ActionDate:  e.ActionDate,
		ChecklistID: e.ChecklistID,
		ImportedAt:  e.ImportedAt,
	}, nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}
