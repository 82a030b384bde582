package counter

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/UnseenElementz/plex-crm-sub001/app/models"
)

const (
	accessHitsKey = "gate:access:hits"
	accessSeenKey = "gate:access:seen"
)

type lastSeen struct {
	At        time.Time `json:"at"`
	Path      string    `json:"path"`
	UserAgent string    `json:"ua,omitempty"`
}

// Merger persists drained access entries.
type Merger interface {
	MergeIPLogs(ctx context.Context, fresh map[string]models.IPLog) error
}

// AccessBuffer collects per-IP access counters in Redis between flushes so
// the settings store is not written on every request.
type AccessBuffer struct {
	client *redis.Client
}

func NewAccessBuffer(client *redis.Client) *AccessBuffer {
	return &AccessBuffer{client: client}
}

// Record increments the pending hit counter for ip and stores its last-seen
// metadata.
func (b *AccessBuffer) Record(ctx context.Context, ip, path, userAgent string, at time.Time) error {
	if ip == "" {
		return nil
	}
	seen, err := json.Marshal(lastSeen{At: at.UTC(), Path: path, UserAgent: truncate(userAgent, 256)})
	if err != nil {
		return err
	}
	pipe := b.client.Pipeline()
	pipe.HIncrBy(ctx, accessHitsKey, ip, 1)
	pipe.HSet(ctx, accessSeenKey, ip, seen)
	_, err = pipe.Exec(ctx)
	return err
}

// Flush drains the buffer and merges it through m. On merge failure the
// drained hits are put back so the next flush retries them.
func (b *AccessBuffer) Flush(ctx context.Context, m Merger) (int, error) {
	entries, err := b.drain(ctx)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}
	if err := m.MergeIPLogs(ctx, entries); err != nil {
		b.restore(entries)
		return 0, fmt.Errorf("merge ip logs: %w", err)
	}
	return len(entries), nil
}

// drain moves both hashes to temporary keys with RENAME so increments that
// arrive during the flush land in fresh hashes. If anything fails after the
// hits were moved, they are merged back into the live hash before the
// temporary keys are removed.
func (b *AccessBuffer) drain(ctx context.Context) (out map[string]models.IPLog, err error) {
	suffix := strconv.FormatInt(time.Now().UnixNano(), 10)
	hitsTmp := accessHitsKey + ":tmp:" + suffix
	seenTmp := accessSeenKey + ":tmp:" + suffix

	hitsMoved, err := b.rename(ctx, accessHitsKey, hitsTmp)
	if err != nil {
		return nil, err
	}
	seenMoved := false
	defer func() {
		bg := context.WithoutCancel(ctx)
		if err != nil && hitsMoved {
			if perr := b.putBack(bg, hitsTmp, seenTmp, seenMoved); perr != nil {
				log.Errorf("[AccessBuffer] putting back drained hits failed, keeping %s: %v", hitsTmp, perr)
				return
			}
		}
		b.client.Del(bg, hitsTmp, seenTmp)
	}()

	if seenMoved, err = b.rename(ctx, accessSeenKey, seenTmp); err != nil {
		return nil, err
	}

	hits := map[string]string{}
	if hitsMoved {
		if hits, err = b.client.HGetAll(ctx, hitsTmp).Result(); err != nil {
			return nil, err
		}
	}
	seen := map[string]string{}
	if seenMoved {
		if seen, err = b.client.HGetAll(ctx, seenTmp).Result(); err != nil {
			return nil, err
		}
	}

	out = make(map[string]models.IPLog, len(hits))
	for ip, v := range hits {
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil || n <= 0 {
			continue
		}
		entry := models.IPLog{Hits: n}
		if raw, ok := seen[ip]; ok {
			var ls lastSeen
			if json.Unmarshal([]byte(raw), &ls) == nil {
				entry.LastSeen = ls.At
				entry.LastPath = ls.Path
				entry.UserAgent = ls.UserAgent
			}
		}
		out[ip] = entry
	}
	return out, nil
}

// putBack adds moved counters onto the live hashes. Hits that arrived in the
// meantime are kept; newer last-seen entries win.
func (b *AccessBuffer) putBack(ctx context.Context, hitsTmp, seenTmp string, seenMoved bool) error {
	hits, err := b.client.HGetAll(ctx, hitsTmp).Result()
	if err != nil {
		return err
	}
	var seen map[string]string
	if seenMoved {
		if seen, err = b.client.HGetAll(ctx, seenTmp).Result(); err != nil {
			return err
		}
	}
	pipe := b.client.Pipeline()
	for ip, v := range hits {
		n, perr := strconv.ParseInt(v, 10, 64)
		if perr != nil || n <= 0 {
			continue
		}
		pipe.HIncrBy(ctx, accessHitsKey, ip, n)
	}
	for ip, raw := range seen {
		pipe.HSetNX(ctx, accessSeenKey, ip, raw)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (b *AccessBuffer) rename(ctx context.Context, from, to string) (bool, error) {
	if err := b.client.Rename(ctx, from, to).Err(); err != nil {
		// If key does not exist, nothing to flush
		if err == redis.Nil || strings.Contains(strings.ToLower(err.Error()), "no such key") {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (b *AccessBuffer) restore(entries map[string]models.IPLog) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pipe := b.client.Pipeline()
	for ip, e := range entries {
		pipe.HIncrBy(ctx, accessHitsKey, ip, e.Hits)
		if seen, err := json.Marshal(lastSeen{At: e.LastSeen, Path: e.LastPath, UserAgent: e.UserAgent}); err == nil {
			pipe.HSetNX(ctx, accessSeenKey, ip, seen)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Errorf("[AccessBuffer] restoring %d entries failed: %v", len(entries), err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
