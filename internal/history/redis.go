package history

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps history as one capped list per email, used when no database is configured.
// Each recorded id leaves a marker that expires after SeenTTL.
type RedisStore struct {
	Client  *redis.Client
	Prefix  string
	Max     int64
	SeenTTL time.Duration
}

// recordScript pushes the row only when the id marker is absent. The marker is written last
// so a failed push leaves nothing behind.
var recordScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
	return 0
end
redis.call("LPUSH", KEYS[2], ARGV[1])
redis.call("LTRIM", KEYS[2], 0, tonumber(ARGV[2]) - 1)
redis.call("SET", KEYS[1], "1", "PX", ARGV[3])
return 1
`)

func (s *RedisStore) prefix() string {
	if s.Prefix == "" {
		return "bundlehub"
	}
	return s.Prefix
}

func (s *RedisStore) key(email string) string {
	return s.prefix() + ":history:" + strings.ToLower(strings.TrimSpace(email))
}

func (s *RedisStore) seenKey(id string) string {
	return s.prefix() + ":history:seen:" + id
}

func (s *RedisStore) seenTTL() time.Duration {
	if s.SeenTTL <= 0 {
		return 90 * 24 * time.Hour
	}
	return s.SeenTTL
}

func (s *RedisStore) Record(ctx context.Context, rec Record) (bool, error) {
	rec, err := rec.normalized()
	if err != nil {
		return false, err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}
	max := s.Max
	if max <= 0 {
		max = 200
	}
	added, err := recordScript.Run(ctx, s.Client,
		[]string{s.seenKey(rec.ID), s.key(rec.UserEmail)},
		data, max, s.seenTTL().Milliseconds(),
	).Int()
	if err != nil {
		return false, err
	}
	return added == 1, nil
}

func (s *RedisStore) ListByEmail(ctx context.Context, email string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	raw, err := s.Client.LRange(ctx, s.key(email), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(raw))
	for _, item := range raw {
		var rec Record
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
