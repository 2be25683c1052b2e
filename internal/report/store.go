package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store keeps the most recent report in Redis.
type Store struct {
	Client *redis.Client
	Prefix string
	TTL    time.Duration
}

func (s Store) key() string { return s.Prefix + ":report:sales:latest" }

// Save overwrites the latest report.
func (s Store) Save(ctx context.Context, rep Report) error {
	raw, err := json.Marshal(rep)
	if err != nil {
		return err
	}
	return s.Client.Set(ctx, s.key(), raw, s.TTL).Err()
}

// Latest returns the stored report, or nil when none has been generated.
func (s Store) Latest(ctx context.Context) (*Report, error) {
	raw, err := s.Client.Get(ctx, s.key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rep Report
	if err := json.Unmarshal(raw, &rep); err != nil {
		return nil, fmt.Errorf("report: decode latest: %w", err)
	}
	return &rep, nil
}
