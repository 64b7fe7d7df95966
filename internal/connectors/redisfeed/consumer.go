package redisfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/you/cyclearb/internal/config"
	"github.com/you/cyclearb/internal/types"
)

type Consumer struct {
	rdb       *redis.Client
	stream    string
	latestKey string
}

func NewConsumer(cfg *config.Config) *Consumer {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	return NewConsumerWithClient(rdb, cfg.Redis.Stream, cfg.Redis.LatestKey)
}

func NewConsumerWithClient(rdb *redis.Client, stream, latestKey string) *Consumer {
	return &Consumer{rdb: rdb, stream: stream, latestKey: latestKey}
}

// Latest returns the most recent report; redis.Nil if none was published.
func (c *Consumer) Latest(ctx context.Context) (types.Report, error) {
	b, err := c.rdb.Get(ctx, c.latestKey).Bytes()
	if err != nil {
		return types.Report{}, err
	}
	var r types.Report
	if err := json.Unmarshal(b, &r); err != nil {
		return types.Report{}, fmt.Errorf("redisfeed: decode latest: %w", err)
	}
	return r, nil
}

// Recent returns up to n reports, newest first, and the stream ID to pass
// to Follow so nothing published after the read is missed ("0" for an
// empty stream).
func (c *Consumer) Recent(ctx context.Context, n int64) ([]types.Report, string, error) {
	msgs, err := c.rdb.XRevRangeN(ctx, c.stream, "+", "-", max(n, 1)).Result()
	if err != nil {
		return nil, "", err
	}
	if len(msgs) == 0 {
		return nil, "0", nil
	}
	last := msgs[0].ID
	if int64(len(msgs)) > n {
		msgs = msgs[:max(n, 0)]
	}
	out := make([]types.Report, 0, len(msgs))
	for _, m := range msgs {
		r, err := decode(m)
		if err != nil {
			return nil, "", err
		}
		out = append(out, r)
	}
	return out, last, nil
}

// Follow streams reports published after lastID ("$" = only new ones) into
// out until ctx is done.
func (c *Consumer) Follow(ctx context.Context, lastID string, out chan<- types.Report) error {
	for {
		streams, err := c.rdb.XRead(ctx, &redis.XReadArgs{
			Streams: []string{c.stream, lastID},
			Count:   100,
			Block:   time.Second,
		}).Result()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			// ретрай после паузы
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(200 * time.Millisecond):
			}
			continue
		}
		for _, s := range streams {
			for _, m := range s.Messages {
				lastID = m.ID
				r, err := decode(m)
				if err != nil {
					continue
				}
				select {
				case out <- r:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

func (c *Consumer) Close() error { return c.rdb.Close() }

func decode(m redis.XMessage) (types.Report, error) {
	raw, ok := m.Values["json"].(string)
	if !ok {
		return types.Report{}, fmt.Errorf("redisfeed: message %s without json", m.ID)
	}
	var r types.Report
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return types.Report{}, fmt.Errorf("redisfeed: decode %s: %w", m.ID, err)
	}
	return r, nil
}
