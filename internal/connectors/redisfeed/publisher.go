package redisfeed

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/you/cyclearb/internal/config"
	"github.com/you/cyclearb/internal/types"
)

// Publisher appends every pass report to a capped stream and keeps the
// latest one under a plain key.
type Publisher struct {
	rdb       *redis.Client
	stream    string
	latestKey string
	maxLen    int64
}

func NewPublisher(cfg *config.Config) *Publisher {
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	return NewPublisherWithClient(rdb, cfg.Redis.Stream, cfg.Redis.LatestKey, cfg.Redis.MaxLen)
}

func NewPublisherWithClient(rdb *redis.Client, stream, latestKey string, maxLen int64) *Publisher {
	return &Publisher{rdb: rdb, stream: stream, latestKey: latestKey, maxLen: maxLen}
}

func (p *Publisher) Report(ctx context.Context, r types.Report) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("redisfeed: marshal report: %w", err)
	}
	pipe := p.rdb.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Values: map[string]interface{}{
			"pass":  r.Pass,
			"found": r.Found,
			"json":  b,
		},
	})
	pipe.Set(ctx, p.latestKey, b, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redisfeed: publish: %w", err)
	}
	return nil
}

func (p *Publisher) Close() error { return p.rdb.Close() }
