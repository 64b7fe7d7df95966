package marketdata

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/you/cyclearb/internal/types"
	"go.uber.org/zap"
)

// Collect fetches observations and then liquidity for every distinct pool
// they touch, in parallel. A failed liquidity read is logged and left out,
// so the filter treats that pool as missing.
func Collect(ctx context.Context, src Source, tokens []types.Token, log *zap.Logger) (Snapshot, error) {
	obs, err := src.FetchObservations(ctx, tokens)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch observations: %w", err)
	}

	pools := make([]types.Pair, 0, len(obs))
	seen := make(map[types.PairKey]bool, len(obs))
	for _, o := range obs {
		k := o.Pair().Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		pools = append(pools, types.Pair{From: k.A, To: k.B})
	}

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		liq = make(map[types.PairKey][2]types.LiquidityEstimate, len(pools))
	)
	for _, p := range pools {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			l, ok, err := src.FetchLiquidity(ctx, p)
			if err != nil {
				log.Warn("marketdata: liquidity fetch failed", zap.String("pool", p.Key().String()), zap.Error(err))
				return
			}
			if !ok {
				log.Debug("marketdata: no liquidity estimate", zap.String("pool", p.Key().String()))
				return
			}
			mu.Lock()
			liq[p.Key()] = l
			mu.Unlock()
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Observations: obs, Liquidity: liq, Ts: time.Now()}, nil
}
