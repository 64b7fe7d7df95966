package marketdata

import (
	"context"
	"time"

	"github.com/you/cyclearb/internal/types"
)

// Source is the market data collaborator. Implementations own their chain
// client and release it in Close.
type Source interface {
	// FetchObservations quotes mid rates between the given tokens. Pairs
	// without a pool are omitted.
	FetchObservations(ctx context.Context, tokens []types.Token) ([]types.Observation, error)
	// FetchLiquidity returns the USD value of both pool sides; ok is false
	// when no estimate is available.
	FetchLiquidity(ctx context.Context, pair types.Pair) (liq [2]types.LiquidityEstimate, ok bool, err error)
	// FetchExecutionRate quotes the rate obtained for a trade of amount
	// units of pair.From.
	FetchExecutionRate(ctx context.Context, pair types.Pair, amount float64) (float64, error)
	Close()
}

// Snapshot is everything one pass needs, fetched before graph work starts.
type Snapshot struct {
	Observations []types.Observation
	Liquidity    map[types.PairKey][2]types.LiquidityEstimate
	Ts           time.Time
}
