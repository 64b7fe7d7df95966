package liquidity

import (
	"fmt"

	"github.com/you/cyclearb/internal/metrics"
	"github.com/you/cyclearb/internal/types"
	"go.uber.org/zap"
)

const (
	ReasonLow     = "low"
	ReasonMissing = "missing"
)

// Drop is an observation excluded from the graph for lack of liquidity.
type Drop struct {
	Observation types.Observation
	Kind        string // ReasonLow or ReasonMissing
	Reason      string
}

// Filter keeps observations whose pool has at least threshold USD on both
// sides. A pool with no liquidity record is dropped too. Order is preserved.
func Filter(
	observations []types.Observation,
	liq map[types.PairKey][2]types.LiquidityEstimate,
	threshold float64,
	log *zap.Logger,
) ([]types.Observation, []Drop) {
	if log == nil {
		log = zap.NewNop()
	}
	kept := make([]types.Observation, 0, len(observations))
	var dropped []Drop
	for _, o := range observations {
		d, ok := check(o, liq, threshold)
		if ok {
			kept = append(kept, o)
			continue
		}
		dropped = append(dropped, d)
		metrics.LiquidityDrops.WithLabelValues(d.Kind).Inc()
		log.Debug("liquidity: observation dropped",
			zap.String("pair", o.Pair().String()),
			zap.String("reason", d.Reason),
		)
	}
	return kept, dropped
}

func check(o types.Observation, liq map[types.PairKey][2]types.LiquidityEstimate, threshold float64) (Drop, bool) {
	sides, ok := liq[o.Pair().Key()]
	if !ok {
		return Drop{Observation: o, Kind: ReasonMissing, Reason: "missing liquidity"}, false
	}
	low := sides[0].USDValue
	if sides[1].USDValue < low {
		low = sides[1].USDValue
	}
	// NaN never passes
	if !(low >= threshold) {
		return Drop{Observation: o, Kind: ReasonLow, Reason: fmt.Sprintf("low liquidity: %v", low)}, false
	}
	return Drop{}, true
}
