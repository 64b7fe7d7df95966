package estimator

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/you/cyclearb/internal/detector"
	"github.com/you/cyclearb/internal/types"
)

var ErrBadInput = errors.New("input amount must be positive and finite")

// ExecutionRater quotes the rate actually obtained when swapping amount of
// pair.From into pair.To, depth included.
type ExecutionRater interface {
	FetchExecutionRate(ctx context.Context, pair types.Pair, amount float64) (float64, error)
}

type Estimate struct {
	Input        float64
	Output       float64
	Amounts      []float64 // amount held before each hop, then the final amount
	RealizedGain float64
	// Slippage is in source token units; negative means worse than quoted.
	Slippage float64
}

// Run replays the cycle hop by hop with execution rates for input units of
// the source token.
func Run(ctx context.Context, c *detector.Cycle, input float64, rater ExecutionRater) (Estimate, error) {
	if !(input > 0) || math.IsInf(input, 1) {
		return Estimate{}, fmt.Errorf("%w: %v", ErrBadInput, input)
	}
	hops := c.Hops()
	est := Estimate{Input: input, Amounts: make([]float64, 0, len(hops)+1)}

	amount := input
	est.Amounts = append(est.Amounts, amount)
	for _, h := range hops {
		if err := ctx.Err(); err != nil {
			return Estimate{}, err
		}
		rate, err := rater.FetchExecutionRate(ctx, h, amount)
		if err != nil {
			return Estimate{}, fmt.Errorf("execution rate %s: %w", h, err)
		}
		if !(rate > 0) || math.IsInf(rate, 1) {
			return Estimate{}, fmt.Errorf("execution rate %s: invalid rate %v", h, rate)
		}
		amount *= rate
		est.Amounts = append(est.Amounts, amount)
	}

	est.Output = amount
	est.RealizedGain = amount/input - 1
	est.Slippage = input * (est.RealizedGain - c.TheoreticalGain)
	return est, nil
}
