package risk

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"github.com/you/cyclearb/internal/config"
)

// The quotient is rounded to this many places before Ceil so float noise in
// the gain (0.19999999999999973 for a true 0.2) does not add a whole unit.
const investmentPlaces = 9

type Engine struct{ cfg *config.Config }

func NewEngine(cfg *config.Config) *Engine { return &Engine{cfg: cfg} }

// Actionable reports whether a quoted gain clears the relative threshold.
func (e *Engine) Actionable(gain float64) bool {
	if math.IsNaN(gain) || math.IsInf(gain, 0) {
		return false
	}
	return gain > e.cfg.Risk.MinRelativeGain
}

// Investment is the smallest whole amount of the source token whose quoted
// profit reaches the absolute target of that source: ceil(target / gain).
func (e *Engine) Investment(source string, gain float64) (decimal.Decimal, error) {
	if !(gain > 0) || math.IsInf(gain, 1) {
		return decimal.Zero, fmt.Errorf("investment: gain must be positive and finite, got %v", gain)
	}
	target := decimal.NewFromFloat(e.cfg.MinAbsoluteGain(source))
	g := decimal.NewFromFloat(gain)
	return target.DivRound(g, investmentPlaces).Ceil(), nil
}
