package types

import (
	"fmt"
	"time"
)

// Token is an opaque token symbol, e.g. "WETH".
type Token string

// Pair is a directed exchange direction.
type Pair struct {
	From Token `json:"from"`
	To   Token `json:"to"`
}

func (p Pair) String() string { return fmt.Sprintf("%s->%s", p.From, p.To) }

// Reverse returns the opposite direction of the same pool.
func (p Pair) Reverse() Pair { return Pair{From: p.To, To: p.From} }

// Key returns the unordered pool key shared by both directions.
func (p Pair) Key() PairKey {
	if p.From <= p.To {
		return PairKey{A: p.From, B: p.To}
	}
	return PairKey{A: p.To, B: p.From}
}

// PairKey identifies a pool regardless of direction; A <= B.
type PairKey struct {
	A, B Token
}

func (k PairKey) String() string { return string(k.A) + "/" + string(k.B) }

// Observation is one quoted rate: Rate units of To per unit of From.
type Observation struct {
	From Token   `json:"from"`
	To   Token   `json:"to"`
	Rate float64 `json:"rate"`
}

func (o Observation) Pair() Pair { return Pair{From: o.From, To: o.To} }

// LiquidityEstimate is the USD value of one side of a pool.
type LiquidityEstimate struct {
	Token    Token   `json:"token"`
	USDValue float64 `json:"usdValue"`
}

// Report is the outcome of one refresh pass.
type Report struct {
	Pass            uint64    `json:"pass"`
	Found           bool      `json:"found"`
	Source          Token     `json:"source,omitempty"`
	Cycle           []Token   `json:"cycle,omitempty"`
	Rates           []float64 `json:"rates,omitempty"`
	TheoreticalGain float64   `json:"theoreticalGain"`
	Investment      float64   `json:"investment"`
	RealizedGain    float64   `json:"realizedGain"`
	Slippage        float64   `json:"slippage"`
	Reason          string    `json:"reason,omitempty"`
	State           string    `json:"state"` // REPORTING if found, else IDLE or the stage a deadline hit
	Incomplete      bool      `json:"incomplete,omitempty"`
	Observations    int       `json:"observations"`
	Rejected        int       `json:"rejected"`
	Dropped         int       `json:"dropped"`
	Ts              time.Time `json:"ts"`
}
