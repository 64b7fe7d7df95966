package report

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/you/cyclearb/internal/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var found = types.Report{
	Pass:            7,
	Found:           true,
	Source:          "A",
	Cycle:           []types.Token{"A", "B", "C", "A"},
	Rates:           []float64{2, 2, 0.3},
	TheoreticalGain: 0.2,
	Investment:      50,
	RealizedGain:    0.19,
	Slippage:        -0.5,
}

func TestLine(t *testing.T) {
	assert.Equal(t,
		"[#7] arbitrage A -> B -> C -> A gain 20.0000% invest 50 A realized 19.0000% slippage -0.500000 A",
		Line(found))
	assert.Equal(t,
		"[#1] no actionable arbitrage this cycle: no cycle",
		Line(types.Report{Pass: 1, Reason: "no cycle"}))
	assert.Equal(t,
		"[#2] incomplete refresh: deadline exceeded",
		Line(types.Report{Pass: 2, Incomplete: true, Reason: "deadline exceeded"}))
}

func TestConsole(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	var buf bytes.Buffer
	require.NoError(t, NewConsole(&buf).Report(context.Background(), found))
	assert.Equal(t, Line(found)+"\n", buf.String())
}

func TestLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	l := NewLog(zap.New(core))

	require.NoError(t, l.Report(context.Background(), found))
	require.NoError(t, l.Report(context.Background(), types.Report{Reason: "below threshold"}))
	require.NoError(t, l.Report(context.Background(), types.Report{Incomplete: true}))

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, "arbitrage found", entries[0].Message)
	assert.Equal(t, 0.2, entries[0].ContextMap()["theoretical_gain"])
	assert.Equal(t, "no actionable arbitrage this cycle", entries[1].Message)
	assert.Equal(t, "incomplete refresh", entries[2].Message)
}

type recorder struct {
	got []types.Report
	err error
}

func (r *recorder) Report(_ context.Context, rep types.Report) error {
	r.got = append(r.got, rep)
	return r.err
}

func TestMulti_ContinuesPastFailures(t *testing.T) {
	boom := errors.New("boom")
	a, b := &recorder{err: boom}, &recorder{}
	m := NewMulti(zap.NewNop(), a, b)

	err := m.Report(context.Background(), found)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, a.got, 1)
	assert.Len(t, b.got, 1)

	a.err = nil
	assert.NoError(t, m.Report(context.Background(), found))
}
