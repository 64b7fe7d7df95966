package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/you/cyclearb/internal/types"
	"go.uber.org/zap"
)

// Reporter receives one report per pass.
type Reporter interface {
	Report(ctx context.Context, r types.Report) error
}

// Multi fans a report out to every reporter. One failing reporter does not
// stop the others; the errors are logged and returned joined.
type Multi struct {
	reporters []Reporter
	log       *zap.Logger
}

func NewMulti(log *zap.Logger, rs ...Reporter) *Multi {
	return &Multi{reporters: rs, log: log}
}

func (m *Multi) Report(ctx context.Context, r types.Report) error {
	var errs []error
	for _, rep := range m.reporters {
		if err := rep.Report(ctx, r); err != nil {
			m.log.Warn("report: reporter failed", zap.String("reporter", fmt.Sprintf("%T", rep)), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Console prints one colored status line per pass.
type Console struct {
	w io.Writer

	found  *color.Color
	idle   *color.Color
	broken *color.Color
}

func NewConsole(w io.Writer) *Console {
	return &Console{
		w:      w,
		found:  color.New(color.FgHiWhite, color.BgGreen),
		idle:   color.New(color.FgYellow),
		broken: color.New(color.FgRed),
	}
}

func (c *Console) Report(_ context.Context, r types.Report) error {
	_, err := c.w.Write([]byte(Line(r, c.found, c.idle, c.broken) + "\n"))
	return err
}

// Line renders a report as one human line, colored when colors are given.
func Line(r types.Report, colors ...*color.Color) string {
	paint := func(i int, s string) string {
		if i < len(colors) && colors[i] != nil {
			return colors[i].Sprint(s)
		}
		return s
	}
	switch {
	case r.Incomplete:
		return paint(2, fmt.Sprintf("[#%d] incomplete refresh: %s", r.Pass, r.Reason))
	case !r.Found:
		return paint(1, fmt.Sprintf("[#%d] no actionable arbitrage this cycle: %s", r.Pass, r.Reason))
	}
	path := make([]string, len(r.Cycle))
	for i, t := range r.Cycle {
		path[i] = string(t)
	}
	return paint(0, fmt.Sprintf("[#%d] arbitrage %s", r.Pass, strings.Join(path, " -> "))) +
		fmt.Sprintf(" gain %.4f%% invest %v %s realized %.4f%% slippage %.6f %s",
			r.TheoreticalGain*100, r.Investment, r.Source, r.RealizedGain*100, r.Slippage, r.Source)
}

// Log writes one structured zap line per pass.
type Log struct{ log *zap.Logger }

func NewLog(log *zap.Logger) *Log { return &Log{log: log} }

func (l *Log) Report(_ context.Context, r types.Report) error {
	fields := []zap.Field{
		zap.Uint64("pass", r.Pass),
		zap.String("state", r.State),
		zap.Int("observations", r.Observations),
		zap.Int("rejected", r.Rejected),
		zap.Int("dropped", r.Dropped),
	}
	switch {
	case r.Incomplete:
		l.log.Warn("incomplete refresh", append(fields, zap.String("reason", r.Reason))...)
	case !r.Found:
		l.log.Info("no actionable arbitrage this cycle", append(fields, zap.String("reason", r.Reason))...)
	default:
		cycle := make([]string, len(r.Cycle))
		for i, t := range r.Cycle {
			cycle[i] = string(t)
		}
		l.log.Info("arbitrage found", append(fields,
			zap.String("source", string(r.Source)),
			zap.Strings("cycle", cycle),
			zap.Float64s("rates", r.Rates),
			zap.Float64("theoretical_gain", r.TheoreticalGain),
			zap.Float64("investment", r.Investment),
			zap.Float64("realized_gain", r.RealizedGain),
			zap.Float64("slippage", r.Slippage),
		)...)
	}
	return nil
}
