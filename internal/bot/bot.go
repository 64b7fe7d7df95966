package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/you/cyclearb/internal/config"
	"github.com/you/cyclearb/internal/detector"
	"github.com/you/cyclearb/internal/estimator"
	"github.com/you/cyclearb/internal/graph"
	"github.com/you/cyclearb/internal/liquidity"
	"github.com/you/cyclearb/internal/marketdata"
	imetrics "github.com/you/cyclearb/internal/metrics"
	"github.com/you/cyclearb/internal/report"
	"github.com/you/cyclearb/internal/risk"
	"github.com/you/cyclearb/internal/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type State int32

const (
	Idle State = iota
	Refreshing
	Filtering
	Building
	Detecting
	Estimating
	Reporting
)

func (s State) String() string {
	switch s {
	case Refreshing:
		return "REFRESHING"
	case Filtering:
		return "FILTERING"
	case Building:
		return "BUILDING"
	case Detecting:
		return "DETECTING"
	case Estimating:
		return "ESTIMATING"
	case Reporting:
		return "REPORTING"
	default:
		return "IDLE"
	}
}

// Bot runs refresh passes back to back: refresh, filter, build, detect,
// estimate, report. Nothing but the previous report survives a pass.
type Bot struct {
	cfg  *config.Config
	log  *zap.Logger
	src  marketdata.Source
	rep  report.Reporter
	risk *risk.Engine

	tokens  []types.Token
	sources []types.Token

	state atomic.Int32
	pass  atomic.Uint64

	mu   sync.RWMutex
	last *types.Report
}

// New takes ownership of src; Run closes it on shutdown.
func New(cfg *config.Config, src marketdata.Source, rep report.Reporter, log *zap.Logger) *Bot {
	b := &Bot{
		cfg:  cfg,
		log:  log,
		src:  src,
		rep:  rep,
		risk: risk.NewEngine(cfg),
	}
	for _, s := range cfg.Symbols() {
		b.tokens = append(b.tokens, types.Token(s))
	}
	for _, s := range cfg.CandidateSources {
		b.sources = append(b.sources, types.Token(s))
	}
	return b
}

func (b *Bot) State() State { return State(b.state.Load()) }

func (b *Bot) setState(s State) {
	b.state.Store(int32(s))
	imetrics.LoopState.Set(float64(s))
}

// Last returns the report of the previous pass.
func (b *Bot) Last() (types.Report, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.last == nil {
		return types.Report{}, false
	}
	return *b.last, true
}

// Run loops until ctx is done, then closes the source. A graceful stop
// returns nil.
func (b *Bot) Run(ctx context.Context) error {
	defer b.src.Close()

	b.log.Info("arbitrage loop started",
		zap.Int("tokens", len(b.tokens)),
		zap.Strings("sources", b.cfg.CandidateSources),
		zap.Duration("interval", b.cfg.RefreshInterval()),
	)
	t := time.NewTimer(0)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			b.log.Info("arbitrage loop stopped", zap.Uint64("passes", b.pass.Load()))
			return nil
		case <-t.C:
		}
		if ctx.Err() != nil {
			continue
		}
		b.RunPass(ctx)
		t.Reset(b.cfg.RefreshInterval())
	}
}

// RunPass executes one complete pass and reports its outcome.
func (b *Bot) RunPass(ctx context.Context) types.Report {
	start := time.Now()
	n := b.pass.Add(1)

	passCtx := ctx
	if d := b.cfg.PassTimeout(); d > 0 {
		var cancel context.CancelFunc
		passCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	r := b.runPass(passCtx)
	r.Pass = n
	r.Ts = time.Now()

	// состояние, в котором закончился проход
	switch {
	case r.Found:
		r.State = Reporting.String()
	case r.Incomplete:
		r.State = b.State().String()
	default:
		r.State = Idle.String()
	}
	b.setState(Reporting)
	if err := b.rep.Report(ctx, r); err != nil {
		b.log.Warn("report failed", zap.Uint64("pass", n), zap.Error(err))
	}

	switch {
	case r.Incomplete:
		imetrics.Passes.WithLabelValues("incomplete").Inc()
	case r.Found:
		imetrics.Passes.WithLabelValues("found").Inc()
	default:
		imetrics.Passes.WithLabelValues("none").Inc()
	}
	imetrics.PassLatency.Observe(time.Since(start).Seconds())

	b.mu.Lock()
	b.last = &r
	b.mu.Unlock()
	b.setState(Idle)
	return r
}

func (b *Bot) runPass(ctx context.Context) types.Report {
	var r types.Report

	b.setState(Refreshing)
	snap, err := marketdata.Collect(ctx, b.src, b.tokens, b.log)
	if err != nil {
		return incomplete(r, err)
	}
	r.Observations = len(snap.Observations)

	b.setState(Filtering)
	kept, dropped := liquidity.Filter(snap.Observations, snap.Liquidity, b.cfg.Risk.LiquidityThreshold, b.log)
	r.Dropped = len(dropped)

	b.setState(Building)
	g, rejected := graph.Build(b.tokens, kept)
	r.Rejected = len(rejected)
	imetrics.ObservationsRejected.Add(float64(len(rejected)))
	for _, rj := range rejected {
		b.log.Debug("observation rejected", zap.Error(rj.Err))
	}

	b.setState(Detecting)
	cycle, reason := b.detect(g)
	if cycle == nil {
		r.Reason = reason
		return r
	}
	r.Source = cycle.Source
	r.Cycle = cycle.Path
	r.Rates = cycle.Rates
	r.TheoreticalGain = cycle.TheoreticalGain
	imetrics.TheoreticalGain.Set(cycle.TheoreticalGain)

	if !b.risk.Actionable(cycle.TheoreticalGain) {
		r.Reason = fmt.Sprintf("below threshold: gain %v <= %v", cycle.TheoreticalGain, b.cfg.Risk.MinRelativeGain)
		return r
	}
	inv, err := b.risk.Investment(string(cycle.Source), cycle.TheoreticalGain)
	if err != nil {
		r.Reason = err.Error()
		return r
	}
	r.Investment = inv.InexactFloat64()

	b.setState(Estimating)
	est, err := estimator.Run(ctx, cycle, r.Investment, b.src)
	if err != nil {
		if ctx.Err() != nil {
			return incomplete(r, err)
		}
		r.Reason = "estimate failed: " + err.Error()
		return r
	}
	r.Found = true
	r.RealizedGain = est.RealizedGain
	r.Slippage = est.Slippage
	imetrics.RealizedGain.Set(est.RealizedGain)
	imetrics.Slippage.Set(est.Slippage)
	return r
}

// detect tries every candidate source in priority order and returns the
// first found cycle, or the reason there is none.
func (b *Bot) detect(g *graph.Graph) (*detector.Cycle, string) {
	var excluded []string
	for _, s := range b.sources {
		res := detector.Detect(g, s)
		switch res.Outcome {
		case detector.Found:
			return res.Cycle, ""
		case detector.CycleExcludesSource:
			excluded = append(excluded, string(s))
		}
		b.log.Debug("no cycle from source", zap.String("source", string(s)), zap.Stringer("outcome", res.Outcome))
	}
	if len(excluded) > 0 {
		return nil, "cycle excludes source " + strings.Join(excluded, ", ")
	}
	return nil, "no cycle"
}

func incomplete(r types.Report, err error) types.Report {
	r.Incomplete = true
	if errors.Is(err, context.DeadlineExceeded) {
		r.Reason = "pass deadline exceeded"
	} else {
		r.Reason = err.Error()
	}
	return r
}

func NewLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.CallerKey = "caller"
	cfg.EncoderConfig.StacktraceKey = "stacktrace"
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	return cfg.Build()
}
