package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	Passes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cyclearb_passes_total",
		Help: "Completed refresh passes by result",
	}, []string{"result"})

	LoopState = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cyclearb_loop_state",
		Help: "Current arbitrage loop state (numeric bot.State)",
	})

	PassLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cyclearb_pass_latency_seconds",
		Help:    "Wall time of one refresh pass",
		Buckets: prometheus.DefBuckets,
	})

	ObservationsRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cyclearb_observations_rejected_total",
		Help: "Observations left out of the graph as invalid",
	})

	LiquidityDrops = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cyclearb_liquidity_drops_total",
		Help: "Observations dropped by the liquidity filter",
	}, []string{"reason"})

	TheoreticalGain = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cyclearb_theoretical_gain",
		Help: "Quoted relative gain of the last found cycle",
	})

	RealizedGain = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cyclearb_realized_gain",
		Help: "Execution-replayed relative gain of the last estimated cycle",
	})

	Slippage = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cyclearb_slippage",
		Help: "Slippage of the last estimated cycle, in source token units",
	})

	RPCErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cyclearb_rpc_errors_total",
		Help: "Number of failed chain reads",
	}, []string{"method"})

	RPCLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cyclearb_rpc_latency_seconds",
		Help:    "Time to complete one chain read",
		Buckets: prometheus.DefBuckets, // можно настроить под себя
	})
)

func init() {
	prometheus.MustRegister(
		Passes,
		LoopState,
		PassLatency,
		ObservationsRejected,
		LiquidityDrops,
		TheoreticalGain,
		RealizedGain,
		Slippage,
		RPCErrors,
		RPCLatency,
	)
}
