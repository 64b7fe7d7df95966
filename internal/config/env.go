package config

import "github.com/joho/godotenv"

// Environment overrides, applied on top of the YAML file.
const (
	EnvRPCHTTP     = "CYCLEARB_RPC_HTTP"
	EnvRedisAddr   = "CYCLEARB_REDIS_ADDR"
	EnvLogLevel    = "CYCLEARB_LOG_LEVEL"
	EnvMetricsAddr = "CYCLEARB_METRICS_ADDR"
	EnvDashAddr    = "CYCLEARB_DASH_ADDR"
)

// LoadEnv loads variables from the given .env files (default ".env").
// Variables already set in the process environment win.
func LoadEnv(files ...string) error {
	return godotenv.Load(files...)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	set(EnvRPCHTTP, &c.Chain.RPCHTTP)
	set(EnvRedisAddr, &c.Redis.Addr)
	set(EnvLogLevel, &c.LogLevel)
	set(EnvMetricsAddr, &c.Metrics.Addr)
	set(EnvDashAddr, &c.Dash.Addr)
}
