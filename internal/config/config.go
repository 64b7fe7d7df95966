package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Token struct {
	Symbol   string `yaml:"symbol"`
	Address  string `yaml:"address"`
	Decimals uint8  `yaml:"decimals"` // 0 = read from chain
}

type Config struct {
	LogLevel string  `yaml:"log_level"`
	Tokens   []Token `yaml:"tokens"`

	// Hubs are paired with every other token when Pairs is empty.
	Hubs     []string    `yaml:"hubs"`
	Pairs    [][2]string `yaml:"pairs"`
	USDToken string      `yaml:"usd_token"`

	// CandidateSources are tried in order; the first found cycle wins.
	CandidateSources []string `yaml:"candidate_sources"`

	Risk struct {
		MinRelativeGain    float64 `yaml:"min_relative_gain"`
		MinAbsoluteGain    float64 `yaml:"min_absolute_gain"`
		LiquidityThreshold float64 `yaml:"liquidity_threshold"`

		// MinAbsoluteGainBySource overrides MinAbsoluteGain per cycle source,
		// in units of that token.
		MinAbsoluteGainBySource map[string]float64 `yaml:"min_absolute_gain_by_source"`
	} `yaml:"risk"`

	Chain struct {
		RPCHTTP      string  `yaml:"rpc_http"`
		Factory      string  `yaml:"factory"`
		Router       string  `yaml:"router"`
		Multicall    string  `yaml:"multicall"`
		RateLimitRPS float64 `yaml:"rate_limit_rps"`
		RateBurst    int     `yaml:"rate_burst"`
		CacheSize    int     `yaml:"cache_size"`
	} `yaml:"chain"`

	Timings struct {
		RefreshIntervalMs int `yaml:"refresh_interval_ms"`
		PassTimeoutMs     int `yaml:"pass_timeout_ms"` // 0 = no deadline
	} `yaml:"timings"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`

	Redis struct {
		Addr      string `yaml:"addr"`
		Stream    string `yaml:"stream"`
		LatestKey string `yaml:"latest_key"`
		MaxLen    int64  `yaml:"max_len"`
	} `yaml:"redis"`

	Dash struct {
		Addr    string `yaml:"addr"`
		History int    `yaml:"history"`
	} `yaml:"dash"`
}

// Mainnet Uniswap V2 and Multicall2 deployments.
const (
	DefaultFactory   = "0x5c69bee701ef814a2b6a3edd4b1652cb9cc5aa6f"
	DefaultRouter    = "0x7a250d5630b4cf539739df2c5dacb4c659f2488d"
	DefaultMulticall = "0x5ba1e12693dc8f9c48aad8770482f4739beed696"
)

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes YAML, applies CYCLEARB_* env overrides and fills defaults.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyEnv(os.LookupEnv)
	c.setDefaults()
	return &c, nil
}

func (c *Config) setDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if len(c.Hubs) == 0 {
		c.Hubs = []string{"USDC", "WETH"}
	}
	if c.USDToken == "" {
		c.USDToken = "USDC"
	}
	if c.Chain.Factory == "" {
		c.Chain.Factory = DefaultFactory
	}
	if c.Chain.Router == "" {
		c.Chain.Router = DefaultRouter
	}
	if c.Chain.Multicall == "" {
		c.Chain.Multicall = DefaultMulticall
	}
	if c.Chain.RateLimitRPS == 0 {
		c.Chain.RateLimitRPS = 20
	}
	if c.Chain.RateBurst == 0 {
		c.Chain.RateBurst = 5
	}
	if c.Chain.CacheSize == 0 {
		c.Chain.CacheSize = 512
	}
	if c.Timings.RefreshIntervalMs == 0 {
		c.Timings.RefreshIntervalMs = 1000
	}
	if c.Redis.Stream == "" {
		c.Redis.Stream = "cyclearb:reports"
	}
	if c.Redis.LatestKey == "" {
		c.Redis.LatestKey = "cyclearb:latest"
	}
	if c.Redis.MaxLen == 0 {
		c.Redis.MaxLen = 1000
	}
	if c.Dash.History == 0 {
		c.Dash.History = 100
	}
}

func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Timings.RefreshIntervalMs) * time.Millisecond
}

func (c *Config) PassTimeout() time.Duration {
	return time.Duration(c.Timings.PassTimeoutMs) * time.Millisecond
}

func (c *Config) Symbols() []string {
	out := make([]string, 0, len(c.Tokens))
	for _, t := range c.Tokens {
		out = append(out, t.Symbol)
	}
	return out
}

func (c *Config) Token(symbol string) (Token, bool) {
	for _, t := range c.Tokens {
		if t.Symbol == symbol {
			return t, true
		}
	}
	return Token{}, false
}

// MinAbsoluteGain is the profit target for cycles anchored on source, in
// units of source.
func (c *Config) MinAbsoluteGain(source string) float64 {
	if v, ok := c.Risk.MinAbsoluteGainBySource[source]; ok {
		return v
	}
	return c.Risk.MinAbsoluteGain
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	if !(c.Risk.MinRelativeGain >= 0) {
		errs = append(errs, fmt.Errorf("risk.min_relative_gain must be >= 0, got %v", c.Risk.MinRelativeGain))
	}
	if !(c.Risk.MinAbsoluteGain > 0) {
		errs = append(errs, fmt.Errorf("risk.min_absolute_gain must be > 0, got %v", c.Risk.MinAbsoluteGain))
	}
	if !(c.Risk.LiquidityThreshold >= 0) {
		errs = append(errs, fmt.Errorf("risk.liquidity_threshold must be >= 0, got %v", c.Risk.LiquidityThreshold))
	}
	for sym, v := range c.Risk.MinAbsoluteGainBySource {
		if !(v > 0) {
			errs = append(errs, fmt.Errorf("risk.min_absolute_gain_by_source.%s must be > 0, got %v", sym, v))
		}
		if _, ok := c.Token(sym); !ok {
			errs = append(errs, fmt.Errorf("risk.min_absolute_gain_by_source: %s is not a configured token", sym))
		}
	}
	if c.Chain.RPCHTTP == "" {
		errs = append(errs, fmt.Errorf("chain.rpc_http is empty (set it or %s)", EnvRPCHTTP))
	}
	if c.Timings.PassTimeoutMs < 0 {
		errs = append(errs, errors.New("timings.pass_timeout_ms must be >= 0"))
	}
	if len(c.CandidateSources) == 0 {
		errs = append(errs, errors.New("candidate_sources is empty"))
	}

	seen := make(map[string]bool, len(c.Tokens))
	for _, t := range c.Tokens {
		if t.Symbol == "" {
			errs = append(errs, errors.New("token with empty symbol"))
			continue
		}
		if seen[t.Symbol] {
			errs = append(errs, fmt.Errorf("token %s listed twice", t.Symbol))
		}
		seen[t.Symbol] = true
		if err := checkAddress(t.Address); err != nil {
			errs = append(errs, fmt.Errorf("token %s: %w", t.Symbol, err))
		}
	}
	known := func(sym string) bool {
		_, ok := c.Token(sym)
		return ok
	}
	for _, s := range c.CandidateSources {
		if !known(s) {
			errs = append(errs, fmt.Errorf("candidate source %s is not a configured token", s))
		}
	}
	for _, h := range c.Hubs {
		if !known(h) {
			errs = append(errs, fmt.Errorf("hub %s is not a configured token", h))
		}
	}
	for _, p := range c.Pairs {
		if !known(p[0]) || !known(p[1]) || p[0] == p[1] {
			errs = append(errs, fmt.Errorf("bad pair %s/%s", p[0], p[1]))
		}
	}
	if len(c.Tokens) > 0 && !known(c.USDToken) {
		errs = append(errs, fmt.Errorf("usd_token %s is not a configured token", c.USDToken))
	}
	for name, a := range map[string]string{"factory": c.Chain.Factory, "router": c.Chain.Router, "multicall": c.Chain.Multicall} {
		if err := checkAddress(a); err != nil {
			errs = append(errs, fmt.Errorf("chain.%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
