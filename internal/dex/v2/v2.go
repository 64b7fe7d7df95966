package v2

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/you/cyclearb/internal/config"
	imetrics "github.com/you/cyclearb/internal/metrics"
	"github.com/you/cyclearb/internal/multicall"
	"github.com/you/cyclearb/internal/types"
)

const routerABI = `[
 {"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"}
]`

const factoryABI = `[
 {"inputs":[{"internalType":"address","name":"tokenA","type":"address"},{"internalType":"address","name":"tokenB","type":"address"}],"name":"getPair","outputs":[{"internalType":"address","name":"pair","type":"address"}],"stateMutability":"view","type":"function"}
]`

const pairABI = `[
 {"inputs":[],"name":"getReserves","outputs":[{"internalType":"uint112","name":"_reserve0","type":"uint112"},{"internalType":"uint112","name":"_reserve1","type":"uint112"},{"internalType":"uint32","name":"_blockTimestampLast","type":"uint32"}],"stateMutability":"view","type":"function"},
 {"inputs":[],"name":"token0","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"}
]`

const erc20ABI = `[
 {"inputs":[],"name":"decimals","outputs":[{"internalType":"uint8","name":"","type":"uint8"}],"stateMutability":"view","type":"function"}
]`

type Token struct {
	Symbol   types.Token
	Address  common.Address
	Decimals int // 0 = read from chain
}

// Pool is a V2 pair as read in the last refresh, reserves in token units.
type Pool struct {
	Key      types.PairKey
	Address  common.Address
	ReserveA float64 // Key.A side
	ReserveB float64 // Key.B side
}

func (p Pool) reserve(t types.Token) float64 {
	if t == p.Key.A {
		return p.ReserveA
	}
	return p.ReserveB
}

type abis struct {
	router, factory, pair, erc20 abi.ABI
}

func parseABIs() (abis, error) {
	var (
		out abis
		err error
	)
	for _, x := range []struct {
		dst *abi.ABI
		src string
	}{
		{&out.router, routerABI},
		{&out.factory, factoryABI},
		{&out.pair, pairABI},
		{&out.erc20, erc20ABI},
	} {
		if *x.dst, err = abi.JSON(strings.NewReader(x.src)); err != nil {
			return abis{}, err
		}
	}
	return out, nil
}

// Source reads Uniswap V2 pools through one owned RPC client. It quotes mid
// rates from reserves, USD pool depth from the same reserves and execution
// rates from the router.
type Source struct {
	log *zap.Logger
	ec  multicall.Caller
	mc  multicall.IClient
	abi abis

	factory common.Address
	router  common.Address

	tokens []Token
	bySym  map[types.Token]int
	hubs   []types.Token
	pairs  [][2]types.Token
	usd    types.Token

	pairAddrs *lru.Cache // types.PairKey -> common.Address (zero = no pool)
	decimals  *lru.Cache // common.Address -> int
	limiter   *rate.Limiter

	mu    sync.RWMutex
	pools map[types.PairKey]Pool

	closer func()
}

// New dials the RPC endpoint from cfg. The client lives until Close.
func New(cfg *config.Config, log *zap.Logger) (*Source, error) {
	ec, err := ethclient.Dial(cfg.Chain.RPCHTTP)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	mc, err := multicall.New(ec, common.HexToAddress(cfg.Chain.Multicall))
	if err != nil {
		ec.Close()
		return nil, err
	}
	s, err := newSource(cfg, ec, mc, log)
	if err != nil {
		ec.Close()
		return nil, err
	}
	s.closer = ec.Close
	return s, nil
}

func newSource(cfg *config.Config, ec multicall.Caller, mc multicall.IClient, log *zap.Logger) (*Source, error) {
	a, err := parseABIs()
	if err != nil {
		return nil, err
	}
	pairAddrs, err := lru.New(cfg.Chain.CacheSize)
	if err != nil {
		return nil, err
	}
	decimals, err := lru.New(cfg.Chain.CacheSize)
	if err != nil {
		return nil, err
	}

	s := &Source{
		log:       log,
		ec:        ec,
		mc:        mc,
		abi:       a,
		factory:   common.HexToAddress(cfg.Chain.Factory),
		router:    common.HexToAddress(cfg.Chain.Router),
		bySym:     make(map[types.Token]int, len(cfg.Tokens)),
		usd:       types.Token(cfg.USDToken),
		pairAddrs: pairAddrs,
		decimals:  decimals,
		limiter:   rate.NewLimiter(rate.Limit(cfg.Chain.RateLimitRPS), cfg.Chain.RateBurst),
		pools:     make(map[types.PairKey]Pool),
	}
	for _, t := range cfg.Tokens {
		tok := Token{Symbol: types.Token(t.Symbol), Address: common.HexToAddress(t.Address), Decimals: int(t.Decimals)}
		s.bySym[tok.Symbol] = len(s.tokens)
		s.tokens = append(s.tokens, tok)
		if tok.Decimals > 0 {
			s.decimals.Add(tok.Address, tok.Decimals)
		}
	}
	for _, h := range cfg.Hubs {
		s.hubs = append(s.hubs, types.Token(h))
	}
	for _, p := range cfg.Pairs {
		s.pairs = append(s.pairs, [2]types.Token{types.Token(p[0]), types.Token(p[1])})
	}
	return s, nil
}

func (s *Source) Close() {
	if s.closer != nil {
		s.closer()
	}
}

// Tokens lists the configured token symbols in config order.
func (s *Source) Tokens() []types.Token {
	out := make([]types.Token, len(s.tokens))
	for i, t := range s.tokens {
		out[i] = t.Symbol
	}
	return out
}

// candidates lists the unordered pools to read: explicit pairs if
// configured, otherwise every hub against every other token.
func (s *Source) candidates(tokens []types.Token) []types.PairKey {
	want := make(map[types.Token]bool, len(tokens))
	for _, t := range tokens {
		if _, ok := s.bySym[t]; ok {
			want[t] = true
		}
	}
	seen := make(map[types.PairKey]bool)
	var out []types.PairKey
	add := func(a, b types.Token) {
		if a == b || !want[a] || !want[b] {
			return
		}
		k := types.Pair{From: a, To: b}.Key()
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	if len(s.pairs) > 0 {
		for _, p := range s.pairs {
			add(p[0], p[1])
		}
		return out
	}
	for _, h := range s.hubs {
		for _, t := range tokens {
			add(h, t)
		}
	}
	return out
}

// FetchObservations refreshes every candidate pool and quotes both
// directions of each at the reserve mid rate.
func (s *Source) FetchObservations(ctx context.Context, tokens []types.Token) ([]types.Observation, error) {
	keys := s.candidates(tokens)
	if err := s.loadDecimals(ctx); err != nil {
		return nil, err
	}
	addrs, err := s.resolvePairs(ctx, keys)
	if err != nil {
		return nil, err
	}
	pools, err := s.readReserves(ctx, addrs)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.pools = make(map[types.PairKey]Pool, len(pools))
	for _, p := range pools {
		s.pools[p.Key] = p
	}
	s.mu.Unlock()

	out := make([]types.Observation, 0, 2*len(pools))
	for _, p := range pools {
		if !(p.ReserveA > 0 && p.ReserveB > 0) {
			s.log.Debug("v2: empty pool", zap.String("pool", p.Key.String()))
			continue
		}
		out = append(out,
			types.Observation{From: p.Key.A, To: p.Key.B, Rate: p.ReserveB / p.ReserveA},
			types.Observation{From: p.Key.B, To: p.Key.A, Rate: p.ReserveA / p.ReserveB},
		)
	}
	return out, nil
}

// Pools returns the pools read by the last FetchObservations, sorted by key.
func (s *Source) Pools() []Pool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]types.PairKey, 0, len(s.pools))
	for k := range s.pools {
		keys = append(keys, k)
	}
	sortKeys(keys)
	out := make([]Pool, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.pools[k])
	}
	return out
}

// FetchLiquidity values both sides of the pool in USD using the USD token
// pools from the last refresh.
func (s *Source) FetchLiquidity(_ context.Context, pair types.Pair) ([2]types.LiquidityEstimate, bool, error) {
	k := pair.Key()
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pools[k]
	if !ok {
		return [2]types.LiquidityEstimate{}, false, nil
	}
	var out [2]types.LiquidityEstimate
	for i, t := range []types.Token{k.A, k.B} {
		px, ok := s.usdPrice(t)
		if !ok {
			return [2]types.LiquidityEstimate{}, false, nil
		}
		out[i] = types.LiquidityEstimate{Token: t, USDValue: p.reserve(t) * px}
	}
	return out, true, nil
}

// usdPrice prices t from its pool against the USD token, or through a hub
// priced that way. Callers hold s.mu.
func (s *Source) usdPrice(t types.Token) (float64, bool) {
	if t == s.usd {
		return 1, true
	}
	direct := func(a, b types.Token) (float64, bool) {
		p, ok := s.pools[types.Pair{From: a, To: b}.Key()]
		if !ok || !(p.reserve(a) > 0) {
			return 0, false
		}
		return p.reserve(b) / p.reserve(a), true
	}
	if px, ok := direct(t, s.usd); ok {
		return px, true
	}
	for _, h := range s.hubs {
		if h == t || h == s.usd {
			continue
		}
		hubUSD, ok := direct(h, s.usd)
		if !ok {
			continue
		}
		if px, ok := direct(t, h); ok {
			return px * hubUSD, true
		}
	}
	return 0, false
}

// FetchExecutionRate asks the router how much pair.To a trade of amount
// pair.From returns, fees and depth included.
func (s *Source) FetchExecutionRate(ctx context.Context, pair types.Pair, amount float64) (float64, error) {
	if !(amount > 0) || math.IsInf(amount, 1) {
		return 0, fmt.Errorf("bad amount %v", amount)
	}
	in, ok := s.token(pair.From)
	if !ok {
		return 0, fmt.Errorf("unknown token %s", pair.From)
	}
	out, ok := s.token(pair.To)
	if !ok {
		return 0, fmt.Errorf("unknown token %s", pair.To)
	}
	inDec, err := s.fetchDecimals(ctx, in.Address)
	if err != nil {
		return 0, err
	}
	outDec, err := s.fetchDecimals(ctx, out.Address)
	if err != nil {
		return 0, err
	}

	inWei := toWei(amount, inDec)
	if inWei.Sign() <= 0 {
		return 0, fmt.Errorf("amount %v too small", amount)
	}
	data, err := s.abi.router.Pack("getAmountsOut", inWei, []common.Address{in.Address, out.Address})
	if err != nil {
		return 0, err
	}
	raw, err := s.call(ctx, "getAmountsOut", ethereum.CallMsg{To: &s.router, Data: data})
	if err != nil {
		return 0, err
	}
	outs, err := s.abi.router.Methods["getAmountsOut"].Outputs.Unpack(raw)
	if err != nil || len(outs) == 0 {
		return 0, errors.New("decode getAmountsOut")
	}
	amounts, ok := outs[0].([]*big.Int)
	if !ok || len(amounts) < 2 {
		return 0, errors.New("bad amounts length")
	}
	got := toFloat(amounts[len(amounts)-1], outDec)
	r := got / amount
	if !isFinite(r) || r <= 0 {
		return 0, fmt.Errorf("bad execution rate %v", r)
	}
	return r, nil
}

func (s *Source) token(sym types.Token) (Token, bool) {
	i, ok := s.bySym[sym]
	if !ok {
		return Token{}, false
	}
	return s.tokens[i], true
}

// ---------- chain reads ----------

func (s *Source) call(ctx context.Context, method string, msg ethereum.CallMsg) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	raw, err := s.ec.CallContract(ctx, msg, nil)
	imetrics.RPCLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		imetrics.RPCErrors.WithLabelValues(method).Inc()
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	return raw, nil
}

func (s *Source) aggregate(ctx context.Context, method string, calls []multicall.Call) ([]multicall.Result, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	res, err := s.mc.Aggregate(ctx, calls)
	imetrics.RPCLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		imetrics.RPCErrors.WithLabelValues(method).Inc()
		return nil, fmt.Errorf("multicall %s: %w", method, err)
	}
	if len(res) != len(calls) {
		return nil, fmt.Errorf("multicall %s: %d results for %d calls", method, len(res), len(calls))
	}
	return res, nil
}

// loadDecimals batches decimals() for tokens not yet cached.
func (s *Source) loadDecimals(ctx context.Context) error {
	var (
		missing []common.Address
		calls   []multicall.Call
	)
	data, _ := s.abi.erc20.Pack("decimals")
	for _, t := range s.tokens {
		if _, ok := s.decimals.Get(t.Address); ok {
			continue
		}
		missing = append(missing, t.Address)
		calls = append(calls, multicall.Call{Target: t.Address, CallData: data})
	}
	res, err := s.aggregate(ctx, "decimals", calls)
	if err != nil {
		return err
	}
	for i, r := range res {
		if !r.Success {
			s.log.Warn("v2: decimals call failed", zap.String("token", missing[i].Hex()))
			continue
		}
		d, err := s.decodeDecimals(r.ReturnData)
		if err != nil {
			return err
		}
		s.decimals.Add(missing[i], d)
	}
	return nil
}

func (s *Source) fetchDecimals(ctx context.Context, token common.Address) (int, error) {
	if d, ok := s.decimals.Get(token); ok {
		return d.(int), nil
	}
	data, _ := s.abi.erc20.Pack("decimals")
	raw, err := s.call(ctx, "decimals", ethereum.CallMsg{To: &token, Data: data})
	if err != nil {
		return 0, err
	}
	d, err := s.decodeDecimals(raw)
	if err != nil {
		return 0, err
	}
	s.decimals.Add(token, d)
	return d, nil
}

func (s *Source) decodeDecimals(raw []byte) (int, error) {
	outs, err := s.abi.erc20.Methods["decimals"].Outputs.Unpack(raw)
	if err != nil || len(outs) == 0 {
		return 0, errors.New("decode decimals")
	}
	switch x := outs[0].(type) {
	case uint8:
		return int(x), nil
	case *big.Int:
		return int(x.Int64()), nil
	default:
		return 0, errors.New("unexpected decimals type")
	}
}

// resolvePairs maps pool keys to pair addresses via factory.getPair. Found
// addresses are cached across passes; missing pools are asked again every
// pass and left out.
func (s *Source) resolvePairs(ctx context.Context, keys []types.PairKey) (map[types.PairKey]common.Address, error) {
	out := make(map[types.PairKey]common.Address, len(keys))
	var (
		pending []types.PairKey
		calls   []multicall.Call
	)
	for _, k := range keys {
		if a, ok := s.pairAddrs.Get(k); ok {
			out[k] = a.(common.Address)
			continue
		}
		a, _ := s.token(k.A)
		b, _ := s.token(k.B)
		data, err := s.abi.factory.Pack("getPair", a.Address, b.Address)
		if err != nil {
			return nil, err
		}
		pending = append(pending, k)
		calls = append(calls, multicall.Call{Target: s.factory, CallData: data})
	}

	res, err := s.aggregate(ctx, "getPair", calls)
	if err != nil {
		return nil, err
	}
	for i, r := range res {
		k := pending[i]
		if !r.Success {
			s.log.Debug("v2: getPair failed", zap.String("pool", k.String()))
			continue
		}
		outs, err := s.abi.factory.Methods["getPair"].Outputs.Unpack(r.ReturnData)
		if err != nil || len(outs) == 0 {
			return nil, errors.New("decode getPair")
		}
		addr := outs[0].(common.Address)
		if addr == (common.Address{}) {
			// не кэшируем: пул могут создать позже
			s.log.Debug("v2: no pool", zap.String("pool", k.String()))
			continue
		}
		s.pairAddrs.Add(k, addr)
		out[k] = addr
	}
	return out, nil
}

// readReserves batches getReserves and token0 for every pool.
func (s *Source) readReserves(ctx context.Context, addrs map[types.PairKey]common.Address) ([]Pool, error) {
	keys := make([]types.PairKey, 0, len(addrs))
	for k := range addrs {
		keys = append(keys, k)
	}
	// стабильный порядок наблюдений между проходами
	sortKeys(keys)

	resData, _ := s.abi.pair.Pack("getReserves")
	t0Data, _ := s.abi.pair.Pack("token0")
	calls := make([]multicall.Call, 0, 2*len(keys))
	for _, k := range keys {
		calls = append(calls,
			multicall.Call{Target: addrs[k], CallData: resData},
			multicall.Call{Target: addrs[k], CallData: t0Data},
		)
	}
	res, err := s.aggregate(ctx, "getReserves", calls)
	if err != nil {
		return nil, err
	}

	out := make([]Pool, 0, len(keys))
	for i, k := range keys {
		rr, tr := res[2*i], res[2*i+1]
		if !rr.Success || !tr.Success {
			s.log.Debug("v2: reserves call failed", zap.String("pool", k.String()))
			continue
		}
		outs, err := s.abi.pair.Methods["getReserves"].Outputs.Unpack(rr.ReturnData)
		if err != nil || len(outs) < 2 {
			return nil, errors.New("decode getReserves")
		}
		t0, err := s.abi.pair.Methods["token0"].Outputs.Unpack(tr.ReturnData)
		if err != nil || len(t0) == 0 {
			return nil, errors.New("decode token0")
		}
		r0, r1 := outs[0].(*big.Int), outs[1].(*big.Int)

		a, _ := s.token(k.A)
		b, _ := s.token(k.B)
		if t0[0].(common.Address) != a.Address {
			r0, r1 = r1, r0
		}
		decA, okA := s.decimals.Get(a.Address)
		decB, okB := s.decimals.Get(b.Address)
		if !okA || !okB {
			s.log.Debug("v2: unknown decimals", zap.String("pool", k.String()))
			continue
		}
		out = append(out, Pool{
			Key:      k,
			Address:  addrs[k],
			ReserveA: toFloat(r0, decA.(int)),
			ReserveB: toFloat(r1, decB.(int)),
		})
	}
	return out, nil
}

func sortKeys(keys []types.PairKey) {
	slices.SortFunc(keys, func(x, y types.PairKey) int {
		if c := cmp.Compare(x.A, y.A); c != 0 {
			return c
		}
		return cmp.Compare(x.B, y.B)
	})
}

// toFloat converts wei (scaled int) to decimal float using token decimals.
func toFloat(x *big.Int, decimals int) float64 {
	if x == nil {
		return 0
	}
	f := new(big.Float).SetInt(x)
	div := new(big.Float).SetFloat64(math.Pow10(decimals))
	f.Quo(f, div)
	val, _ := f.Float64()
	return val
}

func toWei(amount float64, decimals int) *big.Int {
	f := new(big.Float).Mul(big.NewFloat(amount), big.NewFloat(math.Pow10(decimals)))
	out := new(big.Int)
	f.Int(out)
	return out
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 1) && !math.IsInf(x, -1)
}
