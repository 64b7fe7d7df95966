package detector

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/you/cyclearb/internal/graph"
	"github.com/you/cyclearb/internal/types"
)

func obs(from, to string, rate float64) types.Observation {
	return types.Observation{From: types.Token(from), To: types.Token(to), Rate: rate}
}

func build(t *testing.T, vs []types.Token, in ...types.Observation) *graph.Graph {
	t.Helper()
	g, rejected := graph.Build(vs, in)
	require.Empty(t, rejected)
	return g
}

var abc = []types.Token{"A", "B", "C"}

func TestDetect_ProfitableTriangle(t *testing.T) {
	g := build(t, abc, obs("A", "B", 2.0), obs("B", "C", 2.0), obs("C", "A", 0.3))

	res := Detect(g, "A")
	require.Equal(t, Found, res.Outcome)
	require.NotNil(t, res.Cycle)
	assert.Equal(t, []types.Token{"A", "B", "C", "A"}, res.Cycle.Path)
	assert.Equal(t, []float64{2.0, 2.0, 0.3}, res.Cycle.Rates)
	assert.InDelta(t, 0.2, res.Cycle.TheoreticalGain, 1e-9)
	assert.Less(t, res.Cycle.Weight, 0.0)
	assert.Equal(t, types.Token("A"), res.Cycle.Source)
}

func TestDetect_UnprofitableTriangle(t *testing.T) {
	g := build(t, abc, obs("A", "B", 2.0), obs("B", "C", 2.0), obs("C", "A", 0.2))

	res := Detect(g, "A")
	assert.Equal(t, NoCycle, res.Outcome)
	assert.Nil(t, res.Cycle)
}

func TestDetect_CycleExcludesSource(t *testing.T) {
	g := build(t, abc, obs("A", "B", 1.0), obs("B", "C", 2.0), obs("C", "B", 0.6))

	res := Detect(g, "A")
	assert.Equal(t, CycleExcludesSource, res.Outcome)
	assert.Nil(t, res.Cycle)

	res = Detect(g, "B")
	require.Equal(t, Found, res.Outcome)
	assert.Equal(t, []types.Token{"B", "C", "B"}, res.Cycle.Path)
	assert.InDelta(t, 0.2, res.Cycle.TheoreticalGain, 1e-9)
}

func TestDetect_RotatesToEachSourceOnCycle(t *testing.T) {
	g := build(t, abc, obs("A", "B", 2.0), obs("B", "C", 2.0), obs("C", "A", 0.3))

	for _, src := range abc {
		res := Detect(g, src)
		require.Equal(t, Found, res.Outcome, string(src))
		p := res.Cycle.Path
		assert.Equal(t, src, p[0])
		assert.Equal(t, src, p[len(p)-1])
		assert.Len(t, p, 4)
		assert.InDelta(t, 0.2, res.Cycle.TheoreticalGain, 1e-9)
	}
}

func TestDetect_EmptyAndDegenerateGraphs(t *testing.T) {
	g := build(t, []types.Token{"A"})
	assert.Equal(t, NoCycle, Detect(g, "A").Outcome)

	g = build(t, abc)
	assert.Equal(t, NoCycle, Detect(g, "A").Outcome)

	g = build(t, abc, obs("A", "B", 2.0), obs("B", "A", 0.6))
	assert.Equal(t, NoCycle, Detect(g, "Z").Outcome)
}

func TestDetect_IgnoresSelfLoops(t *testing.T) {
	g := build(t, abc, obs("A", "A", 5.0), obs("A", "B", 1.0), obs("B", "A", 0.9))
	assert.Equal(t, NoCycle, Detect(g, "A").Outcome)
}

func TestDetect_UnreachableCycle(t *testing.T) {
	g := build(t, abc, obs("B", "C", 2.0), obs("C", "B", 0.6))
	assert.Equal(t, NoCycle, Detect(g, "A").Outcome)
}

func TestDetect_LossyRoundTrip(t *testing.T) {
	g := build(t, abc, obs("A", "B", 2.0), obs("B", "A", 0.45))
	assert.Equal(t, NoCycle, Detect(g, "A").Outcome)
}

func TestDetect_UsesTheRelaxingParallelEdge(t *testing.T) {
	g := build(t, []types.Token{"A", "B"},
		obs("A", "B", 1.0),
		obs("A", "B", 2.0),
		obs("B", "A", 0.6),
	)
	res := Detect(g, "A")
	require.Equal(t, Found, res.Outcome)
	assert.Equal(t, []types.Token{"A", "B", "A"}, res.Cycle.Path)
	assert.Equal(t, []float64{2.0, 0.6}, res.Cycle.Rates)
	assert.InDelta(t, 0.2, res.Cycle.TheoreticalGain, 1e-9)
}

func TestDetect_Deterministic(t *testing.T) {
	g := build(t, abc, obs("A", "B", 2.0), obs("B", "C", 2.0), obs("C", "A", 0.3), obs("B", "A", 0.55))
	first := Detect(g, "A")
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Detect(g, "A"))
	}
}

// Rates derived from vertex potentials scaled by a lossy factor admit no
// negative cycle at all.
func TestDetect_NoNegativeCycleProperty(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for trial := 0; trial < 50; trial++ {
		vs, _, in := randomGraph(r, 6, 0.99)
		g := build(t, vs, in...)
		for _, src := range vs {
			assert.Equal(t, NoCycle, Detect(g, src).Outcome, "trial %d src %s", trial, src)
		}
	}
}

// A planted cycle through the source on top of a strongly lossy graph is the
// only negative cycle, so it must be found from the source.
func TestDetect_PlantedCycleProperty(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	for trial := 0; trial < 50; trial++ {
		vs, pot, in := randomGraph(r, 6, 0.5)
		k := math.Cbrt(1.1)
		plant := []int{0, 2, 4, 0}
		for i := 0; i+1 < len(plant); i++ {
			a, b := plant[i], plant[i+1]
			in = append(in, types.Observation{From: vs[a], To: vs[b], Rate: pot[b] / pot[a] * k})
		}
		g := build(t, vs, in...)

		res := Detect(g, vs[0])
		require.Equal(t, Found, res.Outcome, "trial %d", trial)
		c := res.Cycle
		assert.Equal(t, vs[0], c.Path[0])
		assert.Equal(t, vs[0], c.Path[len(c.Path)-1])
		assert.Less(t, c.Weight, 0.0)

		product := 1.0
		for _, rate := range c.Rates {
			product *= rate
		}
		assert.Greater(t, c.TheoreticalGain, 0.0)
		assert.InDelta(t, product-1, c.TheoreticalGain, 1e-9)
	}
}

func randomGraph(r *rand.Rand, n int, loss float64) ([]types.Token, []float64, []types.Observation) {
	vs := make([]types.Token, n)
	pot := make([]float64, n)
	for i := range vs {
		vs[i] = types.Token(fmt.Sprintf("T%d", i))
		pot[i] = 0.1 + r.Float64()*10
	}
	var in []types.Observation
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i == j || r.Float64() < 0.3 {
				continue
			}
			in = append(in, types.Observation{From: vs[i], To: vs[j], Rate: pot[j] / pot[i] * loss})
		}
	}
	return vs, pot, in
}
