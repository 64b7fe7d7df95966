package detector

import (
	"math"
	"slices"

	"github.com/you/cyclearb/internal/graph"
	"github.com/you/cyclearb/internal/types"
)

type Outcome int

const (
	NoCycle Outcome = iota
	Found
	CycleExcludesSource
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case CycleExcludesSource:
		return "cycle_excludes_source"
	default:
		return "no_cycle"
	}
}

// Cycle is a profitable loop in travel order. Path starts and ends at Source;
// Rates[i] is the quoted rate of the hop Path[i] -> Path[i+1].
type Cycle struct {
	Source          types.Token
	Path            []types.Token
	Rates           []float64
	Weight          float64
	TheoreticalGain float64
}

// Hops returns the directed pairs traversed by the cycle.
func (c *Cycle) Hops() []types.Pair {
	out := make([]types.Pair, 0, len(c.Path)-1)
	for i := 0; i+1 < len(c.Path); i++ {
		out = append(out, types.Pair{From: c.Path[i], To: c.Path[i+1]})
	}
	return out
}

type Result struct {
	Outcome Outcome
	Cycle   *Cycle
}

// Detect runs single-source Bellman-Ford from source and, if a negative
// cycle is reachable, extracts it rotated to start and end at source.
// Self-loop edges are ignored: they cannot form a cycle of two or more
// distinct tokens.
func Detect(g *graph.Graph, source types.Token) Result {
	n := g.Len()
	edges := g.Edges()
	src := g.Index(source)
	if n < 2 || len(edges) == 0 || src < 0 {
		return Result{Outcome: NoCycle}
	}

	from := make([]int, len(edges))
	to := make([]int, len(edges))
	for i, e := range edges {
		from[i], to[i] = g.Index(e.Src), g.Index(e.Dest)
	}

	dist := make([]float64, n)
	parent := make([]int, n) // index into edges, -1 when undefined
	for i := range dist {
		dist[i] = math.Inf(1)
		parent[i] = -1
	}
	dist[src] = 0

	relax := func(i int) bool {
		u, v := from[i], to[i]
		if u == v || math.IsInf(dist[u], 1) {
			return false
		}
		if d := dist[u] + edges[i].Weight; d < dist[v] {
			dist[v] = d
			parent[v] = i
			return true
		}
		return false
	}

	for pass := 1; pass < n; pass++ {
		changed := false
		for i := range edges {
			if relax(i) {
				changed = true
			}
		}
		if !changed {
			return Result{Outcome: NoCycle}
		}
	}

	marked := -1
	for i := range edges {
		if relax(i) {
			marked = to[i]
			break
		}
	}
	if marked < 0 {
		return Result{Outcome: NoCycle}
	}

	loop, ok := extract(marked, n, parent, from)
	if !ok {
		return Result{Outcome: NoCycle}
	}

	// loop is in dest-to-src order; reverse into travel order.
	slices.Reverse(loop)
	at := slices.Index(loop, src)
	if at < 0 {
		return Result{Outcome: CycleExcludesSource}
	}
	rotated := make([]int, 0, len(loop)+1)
	rotated = append(rotated, loop[at:]...)
	rotated = append(rotated, loop[:at]...)
	loop = append(rotated, src)

	c := &Cycle{
		Source: source,
		Path:   make([]types.Token, len(loop)),
		Rates:  make([]float64, 0, len(loop)-1),
	}
	verts := g.Vertices()
	for i, v := range loop {
		c.Path[i] = verts[v]
	}
	for i := 1; i < len(loop); i++ {
		e := edges[parent[loop[i]]]
		c.Rates = append(c.Rates, e.Rate)
		c.Weight += e.Weight
	}
	if !(c.Weight < 0) {
		return Result{Outcome: NoCycle}
	}
	c.TheoreticalGain = math.Exp(-c.Weight) - 1
	return Result{Outcome: Found, Cycle: c}
}

// extract walks parent links n times from v to land inside the cycle, then
// collects vertices until the first repeat.
func extract(v, n int, parent, from []int) ([]int, bool) {
	c := v
	for k := 0; k < n; k++ {
		e := parent[c]
		if e < 0 {
			return nil, false
		}
		c = from[e]
	}

	seen := make([]bool, n)
	var loop []int
	cur := c
	for !seen[cur] {
		seen[cur] = true
		loop = append(loop, cur)
		e := parent[cur]
		if e < 0 {
			return nil, false
		}
		cur = from[e]
	}
	if cur != c || len(loop) < 2 {
		return nil, false
	}
	return loop, true
}
