package graph

import (
	"errors"
	"fmt"
	"math"

	"github.com/you/cyclearb/internal/types"
)

// ErrInvalidObservation marks an observation that cannot become an edge.
var ErrInvalidObservation = errors.New("invalid observation")

// Edge is a directed exchange with weight -ln(rate).
type Edge struct {
	Src    types.Token
	Dest   types.Token
	Weight float64
	Rate   float64
}

// Rejection records an observation left out of the graph and why.
type Rejection struct {
	Observation types.Observation
	Err         error
}

// Graph is an immutable directed multigraph over tokens. Parallel edges
// between the same pair are kept as independent edges.
type Graph struct {
	vertices []types.Token
	index    map[types.Token]int
	edges    []Edge
}

// Build creates a graph from the vertex set and observations. Observations
// with a non-positive or non-finite rate, or with an endpoint outside the
// vertex set, are skipped and returned as rejections.
func Build(vertices []types.Token, observations []types.Observation) (*Graph, []Rejection) {
	g := &Graph{
		vertices: make([]types.Token, 0, len(vertices)),
		index:    make(map[types.Token]int, len(vertices)),
		edges:    make([]Edge, 0, len(observations)),
	}
	for _, v := range vertices {
		if _, ok := g.index[v]; ok {
			continue
		}
		g.index[v] = len(g.vertices)
		g.vertices = append(g.vertices, v)
	}

	var rejected []Rejection
	for _, o := range observations {
		if err := g.validate(o); err != nil {
			rejected = append(rejected, Rejection{Observation: o, Err: err})
			continue
		}
		g.edges = append(g.edges, Edge{
			Src:    o.From,
			Dest:   o.To,
			Weight: -math.Log(o.Rate),
			Rate:   o.Rate,
		})
	}
	return g, rejected
}

func (g *Graph) validate(o types.Observation) error {
	switch {
	case math.IsNaN(o.Rate) || math.IsInf(o.Rate, 0):
		return fmt.Errorf("%w: %s rate %v is not finite", ErrInvalidObservation, o.Pair(), o.Rate)
	case o.Rate <= 0:
		return fmt.Errorf("%w: %s rate %v is not positive", ErrInvalidObservation, o.Pair(), o.Rate)
	}
	if _, ok := g.index[o.From]; !ok {
		return fmt.Errorf("%w: unknown vertex %q", ErrInvalidObservation, o.From)
	}
	if _, ok := g.index[o.To]; !ok {
		return fmt.Errorf("%w: unknown vertex %q", ErrInvalidObservation, o.To)
	}
	return nil
}

func (g *Graph) Vertices() []types.Token { return g.vertices }
func (g *Graph) Edges() []Edge           { return g.edges }
func (g *Graph) Len() int                { return len(g.vertices) }

func (g *Graph) Has(t types.Token) bool {
	_, ok := g.index[t]
	return ok
}

// Index returns the position of t in Vertices, or -1.
func (g *Graph) Index(t types.Token) int {
	if i, ok := g.index[t]; ok {
		return i
	}
	return -1
}
