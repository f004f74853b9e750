package clustering

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/graph/community"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/gilchrisn/hsne-clustering-service/pkg/hsne"
	"github.com/gilchrisn/hsne-clustering-service/pkg/louvain"
)

// Edge is one weighted entry of a transition matrix.
type Edge struct {
	From   int
	To     int
	Weight float64
}

// Graph is the input handed to a Partitioner. Vertices are 0..NumVertices-1.
type Graph struct {
	NumVertices int
	Edges       []Edge
}

// Partitioner computes a community membership with one entry per vertex.
type Partitioner interface {
	Partition(ctx context.Context, g Graph) ([]int, error)
}

// PartitionerFunc adapts a plain function to the Partitioner interface.
type PartitionerFunc func(ctx context.Context, g Graph) ([]int, error)

// Partition calls f(ctx, g).
func (f PartitionerFunc) Partition(ctx context.Context, g Graph) ([]int, error) {
	return f(ctx, g)
}

// GraphFromMatrix lists the nonzero entries of a square matrix in stored
// order. Zero weights are skipped.
func GraphFromMatrix(m *hsne.SparseMatrix) (Graph, error) {
	rows, _ := m.Dims()
	g := Graph{NumVertices: rows, Edges: make([]Edge, 0, m.NNZ())}

	var bad error
	m.DoNonZero(func(i, j int, v float64) {
		if bad != nil || v == 0 {
			return
		}
		if i < 0 || i >= rows || j < 0 || j >= rows {
			bad = fmt.Errorf("%w: entry (%d, %d) outside %d vertices", hsne.ErrMalformedMatrix, i, j, rows)
			return
		}
		g.Edges = append(g.Edges, Edge{From: i, To: j, Weight: v})
	})
	if bad != nil {
		return Graph{}, bad
	}
	return g, nil
}

// Weights returns the edge weights in edge order.
func (g Graph) Weights() []float64 {
	w := make([]float64, len(g.Edges))
	for i, e := range g.Edges {
		w[i] = e.Weight
	}
	return w
}

// ===== LOUVAIN ADAPTER =====

// LouvainPartitioner runs the package louvain implementation. Both directions
// of an asymmetric entry end up on the same undirected edge.
type LouvainPartitioner struct {
	opts louvain.Options
}

// NewLouvainPartitioner creates a louvain adapter.
func NewLouvainPartitioner(opts louvain.Options) *LouvainPartitioner {
	return &LouvainPartitioner{opts: opts}
}

// Partition implements Partitioner.
func (p *LouvainPartitioner) Partition(ctx context.Context, g Graph) ([]int, error) {
	lg := louvain.NewGraph(g.NumVertices)
	for _, e := range g.Edges {
		if err := lg.AddEdge(e.From, e.To, e.Weight); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrPartition, err)
		}
	}

	result, err := louvain.Run(ctx, lg, p.opts)
	if err != nil {
		return nil, fmt.Errorf("%w: louvain: %w", ErrPartition, err)
	}
	return result.Membership, nil
}

// ===== GONUM ADAPTER =====

// GonumPartitioner runs gonum's community.Modularize. Self-loops are dropped
// since simple graphs cannot hold them.
type GonumPartitioner struct {
	resolution float64
	seed       uint64
}

// NewGonumPartitioner creates a gonum adapter.
func NewGonumPartitioner(resolution float64, seed int64) *GonumPartitioner {
	return &GonumPartitioner{resolution: resolution, seed: uint64(seed)}
}

// Partition implements Partitioner. Communities are numbered in order of
// their lowest member vertex.
func (p *GonumPartitioner) Partition(ctx context.Context, g Graph) ([]int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	membership := make([]int, g.NumVertices)
	for i := range membership {
		membership[i] = i
	}

	summed := make(map[[2]int]float64)
	for _, e := range g.Edges {
		if e.From < 0 || e.From >= g.NumVertices || e.To < 0 || e.To >= g.NumVertices {
			return nil, fmt.Errorf("%w: edge %d-%d outside %d vertices", ErrPartition, e.From, e.To, g.NumVertices)
		}
		if e.Weight <= 0 {
			return nil, fmt.Errorf("%w: non-positive weight %f for edge %d-%d", ErrPartition, e.Weight, e.From, e.To)
		}
		if e.From == e.To {
			continue
		}
		key := [2]int{e.From, e.To}
		if key[0] > key[1] {
			key[0], key[1] = key[1], key[0]
		}
		summed[key] += e.Weight
	}
	if len(summed) == 0 {
		return membership, nil
	}

	wg := simple.NewWeightedUndirectedGraph(0, 0)
	for i := 0; i < g.NumVertices; i++ {
		wg.AddNode(simple.Node(int64(i)))
	}
	for key, w := range summed {
		wg.SetWeightedEdge(simple.WeightedEdge{
			F: simple.Node(int64(key[0])),
			T: simple.Node(int64(key[1])),
			W: w,
		})
	}

	reduced := community.Modularize(wg, p.resolution, rand.NewPCG(p.seed, p.seed))
	communities := reduced.Communities()

	lowest := make([]int64, len(communities))
	for c, nodes := range communities {
		lowest[c] = -1
		for _, n := range nodes {
			if lowest[c] < 0 || n.ID() < lowest[c] {
				lowest[c] = n.ID()
			}
		}
	}
	order := make([]int, len(communities))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return lowest[order[a]] < lowest[order[b]] })

	for id, c := range order {
		for _, n := range communities[c] {
			membership[n.ID()] = id
		}
	}
	return membership, nil
}

// ===== REGISTRY =====

// partitioners maps algorithm.partitioner values to constructors.
var partitioners = map[string]func(cfg *Config, logger zerolog.Logger) Partitioner{
	"louvain": func(cfg *Config, logger zerolog.Logger) Partitioner {
		return NewLouvainPartitioner(cfg.LouvainOptions(logger))
	},
	"gonum": func(cfg *Config, _ zerolog.Logger) Partitioner {
		return NewGonumPartitioner(cfg.Resolution(), cfg.RandomSeed())
	},
}

// PartitionerNames lists the registered partitioners.
func PartitionerNames() []string {
	names := make([]string, 0, len(partitioners))
	for name := range partitioners {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewPartitioner selects a partitioner by cfg.Partitioner().
func NewPartitioner(cfg *Config, logger zerolog.Logger) (Partitioner, error) {
	name := strings.ToLower(cfg.Partitioner())
	build, ok := partitioners[name]
	if !ok {
		return nil, fmt.Errorf("unknown partitioner %q (available: %s)", cfg.Partitioner(), strings.Join(PartitionerNames(), ", "))
	}
	return build(cfg, logger), nil
}
