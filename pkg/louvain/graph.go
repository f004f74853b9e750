package louvain

import (
	"fmt"
	"math"
)

// Graph represents a weighted undirected graph using adjacency arrays.
type Graph struct {
	NumNodes    int
	Adjacency   [][]int     // adjacency[i] = neighbors of node i, self-loops excluded
	Weights     [][]float64 // weights[i][k] = weight of the edge to adjacency[i][k]
	SelfLoops   []float64   // selfLoops[i] = summed weight of loops on node i
	Degrees     []float64   // weighted degree, a loop counts twice
	TotalWeight float64     // sum of all edge weights
}

// NewGraph creates a graph with n isolated nodes.
func NewGraph(numNodes int) *Graph {
	return &Graph{
		NumNodes:  numNodes,
		Adjacency: make([][]int, numNodes),
		Weights:   make([][]float64, numNodes),
		SelfLoops: make([]float64, numNodes),
		Degrees:   make([]float64, numNodes),
	}
}

// AddEdge adds a weighted edge between two nodes. Parallel edges are kept as
// separate adjacency entries and behave as their summed weight.
func (g *Graph) AddEdge(u, v int, weight float64) error {
	if u < 0 || u >= g.NumNodes || v < 0 || v >= g.NumNodes {
		return fmt.Errorf("node index out of range: u=%d, v=%d, numNodes=%d", u, v, g.NumNodes)
	}
	if weight <= 0 || math.IsNaN(weight) || math.IsInf(weight, 0) {
		return fmt.Errorf("edge weight must be positive and finite: %f", weight)
	}

	if u == v {
		g.SelfLoops[u] += weight
		g.Degrees[u] += 2 * weight
	} else {
		g.Adjacency[u] = append(g.Adjacency[u], v)
		g.Weights[u] = append(g.Weights[u], weight)
		g.Adjacency[v] = append(g.Adjacency[v], u)
		g.Weights[v] = append(g.Weights[v], weight)
		g.Degrees[u] += weight
		g.Degrees[v] += weight
	}
	g.TotalWeight += weight
	return nil
}

// GetEdgeWeight returns the summed weight between u and v.
func (g *Graph) GetEdgeWeight(u, v int) float64 {
	if u < 0 || u >= g.NumNodes || v < 0 || v >= g.NumNodes {
		return 0
	}
	if u == v {
		return g.SelfLoops[u]
	}
	w := 0.0
	for k, n := range g.Adjacency[u] {
		if n == v {
			w += g.Weights[u][k]
		}
	}
	return w
}

// GetNeighbors returns neighbors and their edge weights for a node.
func (g *Graph) GetNeighbors(node int) ([]int, []float64) {
	if node < 0 || node >= g.NumNodes {
		return nil, nil
	}
	return g.Adjacency[node], g.Weights[node]
}

// Validate checks graph consistency.
func (g *Graph) Validate() error {
	if g.NumNodes < 0 {
		return fmt.Errorf("graph has negative number of nodes: %d", g.NumNodes)
	}
	if len(g.Adjacency) != g.NumNodes || len(g.Weights) != g.NumNodes ||
		len(g.SelfLoops) != g.NumNodes || len(g.Degrees) != g.NumNodes {
		return fmt.Errorf("graph arrays do not match %d nodes", g.NumNodes)
	}

	for i := 0; i < g.NumNodes; i++ {
		if len(g.Adjacency[i]) != len(g.Weights[i]) {
			return fmt.Errorf("adjacency and weights arrays inconsistent for node %d", i)
		}
		for k, neighbor := range g.Adjacency[i] {
			if neighbor < 0 || neighbor >= g.NumNodes || neighbor == i {
				return fmt.Errorf("invalid neighbor %d for node %d", neighbor, i)
			}
			if g.Weights[i][k] <= 0 {
				return fmt.Errorf("non-positive weight %f for edge %d-%d", g.Weights[i][k], i, neighbor)
			}
		}
	}
	return nil
}
