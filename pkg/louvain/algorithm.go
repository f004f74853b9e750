package louvain

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// Options controls a Louvain run.
type Options struct {
	MaxLevels         int
	MaxIterations     int
	MinModularityGain float64
	Resolution        float64
	RandomSeed        int64
	Logger            zerolog.Logger
}

// DefaultOptions returns options suitable for small and medium graphs.
func DefaultOptions() Options {
	return Options{
		MaxLevels:         10,
		MaxIterations:     100,
		MinModularityGain: 1e-7,
		Resolution:        1.0,
		RandomSeed:        42,
		Logger:            zerolog.Nop(),
	}
}

// Result represents the algorithm output.
type Result struct {
	Membership []int       // community of each original node, numbered by first appearance
	Levels     []LevelInfo // one entry per local-moving phase
	Modularity float64
	NumLevels  int
}

// LevelInfo contains information about each hierarchical level.
type LevelInfo struct {
	Level          int
	NumNodes       int
	NumCommunities int
	NumMoves       int
	Modularity     float64
	RuntimeMS      int64
}

// community tracks the assignment of one level's nodes.
type community struct {
	nodeToComm []int
	tot        []float64 // summed degree of members
	in         []float64 // summed internal adjacency, internal edges counted from both ends
}

func newCommunity(g *Graph) *community {
	c := &community{
		nodeToComm: make([]int, g.NumNodes),
		tot:        make([]float64, g.NumNodes),
		in:         make([]float64, g.NumNodes),
	}
	for i := 0; i < g.NumNodes; i++ {
		c.nodeToComm[i] = i
		c.tot[i] = g.Degrees[i]
		c.in[i] = 2 * g.SelfLoops[i]
	}
	return c
}

func (c *community) remove(g *Graph, node, comm int, weightToComm float64) {
	c.tot[comm] -= g.Degrees[node]
	c.in[comm] -= 2*weightToComm + 2*g.SelfLoops[node]
	c.nodeToComm[node] = -1
}

func (c *community) insert(g *Graph, node, comm int, weightToComm float64) {
	c.tot[comm] += g.Degrees[node]
	c.in[comm] += 2*weightToComm + 2*g.SelfLoops[node]
	c.nodeToComm[node] = comm
}

func (c *community) modularity(g *Graph, resolution float64) float64 {
	if g.TotalWeight == 0 {
		return 0
	}
	m2 := 2 * g.TotalWeight
	q := 0.0
	for i := range c.tot {
		if c.tot[i] > 0 {
			q += c.in[i]/m2 - resolution*(c.tot[i]/m2)*(c.tot[i]/m2)
		}
	}
	return q
}

// Modularity computes Newman's modularity of a membership over g.
func Modularity(g *Graph, membership []int, resolution float64) (float64, error) {
	if len(membership) != g.NumNodes {
		return 0, fmt.Errorf("membership has %d entries, graph has %d nodes", len(membership), g.NumNodes)
	}
	if g.TotalWeight == 0 {
		return 0, nil
	}
	tot := make(map[int]float64)
	in := make(map[int]float64)
	for i := 0; i < g.NumNodes; i++ {
		ci := membership[i]
		tot[ci] += g.Degrees[i]
		in[ci] += 2 * g.SelfLoops[i]
		neighbors, weights := g.GetNeighbors(i)
		for k, j := range neighbors {
			if membership[j] == ci {
				in[ci] += weights[k]
			}
		}
	}
	m2 := 2 * g.TotalWeight
	q := 0.0
	for c, t := range tot {
		q += in[c]/m2 - resolution*(t/m2)*(t/m2)
	}
	return q, nil
}

// neighborWeights accumulates the weight from one node to each adjacent
// community, reusing its buffers between nodes.
type neighborWeights struct {
	weight []float64
	comms  []int
}

func newNeighborWeights(n int) *neighborWeights {
	w := &neighborWeights{weight: make([]float64, n)}
	for i := range w.weight {
		w.weight[i] = -1
	}
	return w
}

func (w *neighborWeights) collect(g *Graph, c *community, node, own int) {
	for _, comm := range w.comms {
		w.weight[comm] = -1
	}
	w.comms = w.comms[:0]

	w.weight[own] = 0
	w.comms = append(w.comms, own)
	neighbors, weights := g.GetNeighbors(node)
	for k, j := range neighbors {
		comm := c.nodeToComm[j]
		if w.weight[comm] < 0 {
			w.weight[comm] = 0
			w.comms = append(w.comms, comm)
		}
		w.weight[comm] += weights[k]
	}
	sort.Ints(w.comms)
}

// oneLevel performs local moving until no node changes community, the
// modularity gain of a pass drops below opts.MinModularityGain, or
// opts.MaxIterations passes have run. It returns the number of moves.
func oneLevel(ctx context.Context, g *Graph, c *community, opts Options, rng *rand.Rand) (int, error) {
	if g.TotalWeight == 0 {
		return 0, nil
	}
	m2 := 2 * g.TotalWeight
	nodes := make([]int, g.NumNodes)
	for i := range nodes {
		nodes[i] = i
	}
	nw := newNeighborWeights(g.NumNodes)

	totalMoves := 0
	current := c.modularity(g, opts.Resolution)
	for iteration := 0; iteration < opts.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			return totalMoves, err
		}
		rng.Shuffle(len(nodes), func(i, j int) { nodes[i], nodes[j] = nodes[j], nodes[i] })

		moves := 0
		for _, node := range nodes {
			own := c.nodeToComm[node]
			nw.collect(g, c, node, own)
			c.remove(g, node, own, nw.weight[own])

			// Ties keep the current community, then prefer the lowest id.
			k := g.Degrees[node]
			best := own
			bestGain := nw.weight[own] - opts.Resolution*c.tot[own]*k/m2
			for _, comm := range nw.comms {
				gain := nw.weight[comm] - opts.Resolution*c.tot[comm]*k/m2
				if gain > bestGain {
					best, bestGain = comm, gain
				}
			}

			c.insert(g, node, best, nw.weight[best])
			if best != own {
				moves++
			}
		}
		totalMoves += moves

		next := c.modularity(g, opts.Resolution)
		opts.Logger.Debug().
			Int("iteration", iteration+1).
			Int("moves", moves).
			Float64("modularity", next).
			Msg("Local optimization pass")
		if moves == 0 || next-current < opts.MinModularityGain {
			break
		}
		current = next
	}
	return totalMoves, nil
}

// renumber maps community ids to 0..k-1 by first appearance.
func renumber(assign []int) ([]int, int) {
	ids := make(map[int]int)
	out := make([]int, len(assign))
	for i, c := range assign {
		id, ok := ids[c]
		if !ok {
			id = len(ids)
			ids[c] = id
		}
		out[i] = id
	}
	return out, len(ids)
}

// aggregateGraph builds the super-graph whose node c is community c of the
// dense assignment. Internal edges and loops become a loop on c.
func aggregateGraph(g *Graph, assign []int, numComms int) (*Graph, error) {
	super := NewGraph(numComms)
	loops := make([]float64, numComms)
	between := make(map[[2]int]float64)

	for i := 0; i < g.NumNodes; i++ {
		ci := assign[i]
		loops[ci] += g.SelfLoops[i]
		neighbors, weights := g.GetNeighbors(i)
		for k, j := range neighbors {
			cj := assign[j]
			switch {
			case ci == cj:
				// Seen from both ends.
				loops[ci] += weights[k] / 2
			case ci < cj:
				between[[2]int{ci, cj}] += weights[k]
			}
		}
	}

	for c, w := range loops {
		if w > 0 {
			if err := super.AddEdge(c, c, w); err != nil {
				return nil, err
			}
		}
	}
	keys := make([][2]int, 0, len(between))
	for key := range between {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(a, b int) bool {
		if keys[a][0] != keys[b][0] {
			return keys[a][0] < keys[b][0]
		}
		return keys[a][1] < keys[b][1]
	})
	for _, key := range keys {
		if err := super.AddEdge(key[0], key[1], between[key]); err != nil {
			return nil, err
		}
	}
	return super, nil
}

// Run executes the complete Louvain algorithm.
func Run(ctx context.Context, graph *Graph, opts Options) (*Result, error) {
	startTime := time.Now()
	logger := opts.Logger

	if err := graph.Validate(); err != nil {
		return nil, fmt.Errorf("invalid graph: %w", err)
	}
	if opts.MaxLevels <= 0 || opts.MaxIterations <= 0 {
		return nil, fmt.Errorf("max levels and max iterations must be positive: %d, %d", opts.MaxLevels, opts.MaxIterations)
	}

	logger.Info().
		Int("nodes", graph.NumNodes).
		Float64("total_weight", graph.TotalWeight).
		Msg("Starting Louvain algorithm")

	result := &Result{Membership: make([]int, graph.NumNodes)}
	for i := range result.Membership {
		result.Membership[i] = i
	}
	if graph.NumNodes == 0 {
		return result, nil
	}

	rng := rand.New(rand.NewSource(opts.RandomSeed))
	current := graph
	for level := 0; level < opts.MaxLevels; level++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		levelStart := time.Now()

		comm := newCommunity(current)
		moves, err := oneLevel(ctx, current, comm, opts, rng)
		if err != nil {
			return nil, fmt.Errorf("local optimization failed at level %d: %w", level, err)
		}

		assign, numComms := renumber(comm.nodeToComm)
		for i, super := range result.Membership {
			result.Membership[i] = assign[super]
		}

		info := LevelInfo{
			Level:          level,
			NumNodes:       current.NumNodes,
			NumCommunities: numComms,
			NumMoves:       moves,
			Modularity:     comm.modularity(current, opts.Resolution),
			RuntimeMS:      time.Since(levelStart).Milliseconds(),
		}
		result.Levels = append(result.Levels, info)
		logger.Debug().
			Int("level", level).
			Int("nodes", info.NumNodes).
			Int("communities", numComms).
			Int("moves", moves).
			Float64("modularity", info.Modularity).
			Msg("Level completed")

		if moves == 0 || numComms == current.NumNodes {
			break
		}
		current, err = aggregateGraph(current, assign, numComms)
		if err != nil {
			return nil, fmt.Errorf("aggregation failed at level %d: %w", level, err)
		}
	}

	result.Membership, _ = renumber(result.Membership)
	result.NumLevels = len(result.Levels)
	q, err := Modularity(graph, result.Membership, opts.Resolution)
	if err != nil {
		return nil, err
	}
	result.Modularity = q

	logger.Info().
		Int("levels", result.NumLevels).
		Float64("final_modularity", result.Modularity).
		Int64("runtime_ms", time.Since(startTime).Milliseconds()).
		Msg("Louvain algorithm completed")
	return result, nil
}
