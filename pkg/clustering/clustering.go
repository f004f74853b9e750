// Package clustering runs a graph partitioner on the scales of an HSNE
// hierarchy and carries the resulting labels down to the data points.
package clustering

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gilchrisn/hsne-clustering-service/pkg/hsne"
)

// Method selects how landmark labels reach the data points.
type Method string

const (
	// MethodCluster redistributes labels through the area of influence.
	MethodCluster Method = "cluster"
	// MethodLabel copies the label of each point's best representative.
	MethodLabel Method = "label"
)

// ParseMethod parses a method name, ignoring case and surrounding space.
func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case MethodCluster, MethodLabel:
		return m, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMethod, s)
	}
}

// Clusterer clusters the scales of one hierarchy.
type Clusterer struct {
	hierarchy   *hsne.Hierarchy
	partitioner Partitioner
	logger      zerolog.Logger
}

// NewClusterer creates a clusterer over h.
func NewClusterer(h *hsne.Hierarchy, p Partitioner, logger zerolog.Logger) *Clusterer {
	return &Clusterer{hierarchy: h, partitioner: p, logger: logger}
}

// Hierarchy returns the hierarchy being clustered.
func (c *Clusterer) Hierarchy() *hsne.Hierarchy { return c.hierarchy }

// ClusterScale partitions the transition matrix of a scale and returns one
// label per data point. For scale 0 the raw membership is returned and the
// method is ignored.
func (c *Clusterer) ClusterScale(ctx context.Context, scale int, method Method) ([]int, error) {
	s, err := c.hierarchy.ScaleAt(scale)
	if err != nil {
		return nil, err
	}
	if scale == 0 {
		c.logger.Warn().
			Int("points", s.Size()).
			Msg("Clustering the data scale directly, this can be slow on large data")
		return c.partition(ctx, s)
	}
	if method != MethodCluster && method != MethodLabel {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}

	membership, err := c.partition(ctx, s)
	if err != nil {
		return nil, err
	}
	return c.propagate(scale, membership, method)
}

// propagate maps a landmark membership of scale to the data points.
func (c *Clusterer) propagate(scale int, membership []int, method Method) ([]int, error) {
	if method == MethodCluster {
		return c.hierarchy.MapByCluster(scale, membership)
	}
	mapping, err := c.hierarchy.DataScaleMappings(scale)
	if err != nil {
		return nil, err
	}
	labels := make([]int, len(mapping))
	for i, lm := range mapping {
		labels[i] = membership[lm]
	}
	return labels, nil
}

func (c *Clusterer) partition(ctx context.Context, s hsne.Scale) ([]int, error) {
	start := time.Now()
	g, err := GraphFromMatrix(s.TransitionMatrix())
	if err != nil {
		return nil, fmt.Errorf("scale %d: %w", s.Number(), err)
	}
	if err := CheckFinite(g.Weights()); err != nil {
		return nil, fmt.Errorf("scale %d: %w", s.Number(), err)
	}

	membership, err := c.partitioner.Partition(ctx, g)
	if err != nil {
		return nil, fmt.Errorf("scale %d: %w", s.Number(), err)
	}
	if len(membership) != g.NumVertices {
		return nil, fmt.Errorf("%w: scale %d: membership has %d entries for %d vertices",
			ErrPartition, s.Number(), len(membership), g.NumVertices)
	}

	c.logger.Info().
		Int("scale", s.Number()).
		Int("vertices", g.NumVertices).
		Int("edges", len(g.Edges)).
		Dur("elapsed", time.Since(start)).
		Msg("Partitioned scale")
	return membership, nil
}
