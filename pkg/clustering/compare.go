package clustering

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/gilchrisn/hsne-clustering-service/pkg/hsne"
)

// SizeStats summarizes the cluster sizes of one labeling.
type SizeStats struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
	Min  int     `json:"min"`
	Max  int     `json:"max"`
}

// Agreement measures how closely two labelings of the same points agree.
// NMI is normalized by the mean of the two entropies and lies in [0,1].
// ARI is the Hubert-Arabie adjusted Rand index, 1 for identical partitions
// and near 0 for independent ones.
type Agreement struct {
	NMI       float64   `json:"nmi"`
	ARI       float64   `json:"ari"`
	ClustersA int       `json:"clusters_a"`
	ClustersB int       `json:"clusters_b"`
	SizesA    SizeStats `json:"sizes_a"`
	SizesB    SizeStats `json:"sizes_b"`
}

// Compare computes the agreement between two labelings. Label values are
// arbitrary; only the induced partitions matter.
func Compare(a, b []int) (Agreement, error) {
	if len(a) != len(b) {
		return Agreement{}, fmt.Errorf("%w: %d and %d labels", hsne.ErrLabelCountMismatch, len(a), len(b))
	}
	n := len(a)
	if n == 0 {
		return Agreement{}, nil
	}

	countsA := counts(a)
	countsB := counts(b)
	joint := make(map[[2]int]int)
	for i := range a {
		joint[[2]int{a[i], b[i]}]++
	}

	return Agreement{
		NMI:       nmi(joint, countsA, countsB, n),
		ARI:       ari(joint, countsA, countsB, n),
		ClustersA: len(countsA),
		ClustersB: len(countsB),
		SizesA:    sizeStats(countsA),
		SizesB:    sizeStats(countsB),
	}, nil
}

func counts(labels []int) map[int]int {
	c := make(map[int]int)
	for _, l := range labels {
		c[l]++
	}
	return c
}

func probabilities(c map[int]int, n int) []float64 {
	p := make([]float64, 0, len(c))
	for _, v := range c {
		p = append(p, float64(v)/float64(n))
	}
	return p
}

func nmi(joint map[[2]int]int, countsA, countsB map[int]int, n int) float64 {
	mi := 0.0
	for k, nij := range joint {
		ni, nj := countsA[k[0]], countsB[k[1]]
		mi += float64(nij) / float64(n) * math.Log(float64(nij)*float64(n)/(float64(ni)*float64(nj)))
	}

	avg := (stat.Entropy(probabilities(countsA, n)) + stat.Entropy(probabilities(countsB, n))) / 2
	if avg == 0 {
		// Both labelings put every point in one cluster.
		return 1
	}
	return math.Max(0, math.Min(1, mi/avg))
}

func pairs(k int) float64 { return float64(k) * float64(k-1) / 2 }

func ari(joint map[[2]int]int, countsA, countsB map[int]int, n int) float64 {
	var index, sumA, sumB float64
	for _, nij := range joint {
		index += pairs(nij)
	}
	for _, v := range countsA {
		sumA += pairs(v)
	}
	for _, v := range countsB {
		sumB += pairs(v)
	}

	total := pairs(n)
	if total == 0 {
		return 1
	}
	expected := sumA * sumB / total
	maxIndex := (sumA + sumB) / 2
	if maxIndex == expected {
		return 1
	}
	return (index - expected) / (maxIndex - expected)
}

func sizeStats(c map[int]int) SizeStats {
	sizes := make([]float64, 0, len(c))
	s := SizeStats{Min: math.MaxInt}
	for _, v := range c {
		sizes = append(sizes, float64(v))
		s.Min = min(s.Min, v)
		s.Max = max(s.Max, v)
	}
	s.Mean, s.Std = stat.PopMeanStdDev(sizes, nil)
	return s
}

// CompareMethods partitions one sub-scale once and reports how far the
// cluster and label propagation methods agree on the data points.
func (c *Clusterer) CompareMethods(ctx context.Context, scale int) (Agreement, error) {
	s, err := c.hierarchy.SubScaleAt(scale)
	if err != nil {
		return Agreement{}, err
	}
	membership, err := c.partition(ctx, s)
	if err != nil {
		return Agreement{}, err
	}

	byCluster, err := c.propagate(scale, membership, MethodCluster)
	if err != nil {
		return Agreement{}, err
	}
	byLabel, err := c.propagate(scale, membership, MethodLabel)
	if err != nil {
		return Agreement{}, err
	}

	agreement, err := Compare(byCluster, byLabel)
	if err != nil {
		return Agreement{}, err
	}
	c.logger.Info().
		Int("scale", scale).
		Float64("nmi", agreement.NMI).
		Float64("ari", agreement.ARI).
		Msg("Compared propagation methods")
	return agreement, nil
}
