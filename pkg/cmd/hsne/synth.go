package main

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/spf13/cobra"

	"github.com/gilchrisn/hsne-clustering-service/pkg/hsne"
)

type synthFlags struct {
	points      int
	clusters    int
	scales      int
	compression string
}

func newSynthCmd(a *app) *cobra.Command {
	var f synthFlags

	cmd := &cobra.Command{
		Use:   "synth <out>",
		Short: "Write a small synthetic hierarchy with well separated clusters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := hsne.ParseCompression(f.compression)
			if err != nil {
				return err
			}
			h, err := synthesize(f.points, f.clusters, f.scales, a.cfg.RandomSeed())
			if err != nil {
				return err
			}
			if err := hsne.EncodeFile(args[0], h, c, nil); err != nil {
				return err
			}
			a.logger.Info().
				Str("path", args[0]).
				Str("compression", string(c)).
				Int("points", f.points).
				Int("scales", h.NumScales()).
				Msg("Wrote synthetic hierarchy")
			return nil
		},
	}

	cmd.Flags().IntVar(&f.points, "points", 90, "number of data points")
	cmd.Flags().IntVar(&f.clusters, "clusters", 3, "number of ground-truth clusters")
	cmd.Flags().IntVar(&f.scales, "scales", 3, "number of scales including the data scale")
	cmd.Flags().StringVar(&f.compression, "compression", "none", "artifact framing (none, zstd, lz4)")
	return cmd
}

// synthesize builds a hierarchy whose points fall into contiguous clusters.
// Every scale keeps every second point of each cluster as a landmark, and
// the area of influence never crosses a cluster boundary.
func synthesize(points, clusters, scales int, seed int64) (*hsne.Hierarchy, error) {
	if points < 1 || clusters < 1 || clusters > points || scales < 1 {
		return nil, fmt.Errorf("invalid synthetic shape: %d points, %d clusters, %d scales", points, clusters, scales)
	}
	r := rand.New(rand.NewPCG(uint64(seed), uint64(seed)))

	cluster := make([]int, points)
	for i := range cluster {
		cluster[i] = i * clusters / points
	}

	members := groupBy(cluster, clusters)
	top := hsne.NewSparseMatrix(points, points)
	for i := 0; i < points; i++ {
		same := members[cluster[i]]
		k := min(5, len(same)-1)
		if k == 0 {
			top.Append(i, i, 1)
			continue
		}
		picked := 0
		for _, p := range r.Perm(len(same)) {
			if same[p] == i {
				continue
			}
			top.Append(i, same[p], 1/float64(k))
			if picked++; picked == k {
				break
			}
		}
	}

	toOriginal := make([]int, points)
	for i := range toOriginal {
		toOriginal[i] = i
	}
	subs := make([]*hsne.SubScale, 0, scales-1)
	for s := 1; s < scales; s++ {
		sub, next, nextOriginal := landmarkScale(cluster, clusters, toOriginal)
		scale, err := hsne.NewSubScale(s, sub)
		if err != nil {
			return nil, err
		}
		subs = append(subs, scale)
		cluster, toOriginal = next, nextOriginal
	}
	return hsne.NewHierarchy(hsne.NewDataScale(top), subs...)
}

// landmarkScale derives the next scale from the previous scale's cluster labels.
func landmarkScale(prevCluster []int, clusters int, prevToOriginal []int) (hsne.SubScaleData, []int, []int) {
	prevSize := len(prevCluster)
	groups := groupBy(prevCluster, clusters)

	previousToCurrent := make([]int, prevSize)
	for i := range previousToCurrent {
		previousToCurrent[i] = -1
	}
	var landmarks []int
	for i := 0; i < prevSize; i++ {
		g := groups[prevCluster[i]]
		if pos := indexOf(g, i); pos%2 == 0 {
			previousToCurrent[i] = len(landmarks)
			landmarks = append(landmarks, i)
		}
	}
	size := len(landmarks)

	cluster := make([]int, size)
	toOriginal := make([]int, size)
	for a, p := range landmarks {
		cluster[a] = prevCluster[p]
		toOriginal[a] = prevToOriginal[p]
	}
	byCluster := groupBy(cluster, clusters)
	position := make([]int, size)
	for _, lms := range byCluster {
		for k, a := range lms {
			position[a] = k
		}
	}

	// Influence of landmark a on point i decays with their index distance.
	aoi := hsne.NewSparseMatrix(prevSize, prevSize)
	weights := make([]float64, size)
	overlap := make([][][]float64, clusters)
	for c, lms := range byCluster {
		overlap[c] = make([][]float64, len(lms))
		for k := range overlap[c] {
			overlap[c][k] = make([]float64, len(lms))
		}
	}
	for i := 0; i < prevSize; i++ {
		c := prevCluster[i]
		lms := byCluster[c]
		row := make([]float64, len(lms))
		total := 0.0
		for k, a := range lms {
			row[k] = 1 / (1 + math.Abs(float64(i-landmarks[a])))
			total += row[k]
		}
		for k, a := range lms {
			row[k] /= total
			aoi.Append(i, a, row[k])
			weights[a] += row[k]
		}
		for x := range row {
			for y := range row {
				overlap[c][x][y] += row[x] * row[y]
			}
		}
	}

	tmatrix := hsne.NewSparseMatrix(size, size)
	for a := 0; a < size; a++ {
		c := cluster[a]
		row := overlap[c][position[a]]
		total := 0.0
		for _, v := range row {
			total += v
		}
		for k, b := range byCluster[c] {
			if row[k] > 0 {
				tmatrix.Append(a, b, row[k]/total)
			}
		}
	}

	lmWeights := make([]float32, size)
	for a, w := range weights {
		lmWeights[a] = float32(w)
	}

	return hsne.SubScaleData{
		TransitionMatrix:   tmatrix,
		LandmarkToOriginal: toOriginal,
		LandmarkToPrevious: landmarks,
		LandmarkWeights:    lmWeights,
		PreviousToCurrent:  previousToCurrent,
		AreaOfInfluence:    aoi,
	}, cluster, toOriginal
}

func groupBy(labels []int, n int) [][]int {
	groups := make([][]int, n)
	for i, l := range labels {
		groups[l] = append(groups[l], i)
	}
	return groups
}

func indexOf(s []int, v int) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}
