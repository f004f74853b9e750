package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gilchrisn/hsne-clustering-service/pkg/clustering"
	"github.com/gilchrisn/hsne-clustering-service/pkg/hsne"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func synthArtifact(t *testing.T, extra ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "synthetic.hsne")
	_, err := execute(t, append([]string{"synth", path}, extra...)...)
	require.NoError(t, err)
	return path
}

func readCSV(t *testing.T, r *strings.Reader) [][]string {
	t.Helper()
	records, err := csv.NewReader(r).ReadAll()
	require.NoError(t, err)
	return records
}

func readCSVFile(t *testing.T, path string) [][]string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return readCSV(t, strings.NewReader(string(data)))
}

// groundTruth is the cluster synth assigns to point i of 90 in 3 clusters.
func groundTruth(i int) int { return i * 3 / 90 }

func TestSynthAndInspect(t *testing.T) {
	for _, compression := range []string{"none", "zstd", "lz4"} {
		t.Run(compression, func(t *testing.T) {
			path := synthArtifact(t, "--compression", compression)

			out, err := execute(t, "inspect", path)
			require.NoError(t, err)
			lines := strings.Split(strings.TrimSpace(out), "\n")
			require.Len(t, lines, 4)
			assert.Equal(t, "scale", strings.Fields(lines[0])[0])

			for i, size := range []string{"90", "45", "24"} {
				fields := strings.Fields(lines[i+1])
				assert.Equal(t, size, fields[1], "scale %d", i)
			}
		})
	}
}

func TestSynthRoundTrip(t *testing.T) {
	h, err := synthesize(12, 2, 3, 1)
	require.NoError(t, err)
	require.Equal(t, 3, h.NumScales())

	sub, err := h.SubScaleAt(1)
	require.NoError(t, err)
	// Landmarks represent themselves.
	for a, p := range sub.LandmarkToPrevious() {
		assert.Equal(t, a, sub.BestRepresentatives()[p])
		assert.Equal(t, a, sub.PreviousToCurrent()[p])
	}

	path := filepath.Join(t.TempDir(), "round.hsne")
	require.NoError(t, hsne.EncodeFile(path, h, hsne.CompressionZstd, nil))
	got, err := hsne.ParseFile(path, hsne.WithStrictSizes(true))
	require.NoError(t, err)
	require.Equal(t, h.NumScales(), got.NumScales())
	for s := 1; s < h.NumScales(); s++ {
		want, _ := h.SubScaleAt(s)
		have, _ := got.SubScaleAt(s)
		assert.Equal(t, want.Size(), have.Size())
		assert.Equal(t, want.BestRepresentatives(), have.BestRepresentatives())
		assert.Equal(t, want.LandmarkToOriginal(), have.LandmarkToOriginal())
	}

	_, err = synthesize(2, 3, 1, 1)
	assert.Error(t, err)
}

func TestClusterAllScales(t *testing.T) {
	path := synthArtifact(t)

	for _, partitioner := range []string{"louvain", "gonum"} {
		for _, method := range []string{"cluster", "label"} {
			t.Run(partitioner+"/"+method, func(t *testing.T) {
				out := filepath.Join(t.TempDir(), "labels.csv")
				_, err := execute(t, "--partitioner", partitioner, "cluster", path,
					"--method", method, "--out", out, "--parallel")
				require.NoError(t, err)

				records := readCSVFile(t, out)
				require.Len(t, records, 91)
				assert.Equal(t, []string{"point", "scale_1", "scale_2"}, records[0])

				// Labels never cross the disconnected ground-truth clusters.
				for col := 1; col <= 2; col++ {
					owner := make(map[string]int)
					for p, rec := range records[1:] {
						label := rec[col]
						if c, ok := owner[label]; ok {
							assert.Equal(t, c, groundTruth(p), "point %d scale %d", p, col)
						}
						owner[label] = groundTruth(p)
					}
				}
			})
		}
	}
}

func TestClusterSingleScaleToStdout(t *testing.T) {
	path := synthArtifact(t)

	out, err := execute(t, "cluster", path, "--scale", "1", "--method", "label")
	require.NoError(t, err)
	records := readCSV(t, strings.NewReader(out))
	require.Len(t, records, 91)
	assert.Equal(t, []string{"point", "scale_1"}, records[0])
	assert.Equal(t, "89", records[90][0])
}

func TestClusterSplitBySource(t *testing.T) {
	path := synthArtifact(t)
	out := filepath.Join(t.TempDir(), "labels.csv")

	_, err := execute(t, "cluster", path, "--sources", "30,60", "--out", out)
	require.NoError(t, err)

	first := readCSVFile(t, strings.TrimSuffix(out, ".csv")+"-source0.csv")
	second := readCSVFile(t, strings.TrimSuffix(out, ".csv")+"-source1.csv")
	assert.Len(t, first, 31)
	assert.Len(t, second, 61)
}

func TestClusterErrors(t *testing.T) {
	path := synthArtifact(t)

	_, err := execute(t, "cluster", path, "--method", "kmeans")
	assert.ErrorIs(t, err, clustering.ErrInvalidMethod)

	_, err = execute(t, "cluster", path, "--scale", "7")
	assert.ErrorIs(t, err, hsne.ErrInvalidScale)

	_, err = execute(t, "cluster", path, "--sources", "30")
	assert.ErrorContains(t, err, "--out")

	_, err = execute(t, "cluster", path, "--sources", "100", "--out", filepath.Join(t.TempDir(), "x.csv"))
	assert.ErrorIs(t, err, clustering.ErrInvalidBoundaries)

	_, err = execute(t, "--partitioner", "leiden", "cluster", path)
	assert.Error(t, err)

	_, err = execute(t, "inspect", filepath.Join(t.TempDir(), "missing.hsne"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "inspect", path)
	assert.ErrorContains(t, err, "failed to load config")
}

func TestServeShutsDownWhenContextDone(t *testing.T) {
	path := synthArtifact(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--log-level", "error", "serve", path, "--addr", "127.0.0.1:0"})
	assert.NoError(t, cmd.ExecuteContext(ctx))

	_, err := execute(t, "serve", filepath.Join(t.TempDir(), "missing.hsne"), "--addr", "127.0.0.1:0")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestCompare(t *testing.T) {
	path := synthArtifact(t)

	out, err := execute(t, "compare", path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"scale", "nmi", "ari", "clusters_cluster", "clusters_label"}, strings.Fields(lines[0]))
	for i, line := range lines[1:] {
		assert.Equal(t, strconv.Itoa(i+1), strings.Fields(line)[0])
	}
}
