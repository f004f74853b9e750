package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gilchrisn/hsne-clustering-service/pkg/clustering"
	"github.com/gilchrisn/hsne-clustering-service/pkg/hsne"
)

type clusterFlags struct {
	scale   int
	out     string
	sources []int
}

func newClusterCmd(a *app) *cobra.Command {
	var f clusterFlags

	cmd := &cobra.Command{
		Use:   "cluster <artifact>",
		Short: "Cluster one scale, or every sub-scale, and write labels as CSV",
		Long: `Partition the transition matrix of a scale and map the communities to the
data points. Without --scale every sub-scale is clustered and written as one
column per scale. With --sources the rows are split into one file per source.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCluster(cmd, args[0], f)
		},
	}

	cmd.Flags().IntVarP(&f.scale, "scale", "s", -1, "scale to cluster (default: all sub-scales)")
	cmd.Flags().StringP("method", "m", "cluster", "label propagation method (cluster, label)")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "output CSV path (default: stdout)")
	cmd.Flags().IntSliceVar(&f.sources, "sources", nil, "points per source, splits the output per source")
	cmd.Flags().Bool("parallel", false, "cluster sub-scales concurrently")
	cmd.Flags().Int("workers", 0, "maximum concurrent scales (default: number of CPUs)")

	_ = a.cfg.BindFlag("algorithm.method", cmd.Flags().Lookup("method"))
	_ = a.cfg.BindFlag("performance.parallel", cmd.Flags().Lookup("parallel"))
	_ = a.cfg.BindFlag("performance.num_workers", cmd.Flags().Lookup("workers"))
	return cmd
}

func (a *app) runCluster(cmd *cobra.Command, path string, f clusterFlags) error {
	method, err := clustering.ParseMethod(a.cfg.Method())
	if err != nil {
		return err
	}
	h, err := hsne.ParseFile(path, a.parseOptions()...)
	if err != nil {
		return err
	}
	partitioner, err := clustering.NewPartitioner(a.cfg, a.logger)
	if err != nil {
		return err
	}
	c := clustering.NewClusterer(h, partitioner, a.logger)
	ctx := cmd.Context()

	var (
		header []string
		matrix [][]int
	)
	if f.scale >= 0 {
		labels, err := c.ClusterScale(ctx, f.scale, method)
		if err != nil {
			return err
		}
		header = []string{"point", "scale_" + strconv.Itoa(f.scale)}
		matrix = make([][]int, len(labels))
		for i, l := range labels {
			matrix[i] = []int{l}
		}
	} else {
		all, err := c.ClusterAll(ctx, method, a.cfg.Parallel(), a.cfg.NumWorkers())
		if err != nil {
			return err
		}
		header = []string{"point"}
		for s := 1; s <= all.NumScales(); s++ {
			header = append(header, "scale_"+strconv.Itoa(s))
		}
		matrix = all.Matrix
	}

	if len(f.sources) == 0 {
		return a.writeLabels(cmd.OutOrStdout(), f.out, header, matrix)
	}
	if f.out == "" {
		return fmt.Errorf("--sources requires --out")
	}
	bounds, err := clustering.SourceBoundaries(f.sources)
	if err != nil {
		return err
	}
	parts, err := clustering.SplitBySource(matrix, bounds)
	if err != nil {
		return err
	}
	ext := filepath.Ext(f.out)
	stem := strings.TrimSuffix(f.out, ext)
	for i, part := range parts {
		if err := a.writeLabels(nil, fmt.Sprintf("%s-source%d%s", stem, i, ext), header, part); err != nil {
			return err
		}
	}
	return nil
}

// writeLabels writes one CSV row per point to path, or to stdout when path is empty.
func (a *app) writeLabels(stdout io.Writer, path string, header []string, matrix [][]int) (err error) {
	out := stdout
	if path != "" {
		file, createErr := os.Create(path)
		if createErr != nil {
			return fmt.Errorf("failed to create %s: %w", path, createErr)
		}
		defer func() {
			if cerr := file.Close(); err == nil {
				err = cerr
			}
		}()
		out = file
	}

	w := csv.NewWriter(out)
	if err := w.Write(header); err != nil {
		return err
	}
	record := make([]string, len(header))
	for p, row := range matrix {
		record[0] = strconv.Itoa(p)
		for s, label := range row {
			record[s+1] = strconv.Itoa(label)
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	a.logger.Info().
		Str("path", path).
		Int("points", len(matrix)).
		Int("columns", len(header)-1).
		Msg("Wrote labels")
	return nil
}
