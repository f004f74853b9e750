package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gilchrisn/hsne-clustering-service/pkg/clustering"
	"github.com/gilchrisn/hsne-clustering-service/pkg/hsne"
)

func newCompareCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "compare <artifact>",
		Short: "Report how far the cluster and label methods agree at every sub-scale",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := hsne.ParseFile(args[0], a.parseOptions()...)
			if err != nil {
				return err
			}
			partitioner, err := clustering.NewPartitioner(a.cfg, a.logger)
			if err != nil {
				return err
			}
			c := clustering.NewClusterer(h, partitioner, a.logger)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "scale\tnmi\tari\tclusters_cluster\tclusters_label")
			for s := 1; s < h.NumScales(); s++ {
				ag, err := c.CompareMethods(cmd.Context(), s)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%d\t%.4f\t%.4f\t%d\t%d\n", s, ag.NMI, ag.ARI, ag.ClustersA, ag.ClustersB)
			}
			return w.Flush()
		},
	}
}
