package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"

	"github.com/gilchrisn/hsne-clustering-service/pkg/hsne"
)

func newInspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <artifact>",
		Short: "Print the size of every scale in a hierarchy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := hsne.ParseFile(args[0], a.parseOptions()...)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "scale\tsize\tnnz\taoi_nnz\trepresentatives\tlandmark_weight")
			for _, s := range h.Scales() {
				sub, ok := s.(*hsne.SubScale)
				if !ok {
					fmt.Fprintf(w, "%d\t%d\t%d\t-\t-\t-\n", s.Number(), s.Size(), s.TransitionMatrix().NNZ())
					continue
				}

				used := make(map[int]struct{})
				for _, b := range sub.BestRepresentatives() {
					used[b] = struct{}{}
				}
				weights := make([]float64, len(sub.LandmarkWeights()))
				for i, v := range sub.LandmarkWeights() {
					weights[i] = float64(v)
				}
				total := floats.Sum(weights)

				fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%.3f\n",
					s.Number(), s.Size(), s.TransitionMatrix().NNZ(), sub.AreaOfInfluence().NNZ(), len(used), total)
				a.logger.Debug().
					Int("scale", s.Number()).
					Int("landmarks", s.Size()).
					Int("representatives_used", len(used)).
					Float64("landmark_weight", total).
					Msg("Inspected scale")
			}
			return w.Flush()
		},
	}
}
