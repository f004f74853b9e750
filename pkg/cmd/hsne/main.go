// Command hsne clusters the landmark scales of HSNE hierarchy artifacts.
package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/gilchrisn/hsne-clustering-service/pkg/clustering"
	"github.com/gilchrisn/hsne-clustering-service/pkg/hsne"
)

// app carries the state shared by all subcommands.
type app struct {
	cfg     *clustering.Config
	cfgFile string
	logger  zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{cfg: clustering.NewConfig(), logger: zerolog.Nop()}

	root := &cobra.Command{
		Use:   "hsne",
		Short: "Cluster the landmark scales of an HSNE hierarchy",
		Long: `hsne reads the binary hierarchy written by an HSNE run, partitions the
transition matrix of a chosen scale, and maps the landmark communities back
to the original data points.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.cfgFile != "" {
				if err := a.cfg.LoadFromFile(a.cfgFile); err != nil {
					return fmt.Errorf("failed to load config %s: %w", a.cfgFile, err)
				}
			}
			a.logger = a.cfg.CreateLogger().With().
				Str("run_id", uuid.NewString()).
				Str("command", cmd.Name()).
				Logger()
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.cfgFile, "config", "c", "", "config file (yaml, json or toml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("partitioner", "louvain", "community detection backend (louvain, gonum)")
	flags.Int64("seed", 42, "random seed for the partitioner and synthetic data")
	flags.Bool("strict-sizes", false, "reject artifacts whose declared scale sizes disagree with their matrices")

	for key, name := range map[string]string{
		"logging.level":         "log-level",
		"algorithm.partitioner": "partitioner",
		"algorithm.random_seed": "seed",
		"parser.strict_sizes":   "strict-sizes",
	} {
		_ = a.cfg.BindFlag(key, flags.Lookup(name))
	}

	root.AddCommand(newInspectCmd(a), newClusterCmd(a), newSynthCmd(a), newCompareCmd(a), newServeCmd(a))
	return root
}

// parseOptions returns the parse options implied by the config.
func (a *app) parseOptions() []hsne.ParseOption {
	return []hsne.ParseOption{
		hsne.WithLogger(a.logger),
		hsne.WithStrictSizes(a.cfg.StrictSizes()),
		hsne.WithMaxDecodedBytes(a.cfg.MaxDecodedBytes()),
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
