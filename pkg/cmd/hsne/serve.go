package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gilchrisn/hsne-clustering-service/pkg/hsne"
	"github.com/gilchrisn/hsne-clustering-service/pkg/server"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [artifact...]",
		Short: "Serve the clustering API over HTTP",
		Long: `Start an HTTP server that accepts hierarchy uploads and clusters their
scales on request. Artifacts named on the command line are loaded before the
server starts listening.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := server.New(a.cfg, a.logger)
			defer s.Close()

			for _, path := range args {
				h, err := hsne.ParseFile(path, a.parseOptions()...)
				if err != nil {
					return err
				}
				info := s.AddHierarchy(filepath.Base(path), h)
				a.logger.Info().
					Str("hierarchy_id", info.ID).
					Str("path", path).
					Int("scales", info.NumScales).
					Msg("Preloaded hierarchy")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return s.ListenAndServe(ctx)
		},
	}

	cmd.Flags().String("addr", ":8080", "listen address")
	cmd.Flags().Int("max-jobs", 4, "maximum clustering jobs running at once")
	_ = a.cfg.BindFlag("server.address", cmd.Flags().Lookup("addr"))
	_ = a.cfg.BindFlag("server.max_jobs", cmd.Flags().Lookup("max-jobs"))
	return cmd
}
