package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/autograph-dev/autograph/flow/emit"
	"github.com/autograph-dev/autograph/server"
)

func newServeCmd() *cobra.Command {
	var (
		addr     string
		flowsDir string
		storeDSN string
		workers  int
		events   bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the deploy/run HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := setupLogger()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			st, err := openStore(ctx, storeDSN)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			opts := []server.Option{
				server.WithStore(st),
				server.WithLogger(logger),
				server.WithFlowsDir(flowsDir),
				server.WithWorkers(workers),
			}
			if events {
				opts = append(opts, server.WithEmitter(emit.NewLogEmitter(nil, true)))
			}
			srv := server.New(opts...)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Listen(addr) }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&flowsDir, "flows-dir", "flows", "directory deployed flows are persisted under")
	cmd.Flags().StringVar(&storeDSN, "store", "memory", "timeline store DSN (memory, sqlite://, mysql://, postgres://, badger://)")
	cmd.Flags().IntVar(&workers, "workers", 4, "per-run execution concurrency")
	cmd.Flags().BoolVar(&events, "events", false, "emit timeline events to stdout as JSONL")
	return cmd
}
