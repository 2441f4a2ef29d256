package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 10 * time.Second
)

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Claims queued runs and executes them until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			a.Logger().Info("dispatcher started", zap.Int("workers", a.Config().Worker.Concurrency))
			a.Dispatcher().Run(cmd.Context())
			a.Logger().Info("dispatcher stopped")
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	var withWorkers bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serves the ops HTTP API, with the worker loop in the same process",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			logger := a.Logger()
			ctx, stop := context.WithCancel(cmd.Context())
			defer stop()

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", a.Config().Server.Port),
				Handler:           a.Server().Handler(),
				ReadHeaderTimeout: readHeaderTimeout,
			}

			var wg sync.WaitGroup
			if withWorkers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					logger.Info("dispatcher started", zap.Int("workers", a.Config().Worker.Concurrency))
					a.Dispatcher().Run(ctx)
				}()
			}

			serveErr := make(chan error, 1)
			go func() {
				logger.Info("http server started", zap.Int("port", a.Config().Server.Port))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
				close(serveErr)
			}()

			var runErr error
			select {
			case <-ctx.Done():
			case err, ok := <-serveErr:
				if ok {
					runErr = fmt.Errorf("http server: %w", err)
				}
			}
			logger.Info("shutdown initiated")
			stop()

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("server shutdown error", zap.Error(err))
			}
			wg.Wait()
			logger.Info("shutdown complete")
			return runErr
		},
	}
	cmd.Flags().BoolVar(&withWorkers, "workers", true, "run the worker loop alongside the API")
	return cmd
}
