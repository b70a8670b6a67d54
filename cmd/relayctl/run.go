package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vyasoai/relay"
	"github.com/vyasoai/relay/api"
	"github.com/vyasoai/relay/observability"
)

const shutdownTimeout = 5 * time.Second

func newRunCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the retry loop and the admin API until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = a.cfg.API.Addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.run(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "admin API listen address (overrides api.addr)")
	return cmd
}

func (a *app) run(ctx context.Context, addr string) error {
	reg := prometheus.NewRegistry()
	r, closeFn, err := a.open(ctx,
		relay.WithMetrics(observability.NewMetrics(reg)),
		relay.WithTracer(observability.NewTracer()),
	)
	if err != nil {
		return err
	}
	defer closeFn()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", api.NewHandler(r, a.logger))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.Start(ctx)
	a.logger.Info("relay started",
		"addr", addr,
		"daemon", r.Config().BaseURL,
		"store", a.cfg.Store.Driver)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		r.Stop(shutdownCtx)
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	a.logger.Info("relay stopped")
	return err
}
