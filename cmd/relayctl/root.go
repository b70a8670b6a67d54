package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vyasoai/relay"
	"github.com/vyasoai/relay/internal/config"
	"github.com/vyasoai/relay/store"
)

// app carries state shared by every subcommand.
type app struct {
	cfgFile string
	cfg     *config.Config
	logger  *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "relayctl",
		Short: "Local event delivery engine",
		Long: `relayctl delivers captured events to the local daemon.

Events the daemon cannot take right now are kept in a durable buffer and
retried with exponential backoff once the daemon reports healthy again.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.cfgFile)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = cfg.NewLogger(cmd.ErrOrStderr())
			slog.SetDefault(a.logger)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: ./relayctl.yaml or $HOME/.relay/relayctl.yaml)")

	root.AddCommand(
		newRunCmd(a),
		newSubmitCmd(a),
		newBufferCmd(a),
		newDrainCmd(a),
	)
	return root
}

// open builds an engine over the configured store. The returned close
// function releases the store.
func (a *app) open(ctx context.Context, extra ...relay.Option) (*relay.Relay, func(), error) {
	s, err := a.cfg.OpenStore(ctx, a.logger)
	if err != nil {
		return nil, nil, err
	}

	opts := append(a.cfg.RelayOptions(), relay.WithStore(s), relay.WithLogger(a.logger))
	r, err := relay.New(append(opts, extra...)...)
	if err != nil {
		_ = s.Close()
		return nil, nil, fmt.Errorf("init relay: %w", err)
	}
	return r, func() { closeStore(s, a.logger) }, nil
}

func closeStore(s store.Store, logger *slog.Logger) {
	if err := s.Close(); err != nil {
		logger.Warn("close store failed", "error", err)
	}
}

func printf(w io.Writer, format string, a ...any) {
	_, _ = fmt.Fprintf(w, format, a...)
}
