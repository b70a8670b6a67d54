package main

import (
	"github.com/spf13/cobra"

	"github.com/vyasoai/relay"
)

func newDrainCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Run one retry pass over the buffer now",
		Long: `drain runs a single retry pass. The pass is skipped when the daemon
is unhealthy; --force re-probes it first instead of trusting the cached
result.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, closeFn, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			report := r.Drain(cmd.Context(), relay.DrainOptions{ForceProbe: force})
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "re-probe daemon health before draining")
	return cmd
}
