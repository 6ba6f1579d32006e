package commands

import (
	"github.com/spf13/cobra"

	"github.com/forgekit/forge"
	"github.com/forgekit/forge/logging"
	"github.com/forgekit/forge/style"
)

func Health(logger *logging.Logger, addr *string) *cobra.Command {
	ctx := createCancellableContext()

	cmd := &cobra.Command{
		Use:   "health",
		Args:  cobra.NoArgs,
		Short: "Check that the build daemon is reachable",
		RunE: logError(logger, func(cmd *cobra.Command, args []string) error {
			client, err := forge.NewClient(ctx, *addr)
			if err != nil {
				return err
			}
			defer client.Close()

			info, err := client.Info(ctx)
			if err != nil {
				return err
			}
			logger.Info("Daemon is healthy (version %s)", style.Symbol(info.Version))
			return nil
		}),
	}
	AddHelpFlag(cmd, "health")
	return cmd
}
