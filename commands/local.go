package commands

import (
	"github.com/spf13/cobra"

	"github.com/forgekit/forge"
	"github.com/forgekit/forge/logging"
	"github.com/forgekit/forge/style"
)

func Local(logger *logging.Logger, addr *string, quiet *bool) *cobra.Command {
	var flags buildFlags
	var dockerfile string
	ctx := createCancellableContext()

	cmd := &cobra.Command{
		Use:   "local [<context-dir>]",
		Args:  cobra.MaximumNArgs(1),
		Short: "Build an image from a local directory",
		RunE: logError(logger, func(cmd *cobra.Command, args []string) error {
			contextDir := "."
			if len(args) == 1 {
				contextDir = args[0]
			}

			opts := forge.BuildOptions{
				Local: &forge.LocalSource{
					ContextDir: contextDir,
					Dockerfile: dockerfile,
				},
			}
			if err := flags.apply(&opts); err != nil {
				return err
			}

			client, err := forge.NewClient(ctx, *addr)
			if err != nil {
				return err
			}
			defer client.Close()

			result, err := client.Build(ctx, opts, flags.sink(logger, *quiet))
			if err != nil {
				return err
			}
			if result.Digest != "" {
				logger.Info("Successfully built %s", style.Symbol("%s", result.Digest))
			} else {
				logger.Info("Successfully built (no image exported)")
			}
			return nil
		}),
	}
	cmd.Flags().StringVarP(&dockerfile, "file", "f", "", "Dockerfile path relative to the context (defaults to 'Dockerfile')")
	addBuildFlags(cmd, &flags)
	AddHelpFlag(cmd, "local")
	return cmd
}
