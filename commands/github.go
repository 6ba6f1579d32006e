package commands

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/forgekit/forge"
	"github.com/forgekit/forge/logging"
	"github.com/forgekit/forge/style"
)

func Github(logger *logging.Logger, addr *string, quiet *bool) *cobra.Command {
	var flags buildFlags
	var (
		gitRef     string
		subdir     string
		dockerfile string
		token      string
	)
	ctx := createCancellableContext()

	cmd := &cobra.Command{
		Use:   "github <repo-url>",
		Args:  cobra.ExactArgs(1),
		Short: "Build an image from a GitHub repository",
		RunE: logError(logger, func(cmd *cobra.Command, args []string) error {
			if token == "" {
				token = os.Getenv("GITHUB_TOKEN")
			}

			opts := forge.BuildOptions{
				Git: &forge.GitSource{
					URL:        args[0],
					Ref:        gitRef,
					Subdir:     subdir,
					Token:      token,
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
	cmd.Flags().StringVarP(&gitRef, "ref", "b", "", "Git reference (branch, tag, or commit)")
	cmd.Flags().StringVar(&subdir, "subdir", "", "Subdirectory within the repository to use as context")
	cmd.Flags().StringVarP(&dockerfile, "file", "f", "", "Dockerfile path within the repository")
	cmd.Flags().StringVar(&token, "token", "", "GitHub token for private repositories (defaults to $GITHUB_TOKEN)")
	addBuildFlags(cmd, &flags)
	AddHelpFlag(cmd, "github")
	return cmd
}
