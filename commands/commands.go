package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	dockerconfig "github.com/docker/cli/cli/config"
	"github.com/spf13/cobra"

	"github.com/forgekit/forge"
	"github.com/forgekit/forge/logging"
	"github.com/forgekit/forge/progress"
	"github.com/forgekit/forge/session/auth"
	"github.com/forgekit/forge/session/secrets"
)

func AddHelpFlag(cmd *cobra.Command, commandName string) {
	cmd.Flags().BoolP("help", "h", false, fmt.Sprintf("Help for '%s'", commandName))
}

func logError(logger *logging.Logger, f func(cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cmd.SilenceErrors = true
		cmd.SilenceUsage = true
		err := f(cmd, args)
		if err != nil {
			logger.Error(err.Error())
			return err
		}
		return nil
	}
}

func multiValueHelp(name string) string {
	return fmt.Sprintf("\nRepeat for each %s in order,\n  or supply once by comma-separated list", name)
}

func createCancellableContext() context.Context {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		<-signals
		cancel()
	}()

	return ctx
}

// buildFlags mirrors the build recipe; shared by 'local' and 'github'.
type buildFlags struct {
	Tags         []string
	BuildArgs    []string
	Target       string
	Platforms    []string
	RegistryHost string
	RegistryUser string
	RegistryPass string
	CacheFrom    []string
	CacheTo      []string
	Secrets      []string
	NoCache      bool
	Pull         bool
	JSON         bool
}

func addBuildFlags(cmd *cobra.Command, flags *buildFlags) {
	cmd.Flags().StringSliceVarP(&flags.Tags, "tag", "t", nil, "Tag for the resulting image; tagged images are pushed"+multiValueHelp("tag"))
	cmd.Flags().StringSliceVar(&flags.BuildArgs, "build-arg", nil, "Build argument in 'NAME=VALUE' form"+multiValueHelp("build argument"))
	cmd.Flags().StringVar(&flags.Target, "target", "", "Target build stage")
	cmd.Flags().StringSliceVar(&flags.Platforms, "platform", nil, "Target platform, e.g. linux/amd64"+multiValueHelp("platform"))
	cmd.Flags().StringVar(&flags.RegistryHost, "registry-host", "", "Registry host for explicit authentication")
	cmd.Flags().StringVar(&flags.RegistryUser, "registry-user", "", "Registry username")
	cmd.Flags().StringVar(&flags.RegistryPass, "registry-password", "", "Registry password")
	cmd.Flags().StringSliceVar(&flags.CacheFrom, "cache-from", nil, "Registry ref to import build cache from"+multiValueHelp("cache source"))
	cmd.Flags().StringSliceVar(&flags.CacheTo, "cache-to", nil, "Registry ref to export build cache to"+multiValueHelp("cache destination"))
	cmd.Flags().StringSliceVar(&flags.Secrets, "secret", nil, "Secret in 'id=NAME,src=PATH' or 'id=NAME,env=VAR' form"+multiValueHelp("secret"))
	cmd.Flags().BoolVar(&flags.NoCache, "no-cache", false, "Disable build cache")
	cmd.Flags().BoolVar(&flags.Pull, "pull", false, "Always pull base images")
	cmd.Flags().BoolVar(&flags.JSON, "json", false, "Emit progress as JSON lines")
}

func (f *buildFlags) apply(opts *forge.BuildOptions) error {
	args, err := parsePairs(f.BuildArgs)
	if err != nil {
		return err
	}
	opts.BuildArgs = args
	opts.Target = f.Target
	opts.Tags = f.Tags
	opts.CacheFrom = f.CacheFrom
	opts.CacheTo = f.CacheTo
	opts.NoCache = f.NoCache
	opts.Pull = f.Pull

	for _, p := range f.Platforms {
		platform, err := forge.ParsePlatform(p)
		if err != nil {
			return err
		}
		opts.Platforms = append(opts.Platforms, platform)
	}

	if f.RegistryHost != "" {
		opts.RegistryAuth = &forge.RegistryAuth{
			Host:     f.RegistryHost,
			Username: f.RegistryUser,
			Password: f.RegistryPass,
		}
	}

	for _, s := range f.Secrets {
		src, err := parseSecret(s)
		if err != nil {
			return err
		}
		opts.Secrets = append(opts.Secrets, src)
	}

	opts.Credentials = dockerCredentials()
	return nil
}

func (f *buildFlags) sink(logger *logging.Logger, quiet bool) forge.ProgressSink {
	if f.JSON {
		return progress.NewJSON(logger.RawWriter())
	}
	if quiet {
		return progress.Quiet{}
	}
	return progress.NewText(logger)
}

func parsePairs(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		key, value, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid build argument '%s': expected NAME=VALUE", p)
		}
		m[key] = value
	}
	return m, nil
}

// parseSecret resolves env-bound secrets immediately so the session
// handler never touches the process environment.
func parseSecret(s string) (secrets.Source, error) {
	src := secrets.Source{}
	for _, field := range strings.Split(s, ",") {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return src, fmt.Errorf("invalid secret '%s': expected id=NAME,src=PATH or id=NAME,env=VAR", s)
		}
		switch key {
		case "id":
			src.ID = value
		case "src", "source":
			src.FilePath = value
		case "env":
			src.Data = []byte(os.Getenv(value))
		default:
			return src, fmt.Errorf("invalid secret field '%s'", key)
		}
	}
	if src.ID == "" {
		return src, fmt.Errorf("invalid secret '%s': missing id", s)
	}
	if src.FilePath == "" && src.Data == nil {
		return src, fmt.Errorf("invalid secret '%s': missing src or env", s)
	}
	return src, nil
}

// dockerCredentials resolves registry credentials from the Docker CLI
// config, including configured credential helpers.
func dockerCredentials() auth.CredentialFunc {
	cfg := dockerconfig.LoadDefaultConfigFile(io.Discard)
	return func(_ context.Context, host string) (string, string, error) {
		ac, err := cfg.GetAuthConfig(host)
		if err != nil {
			return "", "", err
		}
		if ac.IdentityToken != "" {
			return "", ac.IdentityToken, nil
		}
		return ac.Username, ac.Password, nil
	}
}
