package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/git-pkgs/pubcheck/internal/config"
	"github.com/git-pkgs/pubcheck/internal/logging"
	"github.com/git-pkgs/pubcheck/internal/ui"
)

var (
	appVersion = "dev"
	appCommit  = "none"
	appDate    = "unknown"
)

// SetVersionInfo sets the version information injected via ldflags.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

// ErrNotPublishable is returned by check when the batch cannot be published
// as-is. The reason has already been printed.
var ErrNotPublishable = errors.New("packages are not ready to publish")

var (
	cfg       config.Config
	logger    = zap.NewNop()
	printer   = ui.New()
	configErr error
)

var rootCmd = &cobra.Command{
	Use:   "pubcheck",
	Short: "Check npm packages for version conflicts before publishing",
	Long: `pubcheck checks every package of a JavaScript workspace against the npm
registry and reports versions that are already published.

The registry is queried through the npm CLI, falling back to the registry's
HTTP API when the CLI cannot answer. A version that cannot be verified is
reported as an error and never as safe to publish.

Use "pubcheck resolve" to bump conflicting versions interactively.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if configErr != nil {
			return configErr
		}
		loaded, err := config.Load()
		if err != nil {
			return err
		}
		cfg = loaded

		logger, err = logging.New(cfg.Verbose, cfg.Log.Format)
		if err != nil {
			return err
		}
		if used := viper.ConfigFileUsed(); used != "" {
			logger.Debug("config loaded", zap.String("file", used))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "pubcheck %s\ncommit: %s\nbuilt:  %s\n", appVersion, appCommit, appDate)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default .pubcheck.yaml)")
	flags.BoolP("verbose", "v", false, "verbose output")
	flags.String("registry", "", "registry URL (default: npm's configured registry)")
	flags.String("cli", "npm", "path to the npm executable")

	_ = viper.BindPFlag("verbose", flags.Lookup("verbose"))
	_ = viper.BindPFlag("registry.url", flags.Lookup("registry"))
	_ = viper.BindPFlag("registry.cli", flags.Lookup("cli"))

	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".pubcheck")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
	}

	viper.SetEnvPrefix("PUBCHECK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Only a missing default config file is fine.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			configErr = fmt.Errorf("reading config: %w", err)
		}
	}
}

// Execute runs the root command. Cancelling ctx stops in-flight registry
// queries.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
