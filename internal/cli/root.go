package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/lacquerai/mathutils/internal/dispatch"
	"github.com/lacquerai/mathutils/internal/logging"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootCmd is the dispatcher. Flag parsing is disabled so that every argument,
// including negative operands, reaches the dispatcher untouched.
var rootCmd = &cobra.Command{
	Use:   "mathutils [op a b]",
	Short: "Add or multiply two 32-bit integers",
	Long: `mathutils adds or multiplies two signed 32-bit integers.

Run with exactly three arguments to calculate:
  mathutils add 2 3          # RESULT: 5
  mathutils MULTIPLY 4 -5    # RESULT: -20

Any other number of arguments prints a greeting and a startup check.
Results wrap on overflow.

Logging is configured through MATHUTILS_LOG_LEVEL or $HOME/.mathutils/config.yaml.`,
	Args:               cobra.ArbitraryArgs,
	DisableFlagParsing: true,
	SilenceUsage:       true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogging()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Debug().Strs("args", args).Msg("Dispatching")
		return dispatch.Run(cmd.OutOrStdout(), args)
	},
}

// Execute runs the dispatcher command.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return execute(context.Background(), os.Args[1:])
}

func execute(ctx context.Context, args []string) error {
	if len(args) > 0 && isCompletionRequest(args[0]) {
		return dispatchDirect(args)
	}

	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

// isCompletionRequest reports whether cobra would hand arg to its hidden
// shell completion command instead of the dispatcher.
func isCompletionRequest(arg string) bool {
	return arg == cobra.ShellCompRequestCmd || arg == cobra.ShellCompNoDescRequestCmd
}

// dispatchDirect runs the dispatcher without cobra, printing errors the
// way cobra does.
func dispatchDirect(args []string) error {
	initConfig()
	initLogging()

	log.Debug().Strs("args", args).Msg("Dispatching")
	if err := dispatch.Run(rootCmd.OutOrStdout(), args); err != nil {
		rootCmd.PrintErrln(rootCmd.ErrPrefix(), err.Error())
		return err
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	viper.SetDefault("log-level", "disabled")
	viper.SetDefault("output", "text")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	_ = godotenv.Load()

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(filepath.Join(home, ".mathutils"))
		}
		viper.AddConfigPath(".")
		viper.AddConfigPath(".mathutils")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Environment variables, e.g. MATHUTILS_LOG_LEVEL
	viper.SetEnvPrefix("MATHUTILS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") && !viper.GetBool("quiet") {
			fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
		}
	}
}

// initLogging configures the global logger
func initLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(logging.ParseLevel(viper.GetString("log-level")))

	// Logs always go to stderr so stdout carries only results
	if !viper.GetBool("quiet") && viper.GetString("output") == "text" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

// getVersion returns the version information
func getVersion() string {
	return fmt.Sprintf("%s (commit: %s, built: %s, go: %s)", Version, Commit, Date, GoVersion)
}
