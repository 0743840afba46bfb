package cli

import (
	"context"
	"image/color"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/lacquerai/mathutils/internal/style"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Global host flags
	cfgFile      string
	logLevel     string
	outputFormat string
	quiet        bool
	verbose      bool
)

// hostCmd is the base command of the host tool
var hostCmd = &cobra.Command{
	Use:   "mathutils-host",
	Short: "Serve and embed mathutils builds",
	Long: `mathutils-host runs the mathutils WebAssembly build the way a host page does.

It can serve the dispatcher over HTTP and WebSocket, call the add and multiply
exports of a compiled module, or run a command module with arguments.

Build the module with:
  GOOS=wasip1 GOARCH=wasm go build -o mathutils.wasm ./cmd/mathutils-wasm                    # command
  GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared -o mathutils.wasm ./cmd/mathutils-wasm # reactor`,
	Version:      getVersion(),
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogging()
	},
}

// ExecuteHost adds all child commands to the host command and runs it.
func ExecuteHost() error {
	return fang.Execute(context.Background(), hostCmd, fang.WithColorSchemeFunc(func(lightDark lipgloss.LightDarkFunc) fang.ColorScheme {
		return fang.ColorScheme{
			Base:           style.PrimaryTextColor,
			Title:          style.AccentColor,
			Description:    style.PrimaryTextColor,
			Codeblock:      style.CodeColor,
			Program:        style.AccentColor,
			DimmedArgument: style.MutedColor,
			Comment:        style.MutedColor,
			Flag:           style.InfoColor,
			FlagDefault:    style.MutedColor,
			Command:        style.SuccessColor,
			QuotedString:   style.WarningColor,
			Argument:       style.PrimaryTextColor,
			Help:           style.InfoColor,
			Dash:           style.MutedColor,
			ErrorHeader:    [2]color.Color{style.ErrorColor, style.ErrorBgColor},
			ErrorDetails:   style.ErrorColor,
		}
	}))
}

func init() {
	hostCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.mathutils/config.yaml)")
	hostCmd.PersistentFlags().StringVar(&logLevel, "log-level", "disabled", "log level (debug, info, warn, error) (default: disabled)")
	hostCmd.PersistentFlags().StringVar(&outputFormat, "output", "text", "output format (text, json, yaml)")
	hostCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")
	hostCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Bind flags to viper
	_ = viper.BindPFlag("log-level", hostCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("output", hostCmd.PersistentFlags().Lookup("output"))
	_ = viper.BindPFlag("quiet", hostCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", hostCmd.PersistentFlags().Lookup("verbose"))
}
