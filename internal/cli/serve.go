package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/lacquerai/mathutils/internal/execcontext"
	"github.com/lacquerai/mathutils/internal/server"
	"github.com/lacquerai/mathutils/internal/style"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Serve command flags
	servePort       int
	serveHost       string
	serveMetrics    bool
	serveCORS       bool
	serveWasm       string
	serveMaxHistory int
	serveShutdown   time.Duration
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for dispatcher runs",
	Long: `Start an HTTP server that runs the mathutils dispatcher on behalf of a host page.

The server provides:
- POST /api/v1/run with {"args": ["add", "2", "3"]}
- GET /api/v1/operations/{op}?a=2&b=3
- WebSocket streaming at /api/v1/stream
- Prometheus metrics endpoint
- The compiled module at /mathutils.wasm when --wasm is set`,
	Example: `
  mathutils-host serve                              # Serve on localhost:8080
  mathutils-host serve --port 9000 --host 0.0.0.0  # Custom host and port
  mathutils-host serve --wasm ./mathutils.wasm     # Also serve the module`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		runCtx := execcontext.RunContext{
			Context: cmd.Context(),
			StdOut:  cmd.OutOrStdout(),
			StdErr:  cmd.ErrOrStderr(),
		}
		return startServer(runCtx)
	},
}

func init() {
	hostCmd.AddCommand(serveCmd)

	defaults := server.DefaultConfig()

	serveCmd.Flags().IntVarP(&servePort, "port", "p", defaults.Port, "server port")
	serveCmd.Flags().StringVar(&serveHost, "host", defaults.Host, "server host")
	serveCmd.Flags().BoolVar(&serveMetrics, "metrics", defaults.EnableMetrics, "enable Prometheus metrics endpoint")
	serveCmd.Flags().BoolVar(&serveCORS, "cors", defaults.EnableCORS, "enable CORS headers")
	serveCmd.Flags().StringVar(&serveWasm, "wasm", "", "compiled module to serve at /mathutils.wasm")
	serveCmd.Flags().IntVar(&serveMaxHistory, "max-history", defaults.MaxHistory, "number of runs kept for /api/v1/runs")
	serveCmd.Flags().DurationVar(&serveShutdown, "shutdown-timeout", defaults.ShutdownTimeout, "graceful shutdown timeout")
}

func startServer(runCtx execcontext.RunContext) error {
	config := server.DefaultConfig()
	config.Host = serveHost
	config.Port = servePort
	config.EnableMetrics = serveMetrics
	config.EnableCORS = serveCORS
	config.WasmFile = serveWasm
	config.MaxHistory = serveMaxHistory
	config.ShutdownTimeout = serveShutdown

	srv, err := server.New(config)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	if err := srv.Start(); err != nil {
		return err
	}

	if !viper.GetBool("quiet") {
		printServeInfo(runCtx, srv.GetAddr(), config)
	}

	return srv.Wait(runCtx.Context)
}

// printServeInfo lists the endpoints served at addr
func printServeInfo(w io.Writer, addr string, config *server.Config) {
	style.Success(w, fmt.Sprintf("mathutils server listening at http://%s", addr))
	fmt.Fprintf(w, "  %s http://%s/api/v1/run\n", style.Muted("API:"), addr)
	fmt.Fprintf(w, "  %s ws://%s/api/v1/stream\n", style.Muted("Stream:"), addr)
	if config.EnableMetrics {
		fmt.Fprintf(w, "  %s http://%s/metrics\n", style.Muted("Metrics:"), addr)
	}
	if config.WasmFile != "" {
		fmt.Fprintf(w, "  %s http://%s/mathutils.wasm\n", style.Muted("Module:"), addr)
	}
	style.Info(w, "Press Ctrl+C to stop")
}
