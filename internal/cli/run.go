package cli

import (
	"fmt"
	"os"

	"github.com/lacquerai/mathutils/internal/wasmhost"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// runCmd runs a command module with arguments, like the host page's run([op, a, b])
var runCmd = &cobra.Command{
	Use:   "run <module.wasm> [op a b]",
	Short: "Run a compiled command module with arguments",
	Long: `Run the main function of a command module (built without -buildmode) with the
given arguments. The module's stdout and stderr are passed through and its exit
code becomes the exit status.`,
	Example: `
  mathutils-host run mathutils.wasm add 2 3   # RESULT: 5
  mathutils-host run mathutils.wasm           # greeting and startup check`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		wasm, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read module: %w", err)
		}

		code, err := wasmhost.Run(cmd.Context(), wasm, args[1:], cmd.OutOrStdout(), cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		log.Debug().Uint32("exit_code", code).Str("module", args[0]).Msg("Module exited")
		if code != 0 {
			return fmt.Errorf("module exited with code %d", code)
		}
		return nil
	},
}

func init() {
	hostCmd.AddCommand(runCmd)

	runCmd.Flags().SetInterspersed(false)
}
