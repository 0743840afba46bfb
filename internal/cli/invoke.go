package cli

import (
	"fmt"
	"os"

	"github.com/lacquerai/mathutils/internal/arith"
	"github.com/lacquerai/mathutils/internal/dispatch"
	"github.com/lacquerai/mathutils/internal/execcontext"
	"github.com/lacquerai/mathutils/internal/style"
	"github.com/lacquerai/mathutils/internal/wasmhost"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// invokeCmd calls an arithmetic export of a compiled module
var invokeCmd = &cobra.Command{
	Use:   "invoke <module.wasm> <op> <a> <b>",
	Short: "Call the add or multiply export of a compiled module",
	Long: `Load a reactor module (built with -buildmode=c-shared) and call one of its
arithmetic exports. The result is printed in the same format as the CLI.`,
	Example: `
  mathutils-host invoke mathutils.wasm add 2 3        # RESULT: 5
  mathutils-host invoke mathutils.wasm multiply -4 5  # RESULT: -20`,
	Args: cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		runCtx := execcontext.RunContext{
			Context: cmd.Context(),
			StdOut:  cmd.OutOrStdout(),
			StdErr:  cmd.ErrOrStderr(),
		}
		return invokeModule(runCtx, args[0], args[1], args[2], args[3])
	},
}

func init() {
	hostCmd.AddCommand(invokeCmd)

	// Stop flag parsing at the first positional so negative operands pass through
	invokeCmd.Flags().SetInterspersed(false)
}

func invokeModule(runCtx execcontext.RunContext, path, opText, aText, bText string) error {
	a, err := dispatch.ParseOperand(2, aText)
	if err != nil {
		return err
	}
	b, err := dispatch.ParseOperand(3, bText)
	if err != nil {
		return err
	}

	op, ok := arith.ParseOp(opText)
	if !ok {
		runCtx.Printf("Unknown operation: %s\n", opText)
		return nil
	}

	wasm, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read module: %w", err)
	}

	var spin style.Spinner
	if !viper.GetBool("quiet") {
		spin = style.NewSpinner(runCtx.StdErr)
		spin.SetSuffix(" Compiling " + path)
		spin.Start()
	}

	mod, err := wasmhost.Load(runCtx.Context, wasm)
	if spin != nil {
		spin.Stop()
	}
	if err != nil {
		return err
	}
	defer mod.Close(runCtx.Context)

	result, err := mod.Call(runCtx.Context, op, a, b)
	if err != nil {
		return err
	}

	runCtx.Printf("RESULT: %d\n", result)
	return nil
}
