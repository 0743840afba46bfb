//go:build wasip1

// Command mathutils-wasm is the WebAssembly build of mathutils.
//
// Built as a command module its main behaves like the mathutils CLI:
//
//	GOOS=wasip1 GOARCH=wasm go build -o mathutils.wasm ./cmd/mathutils-wasm
//
// Built as a reactor its add and multiply exports can be called by a host:
//
//	GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared -o mathutils.wasm ./cmd/mathutils-wasm
package main

import (
	"fmt"
	"os"

	"github.com/lacquerai/mathutils/internal/arith"
	"github.com/lacquerai/mathutils/internal/dispatch"
	"github.com/lacquerai/mathutils/internal/logging"
)

//go:wasmexport add
func add(a, b int32) int32 {
	return arith.Add(a, b)
}

//go:wasmexport multiply
func multiply(a, b int32) int32 {
	return arith.Multiply(a, b)
}

func main() {
	// Logging is off unless MATHUTILS_LOG_LEVEL is passed into the module
	logging.SetLevelFromEnv()

	if err := dispatch.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
