// Package wasmhost embeds a compiled mathutils WebAssembly module and calls
// its exported arithmetic functions, the way a browser page or native host
// consumes the module.
package wasmhost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/lacquerai/mathutils/internal/arith"
	"github.com/rs/zerolog/log"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

// ErrMissingExport is returned when a module does not export one of the
// arithmetic functions with an (i32, i32) -> i32 signature.
var ErrMissingExport = errors.New("missing export")

const (
	// reactorInit is exported by modules built with -buildmode=c-shared.
	reactorInit = "_initialize"
	commandMain = "_start"
)

// Module is an instantiated module exposing add and multiply.
type Module struct {
	runtime wazero.Runtime
	module  api.Module
	funcs   map[arith.Op]api.Function
}

// Load compiles and instantiates wasm. A reactor module is initialised
// through _initialize; a command module's _start is not run.
func Load(ctx context.Context, wasm []byte) (*Module, error) {
	r := wazero.NewRuntime(ctx)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		r.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	compiled, err := r.CompileModule(ctx, wasm)
	if err != nil {
		r.Close(ctx)
		return nil, fmt.Errorf("failed to compile module: %w", err)
	}

	if err := checkExports(compiled); err != nil {
		r.Close(ctx)
		return nil, err
	}

	cfg := wazero.NewModuleConfig().WithStartFunctions()
	if _, ok := compiled.ExportedFunctions()[reactorInit]; ok {
		cfg = cfg.WithStartFunctions(reactorInit)
	}

	mod, err := r.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		r.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate module: %w", err)
	}

	m := &Module{
		runtime: r,
		module:  mod,
		funcs:   make(map[arith.Op]api.Function, len(arith.Ops)),
	}
	for _, op := range arith.Ops {
		m.funcs[op] = mod.ExportedFunction(string(op))
	}

	log.Debug().
		Str("module", compiled.Name()).
		Int("exports", len(compiled.ExportedFunctions())).
		Msg("WASM module loaded")

	return m, nil
}

// checkExports verifies every arithmetic export before instantiation.
func checkExports(compiled wazero.CompiledModule) error {
	exports := compiled.ExportedFunctions()
	for _, op := range arith.Ops {
		def, ok := exports[string(op)]
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingExport, op)
		}
		if !isBinaryI32(def) {
			return fmt.Errorf("%w: %s has signature %v -> %v, want (i32, i32) -> i32",
				ErrMissingExport, op, valueTypeNames(def.ParamTypes()), valueTypeNames(def.ResultTypes()))
		}
	}
	return nil
}

func isBinaryI32(def api.FunctionDefinition) bool {
	params, results := def.ParamTypes(), def.ResultTypes()
	return len(params) == 2 && params[0] == api.ValueTypeI32 && params[1] == api.ValueTypeI32 &&
		len(results) == 1 && results[0] == api.ValueTypeI32
}

func valueTypeNames(types []api.ValueType) []string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = api.ValueTypeName(t)
	}
	return names
}

// Info describes a compiled module without instantiating it.
type Info struct {
	// Command is set when the module exports _start and can be used with Run.
	Command bool `json:"command" yaml:"command"`
	// Reactor is set when the module exports _initialize.
	Reactor bool     `json:"reactor" yaml:"reactor"`
	Exports []string `json:"exports" yaml:"exports"`
	// Arithmetic is nil when add and multiply have the expected signature.
	Arithmetic error `json:"-" yaml:"-"`
}

// Loadable reports whether Load accepts the module.
func (i *Info) Loadable() bool {
	return i.Arithmetic == nil
}

// Inspect compiles wasm and reports how a host can consume it. Imports are
// not resolved, so WASI is not required.
func Inspect(ctx context.Context, wasm []byte) (*Info, error) {
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	compiled, err := r.CompileModule(ctx, wasm)
	if err != nil {
		return nil, fmt.Errorf("failed to compile module: %w", err)
	}

	exports := compiled.ExportedFunctions()
	info := &Info{
		Exports:    make([]string, 0, len(exports)),
		Arithmetic: checkExports(compiled),
	}
	for name := range exports {
		info.Exports = append(info.Exports, name)
	}
	sort.Strings(info.Exports)

	_, info.Command = exports[commandMain]
	_, info.Reactor = exports[reactorInit]

	return info, nil
}

// Call invokes the export named by op.
func (m *Module) Call(ctx context.Context, op arith.Op, a, b int32) (int32, error) {
	fn, ok := m.funcs[op]
	if !ok || fn == nil {
		return 0, fmt.Errorf("%w: %q", arith.ErrUnknownOp, op)
	}

	results, err := fn.Call(ctx, api.EncodeI32(a), api.EncodeI32(b))
	if err != nil {
		return 0, fmt.Errorf("%s(%d, %d) failed: %w", op, a, b, err)
	}
	return api.DecodeI32(results[0]), nil
}

func (m *Module) Add(ctx context.Context, a, b int32) (int32, error) {
	return m.Call(ctx, arith.OpAdd, a, b)
}

func (m *Module) Multiply(ctx context.Context, a, b int32) (int32, error) {
	return m.Call(ctx, arith.OpMultiply, a, b)
}

// Close releases the module and its runtime.
func (m *Module) Close(ctx context.Context) error {
	return m.runtime.Close(ctx)
}

// Run executes a command module's main with args, as a host page would hand
// [op, a, b] to the module. The module's exit code is returned; a non-zero
// exit is not an error.
func Run(ctx context.Context, wasm []byte, args []string, stdout, stderr io.Writer) (uint32, error) {
	r := wazero.NewRuntime(ctx)
	defer r.Close(ctx)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		return 0, fmt.Errorf("failed to instantiate WASI: %w", err)
	}

	compiled, err := r.CompileModule(ctx, wasm)
	if err != nil {
		return 0, fmt.Errorf("failed to compile module: %w", err)
	}

	if _, ok := compiled.ExportedFunctions()[commandMain]; !ok {
		return 0, fmt.Errorf("%w: %s (not a command module)", ErrMissingExport, commandMain)
	}

	cfg := wazero.NewModuleConfig().
		WithArgs(append([]string{"mathutils"}, args...)...).
		WithStdout(stdout).
		WithStderr(stderr)

	mod, err := r.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		var exitErr *sys.ExitError
		if errors.As(err, &exitErr) {
			return exitErr.ExitCode(), nil
		}
		return 0, fmt.Errorf("failed to run module: %w", err)
	}
	defer mod.Close(ctx)

	return 0, nil
}
