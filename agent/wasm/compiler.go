package wasm

import (
	"context"
	"fmt"
	"sort"

	"github.com/tetratelabs/wazero"

	"github.com/hupe1980/gambit/core"
	"github.com/hupe1980/gambit/logging"
)

// Config tunes the sandbox.
type Config struct {
	// MemoryLimitPages caps guest linear memory in 64KiB pages.
	MemoryLimitPages uint32
	// Interpreter forces the interpreter engine instead of the compiler.
	Interpreter bool
}

// DefaultConfig allows 16MiB of guest memory.
var DefaultConfig = Config{
	MemoryLimitPages: 256,
}

// Options configures a Compiler.
type Options struct {
	Config Config
	Logger logging.Logger
}

// Compiler validates and instantiates WebAssembly agents. Each compiled agent
// gets its own wazero runtime so closing one never affects another.
type Compiler struct {
	opts Options
}

var _ core.Compiler = (*Compiler)(nil)

// NewCompiler creates a Compiler.
func NewCompiler(optFns ...func(o *Options)) *Compiler {
	opts := Options{Config: DefaultConfig, Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &Compiler{opts: opts}
}

func (c *Compiler) runtimeConfig() wazero.RuntimeConfig {
	var cfg wazero.RuntimeConfig
	if c.opts.Config.Interpreter {
		cfg = wazero.NewRuntimeConfigInterpreter()
	} else {
		cfg = wazero.NewRuntimeConfig()
	}
	if c.opts.Config.MemoryLimitPages > 0 {
		cfg = cfg.WithMemoryLimitPages(c.opts.Config.MemoryLimitPages)
	}
	return cfg.WithCloseOnContextDone(true)
}

// Compile decodes, validates and instantiates payload.
func (c *Compiler) Compile(ctx context.Context, payload []byte) (core.Runtime, error) {
	r := wazero.NewRuntimeWithConfig(ctx, c.runtimeConfig())

	compiled, err := r.CompileModule(ctx, payload)
	if err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("%w: %v", core.ErrCompileFailed, err)
	}
	if err := validate(compiled); err != nil {
		_ = r.Close(ctx)
		return nil, err
	}
	if err := instantiateHost(ctx, r); err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("%w: host module: %v", core.ErrCompileFailed, err)
	}

	rt := &Runtime{runtime: r, compiled: compiled, logger: c.opts.Logger}
	if err := rt.instantiate(ctx); err != nil {
		_ = r.Close(ctx)
		return nil, fmt.Errorf("%w: instantiate: %v", core.ErrCompileFailed, err)
	}
	return rt, nil
}

// validate checks the module's imports and exports against the agent ABI.
func validate(m wazero.CompiledModule) error {
	if len(m.ImportedMemories()) > 0 {
		return fmt.Errorf("%w: module must not import memory", core.ErrInterfaceMismatch)
	}
	for _, def := range m.ImportedFunctions() {
		mod, name, _ := def.Import()
		want, ok := hostImports[name]
		if mod != HostModule || !ok {
			return fmt.Errorf("%w: unknown import %s.%s", core.ErrInterfaceMismatch, mod, name)
		}
		if !want.matches(def) {
			return fmt.Errorf("%w: import %s has wrong signature, want %s", core.ErrInterfaceMismatch, name, want)
		}
	}

	if _, ok := m.ExportedMemories()[ExportMemory]; !ok {
		return fmt.Errorf("%w: missing %q export", core.ErrInterfaceMismatch, ExportMemory)
	}
	exports := m.ExportedFunctions()
	for _, name := range sortedKeys(requiredExports) {
		def, ok := exports[name]
		if !ok {
			return fmt.Errorf("%w: missing %q export", core.ErrInterfaceMismatch, name)
		}
		if want := requiredExports[name]; !want.matches(def) {
			return fmt.Errorf("%w: export %s has wrong signature, want %s", core.ErrInterfaceMismatch, name, want)
		}
	}
	for _, name := range sortedKeys(optionalExports) {
		def, ok := exports[name]
		if !ok {
			continue
		}
		if want := optionalExports[name]; !want.matches(def) {
			return fmt.Errorf("%w: export %s has wrong signature, want %s", core.ErrInterfaceMismatch, name, want)
		}
	}
	return nil
}

func sortedKeys(m map[string]signature) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
