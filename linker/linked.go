package linker

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-host/component"
	"github.com/wippyai/wasm-host/engine"
	"github.com/wippyai/wasm-host/host"
	"github.com/wippyai/wasm-host/transcoder"
)

// Linked is a component whose imports are all resolved. It may be
// instantiated any number of times; host modules are compiled once per
// engine.
type Linked struct {
	component *component.Component
	logger    *zap.Logger
	bindings  []*Binding
	// modules lists the imported core module names in first-use order.
	modules  []string
	compiled map[*engine.Engine]map[string]wazero.CompiledModule
	mu       sync.Mutex
}

func newLinked(c *component.Component, bindings []*Binding, logger *zap.Logger) *Linked {
	var modules []string
	seen := make(map[string]bool)
	for _, imp := range c.Imports() {
		if m := imp.Module(); !seen[m] {
			seen[m] = true
			modules = append(modules, m)
		}
	}
	return &Linked{
		component: c,
		logger:    logger,
		bindings:  bindings,
		modules:   modules,
		compiled:  make(map[*engine.Engine]map[string]wazero.CompiledModule),
	}
}

// Component returns the linked component.
func (l *Linked) Component() *component.Component { return l.component }

// Binding returns the binding resolved for the import with the given
// qualified name.
func (l *Linked) Binding(qualified string) (Binding, bool) {
	for i, imp := range l.component.Imports() {
		if imp.QualifiedName() == qualified {
			return *l.bindings[i], true
		}
	}
	return Binding{}, false
}

// Modules is a guest module instantiated with its host modules.
type Modules struct {
	Guest api.Module
	hosts []api.Module
}

// Close closes the guest and its host modules.
func (m *Modules) Close(ctx context.Context) error {
	err := m.Guest.Close(ctx)
	for _, h := range m.hosts {
		if cerr := h.Close(ctx); err == nil {
			err = cerr
		}
	}
	return err
}

// Instantiate instantiates the host modules and then the guest, which
// runs its start section. Host functions find their state in the context
// (see host.WithState), so ctx must carry the instance's state.
//
// A failing guest instantiation returns the wazero error unchanged so the
// caller can tell a start trap from other failures.
func (l *Linked) Instantiate(ctx context.Context, eng *engine.Engine, cfg wazero.ModuleConfig) (*Modules, error) {
	compiled, err := l.hostModules(ctx, eng)
	if err != nil {
		return nil, err
	}

	rt := eng.Runtime()
	hosts := make(map[string]api.Module, len(compiled))
	m := &Modules{}
	for _, name := range l.modules {
		mod, err := rt.InstantiateModule(ctx, compiled[name], wazero.NewModuleConfig().WithName(""))
		if err != nil {
			_ = m.closeHosts(ctx)
			return nil, &InstantiationError{Module: name, Reason: "instantiate host module", Cause: err}
		}
		hosts[name] = mod
		m.hosts = append(m.hosts, mod)
	}

	if cfg == nil {
		cfg = wazero.NewModuleConfig()
	}
	resolveCtx := experimental.WithImportResolver(ctx, func(name string) api.Module {
		return hosts[name]
	})
	guest, err := rt.InstantiateModule(resolveCtx, l.component.Compiled(), cfg.WithName("").WithStartFunctions())
	if err != nil {
		_ = m.closeHosts(ctx)
		return nil, err
	}
	m.Guest = guest
	return m, nil
}

func (m *Modules) closeHosts(ctx context.Context) error {
	var err error
	for _, h := range m.hosts {
		if cerr := h.Close(ctx); err == nil {
			err = cerr
		}
	}
	return err
}

// hostModules compiles one host module per imported core module name.
func (l *Linked) hostModules(ctx context.Context, eng *engine.Engine) (map[string]wazero.CompiledModule, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if c, ok := l.compiled[eng]; ok {
		return c, nil
	}

	rt := eng.Runtime()
	builders := make(map[string]wazero.HostModuleBuilder, len(l.modules))
	for _, name := range l.modules {
		builders[name] = rt.NewHostModuleBuilder(name)
	}
	for i, imp := range l.component.Imports() {
		sig := transcoder.ImportSignature(imp.Type.ParamTypes(), imp.Type.Results)
		builders[imp.Module()].NewFunctionBuilder().
			WithGoModuleFunction(l.wrap(imp, l.bindings[i], sig), sig.Params, sig.Results).
			WithName(imp.Name).
			Export(imp.Name)
	}

	compiled := make(map[string]wazero.CompiledModule, len(builders))
	for _, name := range l.modules {
		c, err := builders[name].Compile(ctx)
		if err != nil {
			return nil, &InstantiationError{Module: name, Reason: "compile host module", Cause: err}
		}
		compiled[name] = c
	}
	l.compiled[eng] = compiled

	l.logger.Debug("host modules compiled",
		zap.String("component", l.component.Name()),
		zap.Strings("modules", l.modules))
	return compiled, nil
}

// wrap adapts a binding to a core function: lift the arguments from the
// stack, call the binding with the caller's state, lower the results.
// Failures panic, which wazero turns into a trap of the calling export.
func (l *Linked) wrap(imp component.Import, b *Binding, sig transcoder.CoreSignature) api.GoModuleFunc {
	name := imp.QualifiedName()
	params := imp.Type.ParamTypes()
	results := imp.Type.Results
	nparams := len(sig.Params)

	return func(ctx context.Context, mod api.Module, stack []uint64) {
		st := host.FromContext(ctx)
		if st == nil {
			panic(&HostCallError{Import: name, Cause: stderrors.New("no host state bound to the call")})
		}

		tc := &transcoder.Context{Memory: mod.Memory()}
		if alloc := engine.NewGuestAllocator(mod); alloc != nil {
			tc.Alloc = alloc
		}

		flat := stack[:nparams]
		var retptr uint32
		if sig.IndirectResults {
			retptr = uint32(flat[nparams-1])
			flat = flat[:nparams-1]
		}

		args, err := tc.LiftParams(params, flat)
		if err != nil {
			panic(&HostCallError{Import: name, Cause: err})
		}

		out, err := b.Func(ctx, st, args)
		if err != nil {
			var exit *sys.ExitError
			if stderrors.As(err, &exit) {
				l.logger.Debug("guest exit requested", zap.String("import", name), zap.Uint32("code", exit.ExitCode()))
				_ = mod.CloseWithExitCode(ctx, exit.ExitCode())
				panic(exit)
			}
			l.logger.Debug("host function failed", zap.String("import", name), zap.Error(err))
			panic(&HostCallError{Import: name, Cause: err})
		}

		lowered, err := tc.LowerResults(ctx, results, out, retptr)
		if err != nil {
			panic(&HostCallError{Import: name, Cause: fmt.Errorf("lower results: %w", err)})
		}
		copy(stack, lowered)
	}
}
