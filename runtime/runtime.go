package runtime

import (
	"context"
	stderrors "errors"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-host/component"
	"github.com/wippyai/wasm-host/engine"
	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/host"
	"github.com/wippyai/wasm-host/linker"
)

// InitializeExport is the reactor initialization routine run after the
// start section.
const InitializeExport = "_initialize"

// Option configures a Runtime.
type Option func(*options)

type options struct {
	logger *zap.Logger
	engine engine.Config
}

// WithMemoryLimitPages caps the linear memory of every instance, in 64 KiB
// pages.
func WithMemoryLimitPages(pages uint32) Option {
	return func(o *options) { o.engine.MemoryLimitPages = pages }
}

// WithCompilationCacheDir persists compiled code in dir.
func WithCompilationCacheDir(dir string) Option {
	return func(o *options) { o.engine.CompilationCacheDir = dir }
}

// WithInterpreter runs guests in wazero's interpreter.
func WithInterpreter() Option {
	return func(o *options) { o.engine.Interpreter = true }
}

// WithLogger sets the logger of the runtime and its linker.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Runtime owns an engine and a linker.
type Runtime struct {
	engine  *engine.Engine
	linker  *linker.Linker
	logger  *zap.Logger
	wasiErr error
	wasi    sync.Once
}

// New creates a runtime with an empty linker.
func New(ctx context.Context, opts ...Option) (*Runtime, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = Logger()
	}

	eng, err := engine.New(ctx, &o.engine)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLoad, errors.KindInvalidInput, err, "create engine")
	}
	return &Runtime{
		engine: eng,
		linker: linker.New(linker.WithLogger(o.logger)),
		logger: o.logger,
	}, nil
}

// Engine returns the runtime's engine.
func (r *Runtime) Engine() *engine.Engine { return r.engine }

// Linker returns the runtime's linker. Bindings registered on it are used
// by Link.
func (r *Runtime) Linker() *linker.Linker { return r.linker }

// LoadComponent decodes and validates a component.
func (r *Runtime) LoadComponent(ctx context.Context, bin []byte, opts ...component.Option) (*component.Component, error) {
	return component.Load(ctx, r.engine, bin, opts...)
}

// Link resolves c against the runtime's linker.
func (r *Runtime) Link(c *component.Component) (*linker.Linked, error) {
	return r.linker.Link(c)
}

// Instantiate creates an instance of linked bound to st. A nil st gets a
// state with no user value and no capabilities. The state stays bound to
// the instance until Close.
//
// The core start section runs first, then _initialize if exported; a trap
// in either fails with errors.ErrStartTrap.
func (r *Runtime) Instantiate(ctx context.Context, linked *linker.Linked, st *host.State) (*Instance, error) {
	if linked == nil {
		return nil, errors.InvalidInput(errors.PhaseInstantiate, "linked component cannot be nil")
	}
	if st == nil {
		st = host.New(nil, nil)
	}
	if err := st.Acquire(); err != nil {
		return nil, err
	}

	comp := linked.Component()
	ctx = host.WithState(ctx, st)
	mods, err := linked.Instantiate(ctx, r.engine, wazero.NewModuleConfig())
	if err != nil {
		st.Release()
		var ie *linker.InstantiationError
		if stderrors.As(err, &ie) {
			return nil, errors.Wrap(errors.PhaseInstantiate, errors.KindInvalidInput, err, "prepare host modules")
		}
		if comp.HasStart() && startFailed(err) {
			r.logger.Debug("start section trapped", zap.String("component", comp.Name()), zap.Error(err))
			return nil, errors.StartTrap("start", err)
		}
		return nil, errors.Wrap(errors.PhaseInstantiate, errors.KindMalformed, err, "instantiate guest")
	}

	if comp.HasInitialize() {
		if _, err := mods.Guest.ExportedFunction(InitializeExport).Call(ctx); err != nil {
			_ = mods.Close(ctx)
			st.Release()
			r.logger.Debug("initialize trapped", zap.String("component", comp.Name()), zap.Error(err))
			return nil, errors.StartTrap(InitializeExport, err)
		}
	}

	r.logger.Debug("instance ready", zap.String("component", comp.Name()))
	return &Instance{
		component: comp,
		modules:   mods,
		host:      st,
		alloc:     engine.NewGuestAllocator(mods.Guest),
		logger:    r.logger,
	}, nil
}

// startFailed reports whether a guest instantiation error came from the
// start section rather than from linking or memory setup.
func startFailed(err error) bool {
	var exit *sys.ExitError
	return stderrors.As(err, &exit) || strings.HasPrefix(err.Error(), "start ")
}

// Close releases the engine and everything compiled or instantiated in it.
func (r *Runtime) Close(ctx context.Context) error {
	return r.engine.Close(ctx)
}
