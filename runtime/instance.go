package runtime

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero/sys"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-host/component"
	"github.com/wippyai/wasm-host/engine"
	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/host"
	"github.com/wippyai/wasm-host/linker"
	"github.com/wippyai/wasm-host/transcoder"
)

// State is the lifecycle state of an instance.
type State int

const (
	// StateReady accepts calls.
	StateReady State = iota
	// StateTrapped follows a trap. Terminal.
	StateTrapped
	// StateCompleted follows a guest exit. Terminal.
	StateCompleted
	// StateClosed follows Close.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateTrapped:
		return "trapped"
	case StateCompleted:
		return "completed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Terminal reports whether no more calls can run.
func (s State) Terminal() bool { return s != StateReady }

// PostReturnPrefix names the export that frees the results of another.
const PostReturnPrefix = "cabi_post_"

// Instance is a running component.
type Instance struct {
	component *component.Component
	modules   *linker.Modules
	host      *host.State
	alloc     *engine.GuestAllocator
	logger    *zap.Logger
	// state is read without mu so watchers need not wait for a call.
	state atomic.Int32
	mu    sync.Mutex
}

// Component returns the instantiated component.
func (i *Instance) Component() *component.Component { return i.component }

// HostState returns the state bound to the instance.
func (i *Instance) HostState() *host.State { return i.host }

// State returns the lifecycle state.
func (i *Instance) State() State {
	return State(i.state.Load())
}

func (i *Instance) setState(s State) { i.state.Store(int32(s)) }

// Invoke calls an export with Go values and returns its lifted results.
//
// Arguments are checked against the export's type before any guest code
// runs; a mismatch leaves the instance Ready. A trap, including a failing
// host function or a cancelled ctx, leaves it Trapped. A guest exit leaves
// it Completed: code 0 returns no error, other codes errors.ErrExit.
func (i *Instance) Invoke(ctx context.Context, name string, args ...any) ([]any, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if state := i.State(); state.Terminal() {
		return nil, errors.Terminated(name, state.String())
	}

	exp, ok := i.component.Export(name)
	if !ok {
		return nil, errors.UnknownExport(name)
	}
	fn := i.modules.Guest.ExportedFunction(name)
	if fn == nil {
		return nil, errors.UnknownExport(name)
	}

	params := exp.Type.ParamTypes()
	if err := transcoder.CheckParams(params, args); err != nil {
		return nil, errors.ArityOrTypeMismatch(name, "arguments do not match "+exp.Type.String(), err)
	}

	ctx = host.WithState(ctx, i.host)
	tc := &transcoder.Context{Memory: i.modules.Guest.Memory()}
	if i.alloc != nil {
		tc.Alloc = i.alloc
	}

	flat, err := tc.LowerParams(ctx, params, args)
	if err != nil {
		return nil, i.fail(name, err)
	}

	i.logger.Debug("invoke", zap.String("export", name), zap.Int("args", len(args)))
	raw, err := fn.Call(ctx, flat...)
	if err != nil {
		return nil, i.fail(name, err)
	}

	results, err := tc.LiftResults(exp.Type.Results, raw)
	if err != nil {
		return nil, i.fail(name, err)
	}

	if i.component.HasPostReturn(name) {
		post := i.modules.Guest.ExportedFunction(PostReturnPrefix + name)
		if _, err := post.Call(ctx, raw...); err != nil {
			return nil, i.fail(name, err)
		}
	}
	return results, nil
}

// fail moves the instance to its terminal state for err. A clean exit
// yields a nil error.
func (i *Instance) fail(name string, err error) error {
	var exit *sys.ExitError
	if stderrors.As(err, &exit) {
		switch code := exit.ExitCode(); code {
		case sys.ExitCodeContextCanceled, sys.ExitCodeDeadlineExceeded:
			// Interrupted by ctx, not by the guest.
		case 0:
			i.setState(StateCompleted)
			i.logger.Debug("guest exited", zap.String("export", name))
			return nil
		default:
			i.setState(StateCompleted)
			i.logger.Debug("guest exited", zap.String("export", name), zap.Uint32("code", code))
			return errors.Exit(name, code)
		}
	}

	i.setState(StateTrapped)
	i.logger.Debug("guest trapped", zap.String("export", name), zap.Error(err))
	return errors.Trap(name, err)
}

// Close releases the guest and its host modules and unbinds the host
// state. The state itself, with any open handles, stays with the caller.
func (i *Instance) Close(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.State() == StateClosed {
		return nil
	}
	i.setState(StateClosed)
	err := i.modules.Close(ctx)
	i.host.Release()
	return err
}
