package linker

import (
	"context"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-host/component"
	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/host"
)

// HostFunc implements an import. It receives the lifted arguments and the
// state of the calling instance and returns the results to lower. A
// returned error traps the guest; a *sys.ExitError exits it.
type HostFunc func(ctx context.Context, st *host.State, params []any) ([]any, error)

// Binding is one host implementation of an import.
type Binding struct {
	Type *component.FuncType
	Func HostFunc
	// Interface is the versioned interface name, or empty for a
	// world-level function.
	Interface string
	Name      string
}

// QualifiedName is name for world-level functions and interface#name
// otherwise.
func (b *Binding) QualifiedName() string {
	if b.Interface == "" {
		return b.Name
	}
	return b.Interface + "#" + b.Name
}

// Host is a group of bindings for one interface.
type Host interface {
	// Namespace returns the versioned interface name, e.g.
	// "wasi:cli/stdout@0.2.3".
	Namespace() string
	Bindings() []Binding
}

// Option configures a Linker.
type Option func(*Linker)

// WithLogger sets the logger for link diagnostics.
func WithLogger(l *zap.Logger) Option {
	return func(lk *Linker) { lk.logger = l }
}

// Linker collects host bindings and resolves components against them.
// Safe for concurrent use.
type Linker struct {
	logger   *zap.Logger
	bindings []*Binding
	mu       sync.RWMutex
}

// New creates an empty linker.
func New(opts ...Option) *Linker {
	l := &Linker{}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = Logger()
	}
	return l
}

// Register adds a binding. Registering the same name twice is allowed and
// reported by Link for components that import it.
func (l *Linker) Register(iface, name string, sig *component.FuncType, fn HostFunc) error {
	switch {
	case name == "":
		return errors.InvalidInput(errors.PhaseHost, "binding name cannot be empty")
	case sig == nil:
		return errors.New(errors.PhaseHost, errors.KindInvalidInput).
			Name(qualify(iface, name)).
			Detail("binding signature cannot be nil").
			Build()
	case fn == nil:
		return errors.New(errors.PhaseHost, errors.KindInvalidInput).
			Name(qualify(iface, name)).
			Detail("binding implementation cannot be nil").
			Build()
	}

	l.mu.Lock()
	l.bindings = append(l.bindings, &Binding{Interface: iface, Name: name, Type: sig, Func: fn})
	l.mu.Unlock()

	l.logger.Debug("binding registered", zap.String("import", qualify(iface, name)), zap.Stringer("type", sig))
	return nil
}

// Define registers every binding of h. Bindings without an interface are
// placed in h's namespace.
func (l *Linker) Define(h Host) error {
	ns := h.Namespace()
	for _, b := range h.Bindings() {
		iface := b.Interface
		if iface == "" {
			iface = ns
		}
		if err := l.Register(iface, b.Name, b.Type, b.Func); err != nil {
			return err
		}
	}
	return nil
}

// Bindings returns a snapshot of the registered bindings in registration
// order.
func (l *Linker) Bindings() []Binding {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Binding, len(l.bindings))
	for i, b := range l.bindings {
		out[i] = *b
	}
	return out
}

// Link resolves every import of c to exactly one binding with an equal
// signature. It has no side effects; all failures are returned together
// as *errors.LinkErrors in declaration order.
func (l *Linker) Link(c *component.Component) (*Linked, error) {
	l.mu.RLock()
	bindings := slices.Clone(l.bindings)
	l.mu.RUnlock()

	imports := c.Imports()
	resolved := make([]*Binding, len(imports))
	var failures []*errors.Error

	for i, imp := range imports {
		name := imp.QualifiedName()
		candidates := resolve(bindings, imp)

		switch {
		case len(candidates) == 0:
			failures = append(failures, errors.UnsatisfiedImport(name))
			continue
		case len(candidates) > 1:
			failures = append(failures, errors.DuplicateBinding(name, len(candidates)))
			continue
		}

		b := candidates[0]
		if !b.Type.Equal(imp.Type) {
			failures = append(failures, errors.SignatureMismatch(name, imp.Type.String(), b.Type.String()))
			continue
		}
		if b.Interface != imp.Interface {
			l.logger.Debug("import resolved by version",
				zap.String("import", name),
				zap.String("binding", b.QualifiedName()))
		}
		resolved[i] = b
	}

	if len(failures) > 0 {
		l.logger.Debug("link failed",
			zap.String("component", c.Name()),
			zap.Int("errors", len(failures)),
			zap.Error(failures[0]))
		return nil, &errors.LinkErrors{Errors: failures}
	}

	l.logger.Debug("component linked", zap.String("component", c.Name()), zap.Int("imports", len(imports)))
	return newLinked(c, resolved, l.logger), nil
}

// resolve returns the bindings that serve imp: exact interface matches if
// any, otherwise those of the highest compatible version.
func resolve(bindings []*Binding, imp component.Import) []*Binding {
	var exact []*Binding
	for _, b := range bindings {
		if b.Interface == imp.Interface && b.Name == imp.Name {
			exact = append(exact, b)
		}
	}
	if len(exact) > 0 || imp.Interface == "" {
		return exact
	}

	base, want, ok := splitVersion(imp.Interface)
	if !ok {
		return nil
	}

	var (
		best       []*Binding
		bestVer    Version
		haveWinner bool
	)
	for _, b := range bindings {
		if b.Name != imp.Name {
			continue
		}
		bBase, v, ok := splitVersion(b.Interface)
		if !ok || bBase != base || !v.Compatible(want) {
			continue
		}
		switch {
		case !haveWinner || bestVer.Less(v):
			best = []*Binding{b}
			bestVer = v
			haveWinner = true
		case v == bestVer:
			best = append(best, b)
		}
	}
	return best
}

func qualify(iface, name string) string {
	if iface == "" {
		return name
	}
	return iface + "#" + name
}
