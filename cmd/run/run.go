package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/wippyai/wasm-host/component"
	"github.com/wippyai/wasm-host/host"
	"github.com/wippyai/wasm-host/internal/guest"
	"github.com/wippyai/wasm-host/resource"
	"github.com/wippyai/wasm-host/runtime"
	"github.com/wippyai/wasm-host/transcoder"
	"github.com/wippyai/wasm-host/wasi/preview2"
)

const demoName = "demo:hello"

var nameType = component.MustParseFuncType("func() -> string")

// nameFunc serves name() from the user state.
func nameFunc(_ context.Context, st *host.State, _ []any) ([]any, error) {
	name, _ := host.User[string](st)
	return []any{name}, nil
}

func readComponent(o *options, args []string) (string, []byte, error) {
	switch {
	case o.demo && len(args) > 0:
		return "", nil, fmt.Errorf("--demo takes no component file")
	case o.demo:
		return demoName, guest.Hello(), nil
	case len(args) == 0:
		return "", nil, fmt.Errorf("a component file or --demo is required")
	}
	bin, err := os.ReadFile(args[0])
	if err != nil {
		return "", nil, err
	}
	return args[0], bin, nil
}

// newRuntime creates a runtime with the WASI hosts and, when --name was
// given, the name() binding.
func newRuntime(ctx context.Context, o *options) (*runtime.Runtime, error) {
	rt, err := runtime.New(ctx)
	if err != nil {
		return nil, err
	}
	if err := rt.RegisterWASI(); err != nil {
		rt.Close(ctx)
		return nil, err
	}
	if o.nameSet {
		if err := rt.Linker().Register("", "name", nameType, nameFunc); err != nil {
			rt.Close(ctx)
			return nil, err
		}
	}
	return rt, nil
}

// stdio holds the sinks output is captured in. Both are nil when the
// guest inherits this process's stdio.
type stdio struct {
	stdout, stderr *preview2.Sink
}

// newState builds the host state from the flags.
func newState(o *options) (*host.State, stdio, error) {
	cfg := preview2.NewConfig().WithArgs(o.args...).WithEnvAllow(o.envAllow...)

	var out stdio
	if o.inheritStdio {
		cfg.InheritStdio()
	} else {
		out.stdout = preview2.NewSink(o.capacity)
		out.stderr = preview2.NewSink(o.capacity)
		cfg.WithStdout(out.stdout).WithStderr(out.stderr)
	}

	for _, kv := range o.env {
		k, v, err := splitPair(kv, '=')
		if err != nil {
			return nil, out, fmt.Errorf("--env %w", err)
		}
		cfg.WithEnv(k, v)
	}
	for _, d := range o.dirs {
		guestPath, hostDir, err := splitPair(d, '=')
		if err != nil {
			guestPath, hostDir = d, d
		}
		cfg.WithPreopen(guestPath, hostDir)
	}

	caps, err := preview2.NewContext(resource.NewTable(), cfg)
	if err != nil {
		return nil, out, err
	}
	return host.New(o.name, caps), out, nil
}

func execute(ctx context.Context, cmd *cobra.Command, o *options, bin []byte) error {
	rt, err := newRuntime(ctx, o)
	if err != nil {
		return err
	}
	defer rt.Close(ctx)

	comp, err := rt.LoadComponent(ctx, bin)
	if err != nil {
		return err
	}
	if o.list {
		list(cmd.OutOrStdout(), comp)
		return nil
	}

	exp, ok := comp.Export(o.invoke)
	var params []any
	if ok {
		params, err = convertArgs(o.params, exp.Type.ParamTypes())
		if err != nil {
			return fmt.Errorf("%s: %w", o.invoke, err)
		}
	}

	linked, err := rt.Link(comp)
	if err != nil {
		return err
	}

	st, out, err := newState(o)
	if err != nil {
		return err
	}
	defer st.Close()

	inst, err := rt.Instantiate(ctx, linked, st)
	if err != nil {
		return err
	}
	defer inst.Close(ctx)

	results, err := inst.Invoke(ctx, o.invoke, params...)
	out.flush(cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	for _, r := range results {
		fmt.Fprintln(cmd.OutOrStdout(), formatValue(r))
	}
	return nil
}

func (s stdio) flush(stdout, stderr io.Writer) {
	if s.stdout != nil {
		_, _ = stdout.Write(s.stdout.Bytes())
	}
	if s.stderr != nil {
		_, _ = stderr.Write(s.stderr.Bytes())
	}
}

func list(w io.Writer, comp *component.Component) {
	fmt.Fprintf(w, "component %s\n", comp.Name())
	if imports := comp.Imports(); len(imports) > 0 {
		fmt.Fprintln(w, "imports:")
		for _, imp := range imports {
			fmt.Fprintf(w, "  %s: %s\n", imp.QualifiedName(), imp.Type)
		}
	}
	fmt.Fprintln(w, "exports:")
	for _, exp := range comp.Exports() {
		fmt.Fprintf(w, "  %s: %s\n", exp.Name, exp.Type)
	}
}

// paramTypeNames renders the parameter types of ft for prompts.
func paramTypeNames(ft *component.FuncType) []string {
	names := make([]string, len(ft.Params))
	for i, p := range ft.Params {
		names[i] = transcoder.TypeName(p.Type)
	}
	return names
}
