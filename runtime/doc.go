// Package runtime loads, links and runs WebAssembly components.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.New(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	// Standard interfaces plus one world-level import.
//	if err := rt.RegisterWASI(); err != nil {
//	    log.Fatal(err)
//	}
//	rt.Linker().Register("", "name", component.MustParseFuncType("func() -> string"),
//	    func(ctx context.Context, st *host.State, _ []any) ([]any, error) {
//	        name, _ := host.User[string](st)
//	        return []any{name}, nil
//	    })
//
//	comp, err := rt.LoadComponent(ctx, wasmBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	linked, err := rt.Link(comp)
//	if err != nil {
//	    log.Fatal(err) // every unsatisfied or ambiguous import is listed
//	}
//
//	out := preview2.NewSink(4096)
//	caps, err := preview2.NewContext(resource.NewTable(), preview2.NewConfig().WithStdout(out))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	inst, err := rt.Instantiate(ctx, linked, host.New("me", caps))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	if _, err := inst.Invoke(ctx, "greet"); err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Print(out.String()) // Hello, me!
//
// # Lifecycle
//
// A component is loaded once and linked once; the result may be
// instantiated any number of times. Each instance owns one host.State for
// its whole life. An instance is Ready after instantiation. A trap moves it
// to Trapped and a guest exit to Completed; both are terminal, and every
// later Invoke fails with errors.ErrTerminated without running guest code.
//
// # Errors
//
// Every failure is an *errors.Error. errors.PhaseOf tells which step
// failed: load, link, instantiate or invoke.
//
// # Thread Safety
//
// Runtime, component.Component and linker.Linked are safe for concurrent
// use. An Instance serializes its calls.
package runtime
