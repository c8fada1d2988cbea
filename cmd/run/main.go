// Command run loads a component, links it against the WASI hosts and a
// name() binding, instantiates it and calls one export.
//
//	run hello.wasm --name me
//	run --demo --name me
//	run calc.wasm --invoke add --param 2 --param 3
//	run hello.wasm --list
//	run hello.wasm -i
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-host/engine"
	"github.com/wippyai/wasm-host/errors"
	"github.com/wippyai/wasm-host/linker"
	"github.com/wippyai/wasm-host/runtime"
	"github.com/wippyai/wasm-host/wasi/preview2"
)

// defaultCapacity bounds captured stdout and stderr.
const defaultCapacity = 4096

type options struct {
	invoke       string
	name         string
	env          []string
	envAllow     []string
	dirs         []string
	args         []string
	params       []string
	capacity     int
	inheritStdio bool
	list         bool
	interactive  bool
	demo         bool
	verbose      bool
	nameSet      bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, describe(err))
		os.Exit(exitCode(err))
	}
}

func newRootCommand() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:           "run [file.wasm]",
		Short:         "Run a WebAssembly component",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.verbose {
				log, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				defer func() { _ = log.Sync() }()
				setLoggers(log)
			}

			o.nameSet = cmd.Flags().Changed("name")
			path, bin, err := readComponent(o, args)
			if err != nil {
				return err
			}
			if o.interactive {
				return runInteractive(cmd.Context(), path, bin, o)
			}
			return execute(cmd.Context(), cmd, o, bin)
		},
	}

	addCallFlags(cmd.Flags(), o)
	addCapabilityFlags(cmd.Flags(), o)
	cmd.Flags().BoolVar(&o.list, "list", false, "list imports and exports, then exit")
	cmd.Flags().BoolVarP(&o.interactive, "interactive", "i", false, "pick exports and arguments in a terminal UI")
	cmd.Flags().BoolVar(&o.demo, "demo", false, "run the built-in hello guest")
	cmd.Flags().BoolVarP(&o.verbose, "verbose", "v", false, "log lifecycle events to stderr")
	return cmd
}

func addCallFlags(f *pflag.FlagSet, o *options) {
	f.StringVar(&o.invoke, "invoke", "greet", "export to call")
	f.StringVar(&o.name, "name", "", "value returned by the name() import; unset leaves it unbound")
	f.StringArrayVar(&o.params, "param", nil, "export argument, parsed by parameter type (repeatable)")
}

// addCapabilityFlags registers what the guest may see of the host.
func addCapabilityFlags(f *pflag.FlagSet, o *options) {
	f.StringArrayVar(&o.env, "env", nil, "environment variable KEY=VALUE (repeatable)")
	f.StringSliceVar(&o.envAllow, "env-allow", nil, "host environment variables to pass through")
	f.StringArrayVar(&o.dirs, "dir", nil, "read-only directory GUEST=HOST (repeatable)")
	f.StringArrayVar(&o.args, "arg", nil, "guest command-line argument (repeatable)")
	f.IntVar(&o.capacity, "capacity", defaultCapacity, "bytes of stdout and stderr kept when not inheriting")
	f.BoolVar(&o.inheritStdio, "inherit-stdio", false, "connect the guest to this process's stdio")
}

func setLoggers(l *zap.Logger) {
	runtime.SetLogger(l)
	engine.SetLogger(l)
	linker.SetLogger(l)
	preview2.SetLogger(l)
}

// describe prefixes err with the phase that failed.
func describe(err error) string {
	if phase, ok := errors.PhaseOf(err); ok {
		return fmt.Sprintf("%s failed: %v", phase, err)
	}
	return "error: " + err.Error()
}

// exitCode is the guest's exit code when it called exit, 1 otherwise.
func exitCode(err error) int {
	var e *errors.Error
	if stderrors.As(err, &e) && e.Kind == errors.KindExit {
		if code, ok := e.Value.(uint32); ok && code != 0 && code <= 255 {
			return int(code)
		}
	}
	return 1
}
