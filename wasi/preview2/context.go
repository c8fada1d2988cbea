package preview2

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	mrand "math/rand/v2"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-host/resource"
)

// Context is the WASI state of one instantiation: its capability table,
// its stdio targets and everything the Config granted.
type Context struct {
	table    *resource.Table
	stdout   output
	stderr   output
	stdin    *InputStream
	clock    Clock
	random   io.Reader
	insecure io.Reader
	env      [][2]string
	args     []string
	preopens []preopen
	cwd      string

	stdinInherit bool
	closeOnce    sync.Once
}

type preopen struct {
	root      *os.Root
	guestPath string
}

// NewContext applies cfg to table. Preopened directories are opened now;
// a missing directory is an error.
func NewContext(table *resource.Table, cfg *Config) (*Context, error) {
	if table == nil {
		table = resource.NewTable()
	}
	if cfg == nil {
		cfg = NewConfig()
	}

	c := &Context{
		table:        table,
		stdout:       cfg.stdout,
		stderr:       cfg.stderr,
		clock:        cfg.clock,
		random:       cfg.random,
		insecure:     cfg.insecure,
		args:         cfg.args,
		cwd:          cfg.cwd,
		stdinInherit: cfg.stdinInherit,
	}
	if c.stdout.w == nil {
		c.stdout.w = io.Discard
	}
	if c.stderr.w == nil {
		c.stderr.w = io.Discard
	}
	if cfg.stdin != nil {
		c.stdin = NewReaderStream(cfg.stdin)
	} else {
		c.stdin = NewInputStream(nil)
	}
	if c.clock == nil {
		c.clock = RealClock()
	}
	if c.random == nil {
		c.random = rand.Reader
	}
	if c.insecure == nil {
		c.insecure = seededReader(mrand.Uint64())
	}

	c.env = environment(cfg.env, cfg.envAllow)

	for _, p := range cfg.preopens {
		root, err := os.OpenRoot(p.HostDir)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("preopen %q: %w", p.GuestPath, err)
		}
		c.preopens = append(c.preopens, preopen{root: root, guestPath: p.GuestPath})
	}

	Logger().Debug("wasi context created",
		zap.Int("env", len(c.env)),
		zap.Int("args", len(c.args)),
		zap.Int("preopens", len(c.preopens)),
		zap.Bool("stdout_inherit", c.stdout.inherit),
		zap.Bool("stderr_inherit", c.stderr.inherit))
	return c, nil
}

// environment merges explicit variables with allow-listed host variables.
// Explicit values win; order is explicit first, then the allow-list.
func environment(explicit [][2]string, allow []string) [][2]string {
	var env [][2]string
	seen := make(map[string]bool)
	for _, kv := range explicit {
		if seen[kv[0]] {
			continue
		}
		seen[kv[0]] = true
		env = append(env, kv)
	}
	for _, name := range allow {
		if seen[name] {
			continue
		}
		if v, ok := os.LookupEnv(name); ok {
			seen[name] = true
			env = append(env, [2]string{name, v})
		}
	}
	return env
}

// Table returns the capability table.
func (c *Context) Table() *resource.Table { return c.table }

// NewStdout allocates a fresh output-stream handle on the stdout target.
func (c *Context) NewStdout() (resource.Handle, error) {
	return c.table.Allocate(NewOutputStream(c.stdout.w))
}

// NewStderr allocates a fresh output-stream handle on the stderr target.
func (c *Context) NewStderr() (resource.Handle, error) {
	return c.table.Allocate(NewOutputStream(c.stderr.w))
}

// NewStdin allocates an input-stream handle for stdin. All handles share
// one read position.
func (c *Context) NewStdin() (resource.Handle, error) {
	return c.table.Allocate(&sharedInput{InputStream: c.stdin})
}

// StdoutInherited reports whether stdout goes to the host process.
func (c *Context) StdoutInherited() bool { return c.stdout.inherit }

// StderrInherited reports whether stderr goes to the host process.
func (c *Context) StderrInherited() bool { return c.stderr.inherit }

// StdinInherited reports whether stdin comes from the host process.
func (c *Context) StdinInherited() bool { return c.stdinInherit }

// Env returns the granted environment.
func (c *Context) Env() [][2]string { return c.env }

// Args returns the guest arguments.
func (c *Context) Args() []string { return c.args }

// Cwd returns the initial working directory.
func (c *Context) Cwd() string { return c.cwd }

// Clock returns the clock source.
func (c *Context) Clock() Clock { return c.clock }

// Random returns the cryptographic random source.
func (c *Context) Random() io.Reader { return c.random }

// InsecureRandom returns the non-cryptographic random source.
func (c *Context) InsecureRandom() io.Reader { return c.insecure }

// Preopens allocates a directory descriptor for every preopen, in
// configuration order, and returns the handles with their guest paths.
func (c *Context) Preopens() ([]resource.Handle, []string, error) {
	handles := make([]resource.Handle, 0, len(c.preopens))
	paths := make([]string, 0, len(c.preopens))
	for _, p := range c.preopens {
		h, err := c.table.Allocate(NewDescriptor(p.root, ".", true))
		if err != nil {
			return nil, nil, err
		}
		handles = append(handles, h)
		paths = append(paths, p.guestPath)
	}
	return handles, paths, nil
}

// Close releases the preopened directories. The capability table is owned
// by the host state and closed there.
func (c *Context) Close() error {
	var err error
	c.closeOnce.Do(func() {
		for _, p := range c.preopens {
			if cerr := p.root.Close(); cerr != nil && err == nil {
				err = cerr
			}
		}
	})
	return err
}

// sharedInput gives each stdin handle its own closed flag over a shared
// stream.
type sharedInput struct {
	*InputStream
	closed bool
}

func (s *sharedInput) Drop() { s.closed = true }

func (s *sharedInput) Read(n uint64) ([]byte, error) {
	if s.closed {
		return nil, &StreamError{Closed: true}
	}
	return s.InputStream.Read(n)
}

type chachaReader struct {
	src *mrand.ChaCha8
	mu  sync.Mutex
}

// seededReader returns a deterministic byte stream for seed.
func seededReader(seed uint64) io.Reader {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:], seed)
	return &chachaReader{src: mrand.NewChaCha8(key)}
}

func (r *chachaReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.src.Read(p)
}
