package preview2

import (
	"io"
	"os"
)

// Version is the WASI 0.2 release the hosts implement. Imports of an older
// 0.2 patch release bind to them too.
const Version = "0.2.8"

// Preopen grants the guest read access to HostDir, visible as GuestPath.
type Preopen struct {
	GuestPath string
	HostDir   string
}

type output struct {
	w       io.Writer
	inherit bool
}

// Config describes the capabilities granted to one instantiation. It is
// consumed by NewContext; use the With methods to build it.
//
// The zero configuration discards stdout and stderr, has empty stdin, no
// environment, no arguments and no filesystem access, uses the real clock
// and a cryptographic random source.
type Config struct {
	stdout   output
	stderr   output
	stdin    io.Reader
	clock    Clock
	random   io.Reader
	insecure io.Reader
	env      [][2]string
	envAllow []string
	args     []string
	preopens []Preopen
	cwd      string

	stdinInherit bool
}

// NewConfig creates a deny-all configuration.
func NewConfig() *Config {
	return &Config{cwd: "/"}
}

// WithStdout captures stdout in w, usually a *Sink.
func (c *Config) WithStdout(w io.Writer) *Config {
	c.stdout = output{w: w}
	return c
}

// WithStderr captures stderr in w, usually a *Sink.
func (c *Config) WithStderr(w io.Writer) *Config {
	c.stderr = output{w: w}
	return c
}

// InheritStdout forwards stdout to the host process.
func (c *Config) InheritStdout() *Config {
	c.stdout = output{w: os.Stdout, inherit: true}
	return c
}

// InheritStderr forwards stderr to the host process.
func (c *Config) InheritStderr() *Config {
	c.stderr = output{w: os.Stderr, inherit: true}
	return c
}

// InheritStdio forwards stdin, stdout and stderr to the host process.
func (c *Config) InheritStdio() *Config {
	c.stdin = os.Stdin
	c.stdinInherit = true
	return c.InheritStdout().InheritStderr()
}

// WithStdin serves data on stdin.
func (c *Config) WithStdin(data []byte) *Config {
	c.stdin = nil
	c.stdinInherit = false
	if data != nil {
		c.stdin = &byteReader{data: data}
	}
	return c
}

// WithEnv adds an explicit environment variable.
func (c *Config) WithEnv(key, value string) *Config {
	c.env = append(c.env, [2]string{key, value})
	return c
}

// WithEnvAllow copies the named variables from the host environment when
// the context is built. Unset names are skipped.
func (c *Config) WithEnvAllow(names ...string) *Config {
	c.envAllow = append(c.envAllow, names...)
	return c
}

// WithArgs sets the guest's arguments.
func (c *Config) WithArgs(args ...string) *Config {
	c.args = args
	return c
}

// WithCwd sets the initial working directory reported to the guest.
func (c *Config) WithCwd(cwd string) *Config {
	c.cwd = cwd
	return c
}

// WithPreopen grants read-only access to hostDir as guestPath.
func (c *Config) WithPreopen(guestPath, hostDir string) *Config {
	c.preopens = append(c.preopens, Preopen{GuestPath: guestPath, HostDir: hostDir})
	return c
}

// WithClock replaces the clock source.
func (c *Config) WithClock(clock Clock) *Config {
	c.clock = clock
	return c
}

// WithRandom replaces both random sources.
func (c *Config) WithRandom(r io.Reader) *Config {
	c.random = r
	c.insecure = r
	return c
}

// WithRandomSeed makes both random sources deterministic.
func (c *Config) WithRandomSeed(seed uint64) *Config {
	return c.WithRandom(seededReader(seed))
}

// byteReader serves a fixed slice; kept separate from bytes.Reader so
// WithStdin(nil) and an empty slice stay distinguishable.
type byteReader struct {
	data []byte
}

func (r *byteReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}
