package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
)

// Engine owns the wazero runtime every component, host module and instance
// of a host shares.
type Engine struct {
	runtime wazero.Runtime
	cache   wazero.CompilationCache
}

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32

	// CompilationCacheDir persists compiled code across processes. Empty
	// keeps the cache in memory.
	CompilationCacheDir string

	// Interpreter selects the wazero interpreter instead of the compiler.
	Interpreter bool
}

// New creates an engine. A nil config uses defaults.
func New(ctx context.Context, cfg *Config) (*Engine, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	var (
		cache wazero.CompilationCache
		err   error
	)
	if cfg.CompilationCacheDir != "" {
		cache, err = wazero.NewCompilationCacheWithDir(cfg.CompilationCacheDir)
		if err != nil {
			return nil, fmt.Errorf("compilation cache: %w", err)
		}
	} else {
		cache = wazero.NewCompilationCache()
	}

	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.Interpreter {
		runtimeCfg = wazero.NewRuntimeConfigInterpreter()
	}
	runtimeCfg = runtimeCfg.
		WithCompilationCache(cache).
		WithCloseOnContextDone(true)
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	Logger().Debug("engine created",
		zap.Uint32("memory_limit_pages", cfg.MemoryLimitPages),
		zap.String("cache_dir", cfg.CompilationCacheDir),
		zap.Bool("interpreter", cfg.Interpreter))

	return &Engine{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		cache:   cache,
	}, nil
}

// Runtime returns the underlying wazero runtime.
func (e *Engine) Runtime() wazero.Runtime {
	return e.runtime
}

// Compile compiles a core module.
func (e *Engine) Compile(ctx context.Context, bin []byte) (wazero.CompiledModule, error) {
	return e.runtime.CompileModule(ctx, bin)
}

// Close releases the runtime and every module compiled or instantiated in it.
func (e *Engine) Close(ctx context.Context) error {
	err := e.runtime.Close(ctx)
	if cerr := e.cache.Close(ctx); err == nil {
		err = cerr
	}
	return err
}
