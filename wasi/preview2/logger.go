package preview2

import (
	"sync/atomic"

	"go.uber.org/zap"
)

var logger atomic.Pointer[zap.Logger]

// Logger returns the WASI logger. It is a no-op by default.
func Logger() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// SetLogger replaces the WASI logger.
func SetLogger(l *zap.Logger) {
	logger.Store(l)
}
