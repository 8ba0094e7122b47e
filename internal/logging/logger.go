// Package logging holds the process-wide zap logger. Packages log through
// the top-level functions; main builds the configured logger and installs it
// with SetGlobal.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger = zap.Must(zap.NewProduction())
)

// New builds a production logger at the given level. Unknown level strings
// fall back to info rather than failing startup.
func New(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	// Callers go through the package-level wrappers below; skip that frame
	// so caller annotations point at the real call site.
	return cfg.Build(zap.AddCallerSkip(1))
}

// SetGlobal installs the process-wide logger.
func SetGlobal(l *zap.Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

func global() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Debug(msg string, fields ...zap.Field) { global().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { global().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { global().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { global().Error(msg, fields...) }

// Sync flushes buffered entries; called once at shutdown.
func Sync() {
	global().Sync()
}
