package logging

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the logging verbosity, mirroring zapcore.Level without leaking
// the zap dependency into every caller's import list.
type Level int8

const (
	LevelDebug Level = Level(zapcore.DebugLevel)
	LevelInfo  Level = Level(zapcore.InfoLevel)
	LevelWarn  Level = Level(zapcore.WarnLevel)
	LevelError Level = Level(zapcore.ErrorLevel)
)

var (
	mu       sync.RWMutex
	sugar    *zap.SugaredLogger
	inited   bool
	initOnce sync.Once
)

// Init builds the global logger at the given level. If path is empty,
// logs go to stderr; otherwise they are additionally written to the file
// at path. Calling Init more than once returns an error; call Close first
// to reinitialize (tests do this between cases).
func Init(level Level, path string) error {
	mu.Lock()
	defer mu.Unlock()

	if inited {
		return fmt.Errorf("logging: already initialized; call Close() first")
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.Level(level))
	cfg.Encoding = "console"
	cfg.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	cfg.OutputPaths = []string{"stderr"}
	if path != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, path)
	}

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("logging: build logger: %w", err)
	}

	sugar = logger.Sugar()
	inited = true
	return nil
}

// Close flushes and releases the global logger. Safe to call when not
// initialized.
func Close() error {
	mu.Lock()
	defer mu.Unlock()

	if !inited {
		return nil
	}
	err := sugar.Sync()
	sugar = nil
	inited = false
	initOnce = sync.Once{}
	return err
}

// L returns the process-wide logger, lazily initializing a default
// INFO-level stderr logger on first use if Init was never called.
func L() *zap.SugaredLogger {
	mu.RLock()
	if inited {
		l := sugar
		mu.RUnlock()
		return l
	}
	mu.RUnlock()

	initOnce.Do(func() {
		_ = Init(LevelInfo, "")
	})

	mu.RLock()
	defer mu.RUnlock()
	return sugar
}
