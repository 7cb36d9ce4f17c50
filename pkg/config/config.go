// Package config loads the flat process configuration used by cmd/rmdb,
// grounded on the teacher's own root main.go, which parses this exact shape
// of flags directly into a Configuration struct rather than reaching for an
// external config library — a single flat struct with five settings does
// not justify pulling in something like viper when the teacher itself
// already solved this with flag, per §4.0.
package config

import (
	"flag"

	"rmdb/pkg/logging"
	"rmdb/pkg/rmerr"
)

// Config is the process-wide configuration for the storage engine core.
type Config struct {
	DataDir       string
	DatabaseName  string
	PageCacheSize int
	LogLevel      logging.Level
	LogPath       string
}

// Default returns the configuration the teacher's own flags default to.
func Default() Config {
	return Config{
		DataDir:       "./data",
		DatabaseName:  "rmdb",
		PageCacheSize: 1024,
		LogLevel:      logging.LevelInfo,
		LogPath:       "",
	}
}

// ParseFlags parses args (typically os.Args[1:]) into a Config, starting
// from Default() and overriding whatever flags are present.
func ParseFlags(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Default()
	var levelName string

	fs.StringVar(&cfg.DataDir, "data", cfg.DataDir, "data directory path")
	fs.StringVar(&cfg.DatabaseName, "db", cfg.DatabaseName, "database name")
	fs.IntVar(&cfg.PageCacheSize, "cache-pages", cfg.PageCacheSize, "page cache capacity, in pages")
	fs.StringVar(&levelName, "log-level", "info", "log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogPath, "log-path", cfg.LogPath, "additional log file path (empty disables)")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	level, err := parseLevel(levelName)
	if err != nil {
		return Config{}, err
	}
	cfg.LogLevel = level

	if cfg.PageCacheSize <= 0 {
		return Config{}, rmerr.Newf(rmerr.InternalError, "cache-pages must be positive, got %d", cfg.PageCacheSize)
	}
	return cfg, nil
}

func parseLevel(name string) (logging.Level, error) {
	switch name {
	case "debug":
		return logging.LevelDebug, nil
	case "info":
		return logging.LevelInfo, nil
	case "warn":
		return logging.LevelWarn, nil
	case "error":
		return logging.LevelError, nil
	default:
		return 0, rmerr.Newf(rmerr.InternalError, "unknown log level %q", name)
	}
}
