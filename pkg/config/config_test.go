package config

import (
	"flag"
	"testing"

	"rmdb/pkg/logging"
)

func TestParseFlags_Defaults(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := ParseFlags(fs, nil)
	if err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	if cfg.DataDir != "./data" || cfg.DatabaseName != "rmdb" || cfg.PageCacheSize != 1024 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.LogLevel != logging.LevelInfo {
		t.Fatalf("default log level = %v, want info", cfg.LogLevel)
	}
}

func TestParseFlags_Overrides(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := ParseFlags(fs, []string{"-db", "warehouse", "-cache-pages", "64", "-log-level", "debug"})
	if err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	if cfg.DatabaseName != "warehouse" || cfg.PageCacheSize != 64 || cfg.LogLevel != logging.LevelDebug {
		t.Fatalf("unexpected overrides: %+v", cfg)
	}
}

func TestParseFlags_RejectsBadLevel(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	if _, err := ParseFlags(fs, []string{"-log-level", "verbose"}); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func TestParseFlags_RejectsNonPositiveCache(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	if _, err := ParseFlags(fs, []string{"-cache-pages", "0"}); err == nil {
		t.Fatal("expected error for non-positive cache size")
	}
}
