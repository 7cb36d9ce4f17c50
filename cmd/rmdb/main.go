// cmd/rmdb wires the ambient stack (pkg/config, pkg/logging) to the
// storage engine core and exposes three run modes: a scripted demo that
// inserts and scans rows of a fixed schema, the pkg/bench
// concurrent stress harness, and the pkg/ui read-only inspector. There is
// deliberately no SQL REPL here — parsing and executing SQL statements is
// out of scope for this module, per its stated Non-goals. Grounded on the
// teacher's own root main.go: flag-based Configuration struct, a splash
// screen, and a demo mode that seeds sample tables before handing off to
// the terminal UI.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/afero"

	"rmdb/pkg/bench"
	"rmdb/pkg/config"
	"rmdb/pkg/engine"
	"rmdb/pkg/lock"
	"rmdb/pkg/logging"
	"rmdb/pkg/storage/cache"
	"rmdb/pkg/storage/disk"
	"rmdb/pkg/txn"
	"rmdb/pkg/types"
	"rmdb/pkg/ui"
)

func main() {
	cfg, err := config.ParseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	mode := flag.Arg(0)
	if mode == "" {
		mode = "demo"
	}

	if err := logging.Init(cfg.LogLevel, cfg.LogPath); err != nil {
		log.Fatalf("logging: %v", err)
	}
	defer logging.Close()

	showSplash()

	dataDir := cfg.DataDir + "/" + cfg.DatabaseName
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		log.Fatalf("create data dir: %v", err)
	}

	dm := disk.NewManager(afero.NewOsFs())
	cm := cache.NewManager(dm, cfg.PageCacheSize)
	lockMgr := lock.NewManager()
	registry := txn.NewRegistry(lockMgr)

	table, err := openOrCreateDemoTable(dataDir, dm, cm, lockMgr)
	if err != nil {
		log.Fatalf("open demo table: %v", err)
	}

	switch mode {
	case "demo":
		if err := runDemo(table, registry); err != nil {
			log.Fatalf("demo: %v", err)
		}
	case "bench":
		if err := runBench(table, registry); err != nil {
			log.Fatalf("bench: %v", err)
		}
	case "inspect":
		if err := runInspector(table, lockMgr); err != nil {
			log.Fatalf("inspector: %v", err)
		}
	default:
		log.Fatalf("unknown mode %q; want demo, bench, or inspect", mode)
	}
}

func showSplash() {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("#7C3AED")).Bold(true)
	fmt.Println(style.Render("rmdb — a relational storage engine core"))
}

func demoSchema() (*engine.Schema, error) {
	columns := types.KeyLayout{
		{Kind: types.IntKind},
		{Kind: types.StringKind, Width: 32},
		{Kind: types.FloatKind},
	}
	return engine.NewSchema(columns, []string{"id", "name", "score"})
}

func openOrCreateDemoTable(dataDir string, dm *disk.Manager, cm *cache.Manager, lockMgr *lock.Manager) (*engine.Table, error) {
	schema, err := demoSchema()
	if err != nil {
		return nil, err
	}

	table, err := engine.OpenTable("people", schema, dataDir, dm, cm, lockMgr)
	if err != nil {
		table, err = engine.CreateTable("people", schema, dataDir, dm, cm, lockMgr)
		if err != nil {
			return nil, err
		}
		if err := table.CreateIndex(nil, "by_id", []string{"id"}); err != nil {
			return nil, err
		}
		return table, nil
	}
	if err := table.OpenIndex("by_id", []string{"id"}); err != nil {
		return nil, err
	}
	return table, nil
}

// runDemo inserts three rows in one committed transaction, printing each
// RID, then scans the table and prints its row count; it does not run
// get, update or delete. It follows the way the teacher's runDemoMode narrates a demo
// database being built.
func runDemo(table *engine.Table, registry *txn.Registry) error {
	fmt.Println("seeding demo rows...")
	tx := registry.Begin()
	names := []string{"Ada Lovelace", "Grace Hopper", "Alan Turing"}
	for i, name := range names {
		rid, err := table.Insert(tx, []types.Field{
			types.NewIntField(int32(i + 1)),
			types.NewStringField(name, 32),
			types.NewFloatField(float32(i) * 1.5),
		})
		if err != nil {
			_ = registry.Abort(tx)
			return err
		}
		fmt.Printf("  inserted %q at %s\n", name, rid)
	}
	if err := registry.Commit(tx); err != nil {
		return err
	}

	rows, err := table.Scan(nil)
	if err != nil {
		return err
	}
	fmt.Printf("table now has %d rows\n", len(rows))
	return nil
}

func runBench(table *engine.Table, registry *txn.Registry) error {
	cfg := bench.Config{
		Workers:      8,
		OpsPerWorker: 200,
		IndexName:    "by_id",
		IndexColumn:  0,
		MaxRetries:   20,
		NewRow: func(ordinal int32) []types.Field {
			return []types.Field{
				types.NewIntField(ordinal),
				types.NewStringField(fmt.Sprintf("row-%d", ordinal), 32),
				types.NewFloatField(float32(ordinal)),
			}
		},
		MutateRow: func(existing []types.Field) []types.Field {
			return []types.Field{existing[0], existing[1], types.NewFloatField(float32(time.Now().UnixNano() % 1000))}
		},
	}
	report, err := bench.Run(context.Background(), table, registry, cfg)
	if err != nil {
		return err
	}
	fmt.Printf("bench done: inserts=%d updates=%d deletes=%d scans=%d conflicts=%d\n",
		report.Inserts, report.Updates, report.Deletes, report.Scans, report.Conflicts)
	return nil
}

func runInspector(table *engine.Table, lockMgr *lock.Manager) error {
	model := ui.NewModel(table, lockMgr)
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
