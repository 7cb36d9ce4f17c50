package bench

import (
	"context"
	"testing"

	"github.com/spf13/afero"

	"rmdb/pkg/engine"
	"rmdb/pkg/lock"
	"rmdb/pkg/storage/cache"
	"rmdb/pkg/storage/disk"
	"rmdb/pkg/txn"
	"rmdb/pkg/types"
)

func TestRun_IndexCoherenceUnderContention(t *testing.T) {
	fs := afero.NewMemMapFs()
	dm := disk.NewManager(fs)
	cm := cache.NewManager(dm, 64)
	lm := lock.NewManager()
	reg := txn.NewRegistry(lm)

	columns := types.KeyLayout{{Kind: types.IntKind}, {Kind: types.StringKind, Width: 8}}
	schema, err := engine.NewSchema(columns, []string{"id", "tag"})
	if err != nil {
		t.Fatalf("NewSchema: %v", err)
	}
	table, err := engine.CreateTable("stress", schema, "/data", dm, cm, lm)
	if err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	if err := table.CreateIndex(nil, "by_id", []string{"id"}); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}

	cfg := Config{
		Workers:      4,
		OpsPerWorker: 25,
		IndexName:    "by_id",
		IndexColumn:  0,
		MaxRetries:   10,
		NewRow: func(ordinal int32) []types.Field {
			return []types.Field{types.NewIntField(ordinal), types.NewStringField("tag", 8)}
		},
		MutateRow: func(existing []types.Field) []types.Field {
			return []types.Field{existing[0], types.NewStringField("updated", 8)}
		},
	}

	report, err := Run(context.Background(), table, reg, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Inserts == 0 {
		t.Fatal("expected at least one successful insert across all workers")
	}
}
