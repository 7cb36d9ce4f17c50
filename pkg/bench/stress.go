// Package bench implements the concurrent stress harness (C7 supplemental):
// N goroutines hammering one engine.Table with random inserts, updates,
// deletes, and scans, retrying on the lock manager's no-wait
// DeadlockPrevention rejections, then asserting index/heap coherence
// still holds afterward, per §4.6 and §8 scenario 7. Grounded on the
// teacher's own errgroup.Group fan-out in
// pkg/planner/internal/ddl/drop.go.
package bench

import (
	"context"
	"errors"
	"math/rand"
	"sync"

	"golang.org/x/sync/errgroup"

	"rmdb/pkg/engine"
	"rmdb/pkg/primitives"
	"rmdb/pkg/rmerr"
	"rmdb/pkg/txn"
	"rmdb/pkg/types"
)

// RowFactory produces the field values for a fresh row keyed by an ordinal,
// supplied by the caller since the harness has no notion of a table's
// schema beyond what engine.Table already enforces.
type RowFactory func(ordinal int32) []types.Field

// Config parameterizes one stress run.
type Config struct {
	Workers      int
	OpsPerWorker int
	IndexName    string // empty skips the post-run index/heap coherence check
	IndexColumn  int    // column index IndexName indexes, when IndexName is set
	MaxRetries   int    // per-op retries on DeadlockPrevention/LockOnShrinking
	NewRow       RowFactory
	MutateRow    func(existing []types.Field) []types.Field
}

// Report summarizes one stress run's outcome.
type Report struct {
	Inserts   int
	Updates   int
	Deletes   int
	Scans     int
	Conflicts int // DeadlockPrevention/LockOnShrinking rejections absorbed by retry
}

// liveSet tracks the rows a Run believes are currently present, so its
// workers can pick a real target for Update/Delete instead of guessing.
type liveSet struct {
	mu   sync.Mutex
	rows map[primitives.RID][]types.Field
}

func (s *liveSet) put(rid primitives.RID, fields []types.Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[rid] = fields
}

func (s *liveSet) remove(rid primitives.RID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, rid)
}

func (s *liveSet) pickOne(rng *rand.Rand) (primitives.RID, []types.Field, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.rows) == 0 {
		return primitives.RID{}, nil, false
	}
	target := rng.Intn(len(s.rows))
	i := 0
	for rid, fields := range s.rows {
		if i == target {
			return rid, fields, true
		}
		i++
	}
	return primitives.RID{}, nil, false
}

// Run drives Config.Workers goroutines, each performing OpsPerWorker random
// operations against table, then verifies index/heap coherence once every
// worker has finished.
func Run(ctx context.Context, table *engine.Table, reg *txn.Registry, cfg Config) (Report, error) {
	var (
		mu     sync.Mutex
		report Report
	)
	live := &liveSet{rows: make(map[primitives.RID][]types.Field)}

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Workers; w++ {
		worker := w
		g.Go(func() error {
			return runWorker(ctx, worker, table, reg, cfg, live, &mu, &report)
		})
	}

	if err := g.Wait(); err != nil {
		return report, err
	}
	if err := checkCoherence(table, cfg); err != nil {
		return report, err
	}
	return report, nil
}

func runWorker(ctx context.Context, worker int, table *engine.Table, reg *txn.Registry, cfg Config, live *liveSet, mu *sync.Mutex, report *Report) error {
	rng := rand.New(rand.NewSource(int64(worker) + 1))
	for i := 0; i < cfg.OpsPerWorker; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		switch rng.Intn(4) {
		case 0:
			fields := cfg.NewRow(int32(worker*cfg.OpsPerWorker + i))
			result, err := retryOp(cfg.MaxRetries, mu, report, func() (any, error) {
				tx := reg.Begin()
				rid, err := table.Insert(tx, fields)
				if err != nil {
					_ = reg.Abort(tx)
					return nil, err
				}
				return rid, reg.Commit(tx)
			})
			if err != nil {
				continue
			}
			live.put(result.(primitives.RID), fields)
			mu.Lock()
			report.Inserts++
			mu.Unlock()

		case 1:
			rid, fields, ok := live.pickOne(rng)
			if !ok {
				continue
			}
			newFields := cfg.MutateRow(fields)
			_, err := retryOp(cfg.MaxRetries, mu, report, func() (any, error) {
				tx := reg.Begin()
				if err := table.Update(tx, rid, newFields); err != nil {
					_ = reg.Abort(tx)
					return nil, err
				}
				return nil, reg.Commit(tx)
			})
			if err != nil {
				continue
			}
			live.put(rid, newFields)
			mu.Lock()
			report.Updates++
			mu.Unlock()

		case 2:
			rid, _, ok := live.pickOne(rng)
			if !ok {
				continue
			}
			_, err := retryOp(cfg.MaxRetries, mu, report, func() (any, error) {
				tx := reg.Begin()
				if err := table.Delete(tx, rid); err != nil {
					_ = reg.Abort(tx)
					return nil, err
				}
				return nil, reg.Commit(tx)
			})
			if err != nil {
				continue
			}
			live.remove(rid)
			mu.Lock()
			report.Deletes++
			mu.Unlock()

		case 3:
			if _, err := table.Scan(nil); err != nil {
				return err
			}
			mu.Lock()
			report.Scans++
			mu.Unlock()
		}
	}
	return nil
}

// retryOp absorbs DeadlockPrevention/LockOnShrinking rejections from the
// no-wait lock manager, per §8's "no-wait retries on DeadlockPrevention".
func retryOp(maxRetries int, mu *sync.Mutex, report *Report, op func() (any, error)) (any, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		v, err := op()
		if err == nil {
			return v, nil
		}
		if errors.Is(err, rmerr.New(rmerr.DeadlockPrevention, "")) || errors.Is(err, rmerr.New(rmerr.LockOnShrinking, "")) {
			mu.Lock()
			report.Conflicts++
			mu.Unlock()
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, lastErr
}

// checkCoherence scans the table's live rows and, if configured with an
// index, verifies every row's indexed column resolves through Lookup back
// to its own RID.
func checkCoherence(table *engine.Table, cfg Config) error {
	rows, err := table.Scan(nil)
	if err != nil {
		return err
	}
	if cfg.IndexName == "" {
		return nil
	}
	for _, row := range rows {
		rids, err := table.Lookup(cfg.IndexName, []types.Field{row.Fields[cfg.IndexColumn]})
		if err != nil {
			return err
		}
		found := false
		for _, r := range rids {
			if r == row.RID {
				found = true
			}
		}
		if !found {
			return rmerr.Newf(rmerr.InternalError, "row %v missing from index %q", row.RID, cfg.IndexName)
		}
	}
	return nil
}
