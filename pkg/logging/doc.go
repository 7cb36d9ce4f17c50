// Package logging provides a process-wide structured logger for rmdb,
// wrapping go.uber.org/zap. Every subsystem obtains a logger through this
// package rather than constructing its own zap.Logger, so log level and
// output destination are controlled from a single place.
//
// # Initialisation
//
// Call Init once at program startup, before any goroutine that might call
// L is spawned:
//
//	if err := logging.Init(logging.LevelDebug, "/var/log/rmdb/rmdb.log"); err != nil {
//	    log.Fatal(err)
//	}
//
// If L is called before Init, a default INFO-level stderr logger is
// created lazily via sync.Once, so packages that log during their own
// init are safe.
//
// # Context helpers
//
// Several helpers return child loggers pre-populated with structured
// fields:
//
//	log := logging.WithTxn(txnID)
//	log := logging.WithTable(name)
//	log := logging.WithPage(fd, pageNo)
//	log := logging.WithLock(txnID, dataID)
//	log := logging.WithComponent("btree")
package logging
