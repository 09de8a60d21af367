// Package database owns the SQLite file backing the run-history store.
//
// It opens the file with WAL journaling so history queries from the
// command adapter can read while a run record is being written, applies
// embedded schema migrations at startup, and pins the pool to a single
// connection to match SQLite's one-writer model.
//
// Typical startup sequence:
//
//	db, err := database.Open(database.Config{
//		Path:        cfg.Database.Path,
//		WALMode:     cfg.Database.WALMode,
//		BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//		return err
//	}
//
// Schema changes are additive: new columns are nullable or carry a
// default, and nothing is dropped or renamed, so an older binary can
// still read a newer file after a rollback. Every version ships a
// matching .down.sql.
package database
