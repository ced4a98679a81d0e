// Package storage provides evidence.Storage backends.
//
//   - MemoryStorage keeps records in a slice. Nothing survives a restart.
//   - SQLiteStorage persists records in a single table with indexes on the
//     common filters. It runs on either database/sql SQLite driver:
//     "sqlite" (modernc.org/sqlite, no cgo) or "sqlite3" (mattn/go-sqlite3).
//
// New picks the backend from config.EvidenceConfig:
//
//	store, err := storage.New(&cfg.Evidence, logger)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
// Both backends also implement Pruner, which the retention package uses to
// enforce a record cap.
package storage
