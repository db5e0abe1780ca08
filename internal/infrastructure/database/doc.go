// Package database provides SQLite connectivity for Lab Panel Core.
//
// The panel keeps two kinds of durable data: feature toggles read by the
// dialog producers, and the dialog history shown on the service screen.
// Dialog queue state itself is never persisted.
//
// This package manages:
//   - Database connection with WAL mode for concurrent access
//   - Schema migrations from an embedded filesystem
//   - Private in-memory databases for tests
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{
//	    Path:        cfg.Database.Path,
//	    WALMode:     cfg.Database.WALMode,
//	    BusyTimeout: cfg.Database.BusyTimeout,
//	})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive: new columns must be nullable or carry a default,
// and each .up.sql has a matching .down.sql.
package database
