// Package database provides the SQLite store behind the property history.
//
// This package manages:
//   - Database connection with optional WAL mode
//   - Forward-only schema migrations loaded from an fs.FS
//   - Transaction helper with commit/rollback handling
//
// The pool is limited to a single connection, so writers never contend
// for SQLite's lock inside one process.
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql. Each one runs
// in its own transaction and is recorded in schema_migrations. There are no
// down migrations; a schema change is always a new file.
package database
