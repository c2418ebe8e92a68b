// Package database opens the SQLite database that can hold the device and
// alert tables, and applies the embedded schema migrations.
//
// Usage:
//
//	db, err := database.Open(ctx, cfg.Database)
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Migrations are additive; every .up.sql should have a matching .down.sql.
package database
