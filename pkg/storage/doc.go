// Package storage opens the connections the analytics engine runs on.
//
// Two SQL dialects are supported: PostgreSQL through lib/pq and SQLite through
// mattn/go-sqlite3. Dialect carries the small set of differences the
// aggregation queries care about: placeholder syntax (Rebind), how a
// timestamp parameter is written, the serial primary key type and how a
// table is emptied.
//
//	db, err := storage.Open(ctx, storage.Config{Driver: "postgres", URL: dsn, MaxConns: 10})
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//
// A SQLite database is always opened with a single connection, so an
// in-memory DSN keeps its data for the life of the pool.
//
// NewRedisClient connects the optional Redis used for cross-host locking of
// update passes.
package storage
