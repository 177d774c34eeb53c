package store

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

// OpenSQLite opens (or creates) the catalog database at the given path.
//
// The pragmas ride in the DSN so they apply to every connection the pool
// opens, not just the one a plain Exec would hit. busy_timeout and
// foreign_keys are per-connection settings; concurrent item jobs write to
// the same batch row from different pooled connections, and a connection
// without the timeout fails instantly with SQLITE_BUSY instead of waiting.
// WAL keeps status polls readable while background jobs write.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := "file:" + path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=foreign_keys(ON)" +
		"&_pragma=busy_timeout(5000)"
	return sql.Open("sqlite", dsn)
}
