// Package store owns the SQLite database connection and the bulk insert
// path the import stage streams rows through.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	pkgerrors "github.com/moneytrail/moneytrail/internal/errors"
)

// bulkPragmas tunes SQLite for sustained single-writer bulk loading. WAL
// keeps the database readable during long imports; the large cache and
// mmap window matter for the multi-gigabyte contribution tables.
var bulkPragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA cache_size=-2000000",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA mmap_size=4294967296",
}

// Open opens (creating if necessary) the pipeline database at dbPath and
// applies the bulk-load pragmas. The pool is capped at one connection: the
// pipeline is a single sequential writer and SQLite rewards that shape.
func Open(dbPath string) (*sql.DB, error) {
	dsn := dbPath + "?_busy_timeout=5000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, pkgerrors.NewStoreError(pkgerrors.CodeOpenFailed,
			fmt.Sprintf("failed to open database at %s", dbPath), err)
	}

	db.SetMaxOpenConns(1)

	for _, pragma := range bulkPragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, pkgerrors.NewStoreError(pkgerrors.CodeOpenFailed,
				fmt.Sprintf("failed to apply %q", pragma), err)
		}
	}

	return db, nil
}

// TableCount returns the row count of a table.
func TableCount(db *sql.DB, table string) (int64, error) {
	var n int64
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		return 0, pkgerrors.NewStoreError(pkgerrors.CodeExecFailed,
			fmt.Sprintf("failed to count rows in %s", table), err)
	}
	return n, nil
}
