package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	pkgerrors "github.com/moneytrail/moneytrail/internal/errors"
	"github.com/moneytrail/moneytrail/internal/sourcefile"
)

// BulkLoader streams rows from a sourcefile cursor into one table through a
// prepared insert. Rows are buffered into batches and executed inside long
// transactions; the transaction is committed every CommitEvery rows so an
// interrupted load loses at most one transaction window, not the whole file.
type BulkLoader struct {
	db          *sql.DB
	table       string
	columns     []string
	batchSize   int
	commitEvery int
	logger      zerolog.Logger
}

// NewBulkLoader builds a loader for table with the given column order. The
// incoming rows must already be normalized to len(columns) fields.
func NewBulkLoader(db *sql.DB, table string, columns []string, batchSize, commitEvery int, logger zerolog.Logger) *BulkLoader {
	return &BulkLoader{
		db:          db,
		table:       table,
		columns:     columns,
		batchSize:   batchSize,
		commitEvery: commitEvery,
		logger:      logger,
	}
}

// Load drains src into the table and returns the number of rows inserted.
// Any insert failure aborts the load with the current transaction rolled
// back; previously committed windows stay in place.
func (l *BulkLoader) Load(src sourcefile.RowSource) (int64, error) {
	insertSQL := l.insertSQL()

	tx, err := l.db.Begin()
	if err != nil {
		return 0, pkgerrors.NewStoreError(pkgerrors.CodeInsertFailed,
			fmt.Sprintf("failed to begin transaction for %s", l.table), err)
	}
	stmt, err := tx.Prepare(insertSQL)
	if err != nil {
		tx.Rollback()
		return 0, pkgerrors.NewStoreError(pkgerrors.CodeInsertFailed,
			fmt.Sprintf("failed to prepare insert for %s", l.table), err)
	}

	var total int64
	var sinceCommit int
	batch := make([]sourcefile.Row, 0, l.batchSize)

	flush := func() error {
		for _, row := range batch {
			if _, err := stmt.Exec(rowArgs(row)...); err != nil {
				return pkgerrors.NewStoreError(pkgerrors.CodeInsertFailed,
					fmt.Sprintf("failed to insert into %s", l.table), err)
			}
		}
		total += int64(len(batch))
		sinceCommit += len(batch)
		batch = batch[:0]
		return nil
	}

	for {
		row, ok := src.Next()
		if !ok {
			break
		}
		batch = append(batch, row)
		if len(batch) < l.batchSize {
			continue
		}
		if err := flush(); err != nil {
			stmt.Close()
			tx.Rollback()
			return total, err
		}
		if sinceCommit >= l.commitEvery {
			stmt.Close()
			if err := tx.Commit(); err != nil {
				return total, pkgerrors.NewStoreError(pkgerrors.CodeInsertFailed,
					fmt.Sprintf("failed to commit batch into %s", l.table), err)
			}
			l.logger.Debug().Str("table", l.table).Int64("rows", total).
				Msg("committed transaction window")
			sinceCommit = 0
			tx, err = l.db.Begin()
			if err != nil {
				return total, pkgerrors.NewStoreError(pkgerrors.CodeInsertFailed,
					fmt.Sprintf("failed to begin transaction for %s", l.table), err)
			}
			stmt, err = tx.Prepare(insertSQL)
			if err != nil {
				tx.Rollback()
				return total, pkgerrors.NewStoreError(pkgerrors.CodeInsertFailed,
					fmt.Sprintf("failed to prepare insert for %s", l.table), err)
			}
		}
	}

	if err := src.Err(); err != nil {
		stmt.Close()
		tx.Rollback()
		return total, err
	}

	// Final short batch.
	if err := flush(); err != nil {
		stmt.Close()
		tx.Rollback()
		return total, err
	}
	stmt.Close()
	if err := tx.Commit(); err != nil {
		return total, pkgerrors.NewStoreError(pkgerrors.CodeInsertFailed,
			fmt.Sprintf("failed to commit final batch into %s", l.table), err)
	}

	return total, nil
}

func (l *BulkLoader) insertSQL() string {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(l.columns)), ",")
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		l.table, strings.Join(l.columns, ", "), placeholders)
}

func rowArgs(row sourcefile.Row) []interface{} {
	args := make([]interface{}, len(row))
	for i, v := range row {
		args[i] = v
	}
	return args
}
