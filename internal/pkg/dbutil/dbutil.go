package dbutil

import (
	"context"
	"database/sql"
	"errors"

	"github.com/didi/gendry/builder"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Querier is satisfied by *sql.DB and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

const uniqueViolation = "23505"

// rebind turns gendry's "?" placeholders into postgres "$n".
func rebind(query string) string {
	return sqlx.Rebind(sqlx.DOLLAR, query)
}

func SelectSQL(table string, where map[string]interface{}, fields []string) (string, []interface{}, error) {
	query, args, err := builder.BuildSelect(table, where, fields)
	if err != nil {
		return "", nil, err
	}
	return rebind(query), args, nil
}

func Select(ctx context.Context, q Querier, table string, where map[string]interface{}, fields []string) (*sql.Rows, error) {
	query, args, err := SelectSQL(table, where, fields)
	if err != nil {
		return nil, err
	}
	return q.QueryContext(ctx, query, args...)
}

func SelectRow(ctx context.Context, q Querier, table string, where map[string]interface{}, fields []string) (*sql.Row, error) {
	query, args, err := SelectSQL(table, where, fields)
	if err != nil {
		return nil, err
	}
	return q.QueryRowContext(ctx, query, args...), nil
}

// Insert writes rows in one statement; no rows is a no-op.
func Insert(ctx context.Context, e Execer, table string, rows []map[string]interface{}) error {
	if len(rows) == 0 {
		return nil
	}
	query, args, err := builder.BuildInsert(table, rows)
	if err != nil {
		return err
	}
	_, err = e.ExecContext(ctx, rebind(query), args...)
	return err
}

// Update returns the number of rows it changed.
func Update(ctx context.Context, e Execer, table string, where, update map[string]interface{}) (int64, error) {
	query, args, err := builder.BuildUpdate(table, where, update)
	if err != nil {
		return 0, err
	}
	return affected(e.ExecContext(ctx, rebind(query), args...))
}

// Delete returns the number of rows it removed.
func Delete(ctx context.Context, e Execer, table string, where map[string]interface{}) (int64, error) {
	query, args, err := builder.BuildDelete(table, where)
	if err != nil {
		return 0, err
	}
	return affected(e.ExecContext(ctx, rebind(query), args...))
}

func affected(res sql.Result, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// IsConflict reports a unique constraint violation.
func IsConflict(err error) bool {
	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	return false
}
