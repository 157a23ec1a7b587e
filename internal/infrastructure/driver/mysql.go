package driver

import (
	"context"
	"database/sql"
	"strings"
	"time"

	// mysql driver
	_ "github.com/go-sql-driver/mysql"
)

// sqlQuerier is implemented by both *sql.DB and *sql.Tx
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// SQLWrapper adapts a *sql.DB pool to ITransactionalDB, queries are written
// with $N placeholders and rewritten for mysql
type SQLWrapper struct {
	db *sql.DB
}

// SQLWrapperTx transaction started from a SQLWrapper
type SQLWrapperTx struct {
	tx *sql.Tx
}

var (
	_ ITransactionalDB = &SQLWrapper{}
	_ ITransactionalDB = &SQLWrapperTx{}
)

// NewMySQLConn open a MySQL connection pool
func NewMySQLConn(dsn string, cfg *DBConfig) (ITransactionalDB, error) {
	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(int(cfg.MaxConn))
	conn.SetConnMaxIdleTime(5 * time.Minute)
	return &SQLWrapper{conn}, nil
}

// NewSQLWrapper wraps an opened *sql.DB
func NewSQLWrapper(db *sql.DB) *SQLWrapper {
	return &SQLWrapper{db}
}

func sqlExec(ctx context.Context, q sqlQuerier, query string, args []interface{}) (sql.Result, error) {
	startTime := time.Now()
	query = mysqlAdapter(query)
	res, err := q.ExecContext(ctx, query, args...)
	traceQuery(ctx, "Exec", query, args, startTime, err)
	return res, err
}

func sqlQuery(ctx context.Context, q sqlQuerier, query string, args []interface{}) (ISQLRows, error) {
	startTime := time.Now()
	query = mysqlAdapter(query)
	rows, err := q.QueryContext(ctx, query, args...)
	traceQuery(ctx, "Query", query, args, startTime, err)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (mw *SQLWrapper) BeginTx(ctx context.Context, opts *TxOptions) (ITransactionalDB, error) {
	startTime := time.Now()
	var sqlOpts *sql.TxOptions
	if opts != nil {
		sqlOpts = &sql.TxOptions{
			Isolation: opts.Isolation,
			ReadOnly:  opts.AccessMode == AccessReadOnly,
		}
	}
	tx, err := mw.db.BeginTx(ctx, sqlOpts)
	traceQuery(ctx, "BeginTx", "", nil, startTime, err)
	if err != nil {
		return nil, err
	}
	return &SQLWrapperTx{tx}, nil
}

func (mw *SQLWrapper) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return sqlExec(ctx, mw.db, query, args)
}

func (mw *SQLWrapper) QueryContext(ctx context.Context, query string, args ...interface{}) (ISQLRows, error) {
	return sqlQuery(ctx, mw.db, query, args)
}

// Commit is a no-op outside a transaction
func (mw *SQLWrapper) Commit(ctx context.Context) error { return nil }

// Rollback is a no-op outside a transaction
func (mw *SQLWrapper) Rollback(ctx context.Context) error { return nil }

func (mw *SQLWrapper) Close(ctx context.Context) error {
	return mw.db.Close()
}

func (mw *SQLWrapper) Ping(ctx context.Context) error {
	return mw.db.PingContext(ctx)
}

func (mwt *SQLWrapperTx) BeginTx(ctx context.Context, opts *TxOptions) (ITransactionalDB, error) {
	return nil, ErrNestedTransaction
}

func (mwt *SQLWrapperTx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return sqlExec(ctx, mwt.tx, query, args)
}

func (mwt *SQLWrapperTx) QueryContext(ctx context.Context, query string, args ...interface{}) (ISQLRows, error) {
	return sqlQuery(ctx, mwt.tx, query, args)
}

func (mwt *SQLWrapperTx) Commit(ctx context.Context) error {
	startTime := time.Now()
	err := mwt.tx.Commit()
	traceQuery(ctx, "Commit", "", nil, startTime, err)
	return err
}

func (mwt *SQLWrapperTx) Rollback(ctx context.Context) error {
	startTime := time.Now()
	err := mwt.tx.Rollback()
	traceQuery(ctx, "Rollback", "", nil, startTime, err)
	return err
}

func (mwt *SQLWrapperTx) Close(ctx context.Context) error { return nil }

func (mwt *SQLWrapperTx) Ping(ctx context.Context) error { return nil }

// mysqlAdapter rewrite $N placeholders and "quoted" identifiers for mysql
func mysqlAdapter(query string) string {
	query = strings.ReplaceAll(query, `"`, "`")
	query = DollarPlaceholderPattern.ReplaceAllString(query, "?")
	return compactQuery(query)
}
