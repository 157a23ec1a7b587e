package driver

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// pgxQuerier is implemented by both *pgxpool.Pool and pgx.Tx
type pgxQuerier interface {
	Exec(ctx context.Context, query string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, query string, args ...interface{}) (pgx.Rows, error)
}

// PGWrapper adapts a pgx pool to ITransactionalDB
type PGWrapper struct {
	db *pgxpool.Pool
}

// PGWrapperTx transaction started from a PGWrapper
type PGWrapperTx struct {
	tx pgx.Tx
}

type pgExecResult struct {
	ct pgconn.CommandTag
}

type pgRows struct {
	rows pgx.Rows
}

var (
	_ ITransactionalDB = &PGWrapper{}
	_ ITransactionalDB = &PGWrapperTx{}
)

// NewPostgreSQLConn connect a postgreSQL connection pool
func NewPostgreSQLConn(dsn string, cfg *DBConfig) (ITransactionalDB, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	poolConfig.MaxConns = cfg.MaxConn
	conn, err := pgxpool.ConnectConfig(context.Background(), poolConfig)
	if err != nil {
		return nil, err
	}
	return &PGWrapper{conn}, nil
}

// LastInsertId is not supported by postgres, use RETURNING instead
func (pr pgExecResult) LastInsertId() (int64, error) {
	return 0, nil
}

func (pr pgExecResult) RowsAffected() (int64, error) {
	return pr.ct.RowsAffected(), nil
}

func (pr pgRows) Next() bool {
	return pr.rows.Next()
}

func (pr pgRows) Scan(dest ...interface{}) error {
	return pr.rows.Scan(dest...)
}

func (pr pgRows) Err() error {
	return pr.rows.Err()
}

func (pr pgRows) Close() error {
	pr.rows.Close()
	return pr.rows.Err()
}

func pgExec(ctx context.Context, q pgxQuerier, query string, args []interface{}) (sql.Result, error) {
	startTime := time.Now()
	query = compactQuery(query)
	ct, err := q.Exec(ctx, query, args...)
	traceQuery(ctx, "Exec", query, args, startTime, err)
	return pgExecResult{ct}, err
}

func pgQuery(ctx context.Context, q pgxQuerier, query string, args []interface{}) (ISQLRows, error) {
	startTime := time.Now()
	query = compactQuery(query)
	rows, err := q.Query(ctx, query, args...)
	traceQuery(ctx, "Query", query, args, startTime, err)
	if err != nil {
		return nil, err
	}
	return pgRows{rows}, nil
}

func pgTxOptions(opts *TxOptions) pgx.TxOptions {
	if opts == nil {
		return pgx.TxOptions{}
	}
	txOpts := pgx.TxOptions{
		AccessMode:     pgx.ReadWrite,
		DeferrableMode: pgx.NotDeferrable,
	}
	if opts.Isolation != sql.LevelDefault {
		txOpts.IsoLevel = pgx.TxIsoLevel(strings.ToLower(opts.Isolation.String()))
	}
	if opts.AccessMode == AccessReadOnly {
		txOpts.AccessMode = pgx.ReadOnly
	}
	if opts.DeferrableMode == Deferrable {
		txOpts.DeferrableMode = pgx.Deferrable
	}
	return txOpts
}

func (pw *PGWrapper) BeginTx(ctx context.Context, opts *TxOptions) (ITransactionalDB, error) {
	startTime := time.Now()
	tx, err := pw.db.BeginTx(ctx, pgTxOptions(opts))
	traceQuery(ctx, "BeginTx", "", nil, startTime, err)
	if err != nil {
		return nil, err
	}
	return &PGWrapperTx{tx}, nil
}

func (pw *PGWrapper) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return pgExec(ctx, pw.db, query, args)
}

func (pw *PGWrapper) QueryContext(ctx context.Context, query string, args ...interface{}) (ISQLRows, error) {
	return pgQuery(ctx, pw.db, query, args)
}

func (pw *PGWrapper) Commit(ctx context.Context) error { return nil }

func (pw *PGWrapper) Rollback(ctx context.Context) error { return nil }

// Close close the whole pool
func (pw *PGWrapper) Close(ctx context.Context) error {
	pw.db.Close()
	return nil
}

func (pw *PGWrapper) Ping(ctx context.Context) error {
	conn, err := pw.db.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return conn.Conn().Ping(ctx)
}

func (pwt *PGWrapperTx) BeginTx(ctx context.Context, opts *TxOptions) (ITransactionalDB, error) {
	return nil, ErrNestedTransaction
}

func (pwt *PGWrapperTx) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return pgExec(ctx, pwt.tx, query, args)
}

func (pwt *PGWrapperTx) QueryContext(ctx context.Context, query string, args ...interface{}) (ISQLRows, error) {
	return pgQuery(ctx, pwt.tx, query, args)
}

func (pwt *PGWrapperTx) Commit(ctx context.Context) error {
	startTime := time.Now()
	err := pwt.tx.Commit(ctx)
	traceQuery(ctx, "Commit", "", nil, startTime, err)
	return err
}

func (pwt *PGWrapperTx) Rollback(ctx context.Context) error {
	startTime := time.Now()
	err := pwt.tx.Rollback(ctx)
	traceQuery(ctx, "Rollback", "", nil, startTime, err)
	return err
}

func (pwt *PGWrapperTx) Close(ctx context.Context) error { return nil }

func (pwt *PGWrapperTx) Ping(ctx context.Context) error { return nil }
