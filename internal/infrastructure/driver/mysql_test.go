package driver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMysqlAdapter(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"placeholders", "SELECT id FROM lesson WHERE course_id = $1 AND id = $2", "SELECT id FROM lesson WHERE course_id = ? AND id = ?"},
		{"quoted identifiers", `SELECT "position" FROM lesson`, "SELECT `position` FROM lesson"},
		{"whitespace", "\n\tSELECT id\n\tFROM   lesson\n", "SELECT id FROM lesson"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mysqlAdapter(tt.query))
		})
	}
}

func TestGetDSN(t *testing.T) {
	cfg := &DBConfig{User: "root", Password: "secret", Protocol: "tcp", Host: "127.0.0.1", Port: 3306, Schema: "course"}
	assert.Equal(t, "root:secret@tcp(127.0.0.1:3306)/course", getDSN(cfg))

	cfg.Protocol = ""
	cfg.Query = "sslmode=disable"
	assert.Equal(t, "root:secret@127.0.0.1:3306/course?sslmode=disable", getDSN(cfg))
}

func TestGetDBConnection_UnsupportedDriver(t *testing.T) {
	conn, err := GetDBConnection(&DBConfig{Driver: "sqlite"})
	assert.Error(t, err)
	assert.Nil(t, conn)
}

func TestSQLWrapper_Transaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	conn := NewSQLWrapper(db)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE lesson_progress SET status = \? WHERE lesson_id = \?`).
		WithArgs("completed", "l1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := conn.BeginTx(ctx, &TxOptions{})
	require.NoError(t, err)

	_, err = tx.BeginTx(ctx, nil)
	assert.True(t, errors.Is(err, ErrNestedTransaction))

	res, err := tx.ExecContext(ctx, `UPDATE lesson_progress SET status = $1 WHERE lesson_id = $2`, "completed", "l1")
	require.NoError(t, err)
	affected, _ := res.RowsAffected()
	assert.Equal(t, int64(1), affected)
	require.NoError(t, tx.Commit(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLWrapper_QueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT id FROM lesson`).WillReturnError(errors.New("connection reset"))

	rows, err := NewSQLWrapper(db).QueryContext(context.Background(), "SELECT id FROM lesson")
	assert.Error(t, err)
	assert.Nil(t, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsDuplicateKey(t *testing.T) {
	assert.True(t, IsDuplicateKey(&mysql.MySQLError{Number: 1062}))
	assert.True(t, IsDuplicateKey(fmt.Errorf("save: %w", &pgconn.PgError{Code: "23505"})))
	assert.False(t, IsDuplicateKey(&mysql.MySQLError{Number: 1045}))
	assert.False(t, IsDuplicateKey(errors.New("duplicate")))
}

func TestPGTxOptions(t *testing.T) {
	assert.Equal(t, pgx.TxOptions{}, pgTxOptions(nil))
	assert.Equal(t, pgx.TxOptions{
		IsoLevel:       pgx.RepeatableRead,
		AccessMode:     pgx.ReadOnly,
		DeferrableMode: pgx.NotDeferrable,
	}, pgTxOptions(&TxOptions{Isolation: sql.LevelRepeatableRead, AccessMode: AccessReadOnly}))
}
