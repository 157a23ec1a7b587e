package progress

import (
	"context"
	"database/sql"
	"time"

	"github.com/pot-code/course-progress/internal/infrastructure/driver"
	"github.com/pot-code/course-progress/internal/infrastructure/logging"
	"go.uber.org/zap"
)

type ProgressSQL struct {
	Conn driver.ITransactionalDB
	now  func() time.Time
}

var _ Repository = &ProgressSQL{}

func NewProgressRepository(Conn driver.ITransactionalDB) *ProgressSQL {
	return &ProgressSQL{Conn: Conn, now: time.Now}
}

func (repo *ProgressSQL) FindByCourse(ctx context.Context, learnerID, courseID string) ([]*Record, error) {
	conn := repo.Conn
	rows, err := conn.QueryContext(ctx, `
SELECT
    lesson_id, status, updated_at
FROM
    lesson_progress
WHERE
    user_id = $1 AND course_id = $2
	`, learnerID, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*Record
	for rows.Next() {
		item := &Record{LearnerID: learnerID, CourseID: courseID}
		if err := rows.Scan(&item.LessonID, &item.Status, &item.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// maxSaveAttempts bounds retries of a save that lost a race on the same record
const maxSaveAttempts = 3

// Save write record inside a transaction, an existing record is only moved forward.
// Two first writes of one record can race on the unique key (or deadlock on
// mysql gap locks), the loser runs again and then sees the winner's row.
func (repo *ProgressSQL) Save(ctx context.Context, record *Record) (stored Status, err error) {
	for attempt := 1; ; attempt++ {
		stored, err = repo.save(ctx, record)
		if err == nil || attempt >= maxSaveAttempts || !driver.IsRetryable(err) {
			return stored, err
		}
		logging.ExtractLoggerFromContext(ctx).Debug("retrying progress save",
			zap.String("lesson_id", record.LessonID), zap.Int("attempt", attempt), zap.Error(err))
	}
}

func (repo *ProgressSQL) save(ctx context.Context, record *Record) (stored Status, err error) {
	tx, err := repo.Conn.BeginTx(ctx, &driver.TxOptions{
		Isolation: sql.LevelRepeatableRead,
	})
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				logging.ExtractLoggerFromContext(ctx).Warn("rollback failed", zap.Error(rbErr))
			}
		}
	}()

	rows, err := tx.QueryContext(ctx, `
SELECT status FROM lesson_progress
WHERE user_id = $1 AND course_id = $2 AND lesson_id = $3
FOR UPDATE
	`, record.LearnerID, record.CourseID, record.LessonID)
	if err != nil {
		return "", err
	}
	var current Status
	found := rows.Next()
	if found {
		err = rows.Scan(&current)
	} else {
		err = rows.Err()
	}
	rows.Close()
	if err != nil {
		return "", err
	}

	now := repo.now()
	stored = current.Merge(record.Status)
	switch {
	case !found:
		_, err = tx.ExecContext(ctx, `
INSERT INTO lesson_progress(user_id, course_id, lesson_id, status, updated_at)
VALUES($1, $2, $3, $4, $5)
		`, record.LearnerID, record.CourseID, record.LessonID, stored, now)
	case stored != current:
		_, err = tx.ExecContext(ctx, `
UPDATE lesson_progress SET status = $1, updated_at = $2
WHERE user_id = $3 AND course_id = $4 AND lesson_id = $5
		`, stored, now, record.LearnerID, record.CourseID, record.LessonID)
	}
	if err != nil {
		return "", err
	}
	if err = tx.Commit(ctx); err != nil {
		return "", err
	}
	return stored, nil
}
