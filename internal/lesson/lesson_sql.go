package lesson

import (
	"context"
	"fmt"

	"github.com/pot-code/course-progress/internal/infrastructure/driver"
)

type LessonSQL struct {
	Conn driver.ITransactionalDB
}

var _ Repository = &LessonSQL{}

func NewLessonRepository(Conn driver.ITransactionalDB) *LessonSQL {
	return &LessonSQL{
		Conn: Conn,
	}
}

// FindByCourse lessons of course ordered by position
func (repo *LessonSQL) FindByCourse(ctx context.Context, courseID string) (Sequence, error) {
	conn := repo.Conn
	rows, err := conn.QueryContext(ctx, `
SELECT
    id, title, type, media_ref, "position"
FROM
    lesson
WHERE
    course_id = $1
ORDER BY "position" ASC, id ASC
	`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result Sequence
	for rows.Next() {
		item := new(Lesson)
		if err := rows.Scan(&item.ID, &item.Title, &item.Type, &item.MediaRef, &item.Position); err != nil {
			return nil, err
		}
		if !item.Type.IsValid() {
			return nil, fmt.Errorf("%w: lesson %s has type %q", ErrUnknownLessonType, item.ID, item.Type)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
