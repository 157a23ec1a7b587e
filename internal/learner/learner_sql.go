package learner

import (
	"context"

	"github.com/pot-code/course-progress/internal/infrastructure/driver"
	"github.com/pot-code/course-progress/internal/infrastructure/uuid"
)

type LearnerSQL struct {
	Conn          driver.ITransactionalDB
	UUIDGenerator uuid.Generator
}

var _ Repository = &LearnerSQL{}

func NewLearnerRepository(Conn driver.ITransactionalDB, UUIDGenerator uuid.Generator) *LearnerSQL {
	return &LearnerSQL{Conn, UUIDGenerator}
}

// FindByCredential query learner with provided credential
func (repo *LearnerSQL) FindByCredential(ctx context.Context, credential string) (*Learner, error) {
	conn := repo.Conn
	row, err := conn.QueryContext(ctx, `SELECT id, username, password, email, login_retry, last_login
	FROM learner WHERE username = $1 OR email = $2`, credential, credential)
	if err != nil {
		return nil, err
	}
	defer row.Close()

	if row.Next() {
		learner := new(Learner)
		if err := row.Scan(&learner.ID, &learner.Username, &learner.Password, &learner.Email, &learner.LoginRetry, &learner.LastLogin); err != nil {
			return nil, err
		}
		return learner, nil
	}
	return nil, row.Err()
}

func (repo *LearnerSQL) Save(ctx context.Context, post *Learner) error {
	conn := repo.Conn
	// generate id
	if id, err := repo.UUIDGenerator.Generate(); err == nil {
		post.ID = id
	} else {
		return err
	}

	_, err := conn.ExecContext(ctx, `INSERT INTO learner(id, username, password, email, login_retry, last_login)
	VALUES($1, $2, $3, $4, $5, $6)`, post.ID, post.Username, post.Password, post.Email, post.LoginRetry, post.LastLogin)
	if driver.IsDuplicateKey(err) {
		return ErrDuplicatedLearner
	}
	return err
}

func (repo *LearnerSQL) UpdateLogin(ctx context.Context, post *Learner) error {
	conn := repo.Conn
	_, err := conn.ExecContext(ctx, `UPDATE learner
	SET login_retry = $1,
			last_login = $2
	WHERE id = $3`, post.LoginRetry, post.LastLogin, post.ID)
	return err
}
