package learner

import (
	"context"
	"errors"
)

// Learner account of a course participant
type Learner struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Email      string `json:"email"`
	Password   string `json:"-"`
	LoginRetry int    `json:"-"`
	LastLogin  int64  `json:"-"` // unix seconds
}

var (
	// ErrDuplicatedLearner unique key constraint violation
	ErrDuplicatedLearner = errors.New("Username or email is already registered")
	// ErrNoSuchLearner unknown credential or wrong password
	ErrNoSuchLearner = errors.New("Incorrect username or password")
	// ErrTooManyAttempts sign in locked after repeated failures
	ErrTooManyAttempts = errors.New("Too many failed attempts, please try again later")
)

type Repository interface {
	// FindByCredential match credential against username or email, nil when absent
	FindByCredential(ctx context.Context, credential string) (*Learner, error)
	Save(ctx context.Context, learner *Learner) error
	UpdateLogin(ctx context.Context, learner *Learner) error
}

type UseCase interface {
	SignUp(ctx context.Context, post *Learner) (*Learner, error)
	SignIn(ctx context.Context, credential, password string) (*Learner, error)
	Exists(ctx context.Context, credential string) (bool, error)
}
