package learner

import (
	"context"
	"time"

	"go.elastic.co/apm"
	"golang.org/x/crypto/bcrypt"
)

// LearnerUseCaseImpl ...
type LearnerUseCaseImpl struct {
	LearnerRepository Repository
	MaxAttempts       int
	RetryTimeout      time.Duration
	now               func() time.Time
}

var _ UseCase = &LearnerUseCaseImpl{}

// NewLearnerUseCase maxAttempts <= 0 disables the lockout
func NewLearnerUseCase(
	LearnerRepository Repository,
	maxAttempts int,
	retryTimeout time.Duration,
) *LearnerUseCaseImpl {
	return &LearnerUseCaseImpl{
		LearnerRepository: LearnerRepository,
		MaxAttempts:       maxAttempts,
		RetryTimeout:      retryTimeout,
		now:               time.Now,
	}
}

// SignUp create a learner
func (lu *LearnerUseCaseImpl) SignUp(ctx context.Context, post *Learner) (*Learner, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "LearnerUseCaseImpl.SignUp", "service")
	defer apmSpan.End()

	lr := lu.LearnerRepository
	// search for existence
	for _, credential := range []string{post.Username, post.Email} {
		if m, err := lr.FindByCredential(ctx, credential); err != nil {
			return nil, err
		} else if m != nil {
			return nil, ErrDuplicatedLearner
		}
	}

	// hash password
	if password, err := bcrypt.GenerateFromPassword([]byte(post.Password), bcrypt.DefaultCost); err == nil {
		post.Password = string(password)
	} else {
		return nil, err
	}

	if err := lr.Save(ctx, post); err != nil {
		return nil, err
	}
	return post, nil
}

// SignIn check credential and password, repeated failures lock the account for RetryTimeout
func (lu *LearnerUseCaseImpl) SignIn(ctx context.Context, credential, password string) (*Learner, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "LearnerUseCaseImpl.SignIn", "service")
	defer apmSpan.End()

	lr := lu.LearnerRepository
	learner, err := lr.FindByCredential(ctx, credential)
	if err != nil {
		return nil, err
	}
	if learner == nil {
		return nil, ErrNoSuchLearner
	}

	now := lu.now()
	if lu.MaxAttempts > 0 && learner.LoginRetry >= lu.MaxAttempts {
		if now.Sub(time.Unix(learner.LastLogin, 0)) < lu.RetryTimeout {
			return nil, ErrTooManyAttempts
		}
		learner.LoginRetry = 0
	}

	learner.LastLogin = now.Unix()
	if err := bcrypt.CompareHashAndPassword([]byte(learner.Password), []byte(password)); err != nil {
		if err != bcrypt.ErrMismatchedHashAndPassword {
			return nil, err
		}
		learner.LoginRetry++
		if err := lr.UpdateLogin(ctx, learner); err != nil {
			return nil, err
		}
		return nil, ErrNoSuchLearner
	}

	learner.LoginRetry = 0
	if err := lr.UpdateLogin(ctx, learner); err != nil {
		return nil, err
	}
	return learner, nil
}

// Exists find if learner exists in database
func (lu *LearnerUseCaseImpl) Exists(ctx context.Context, credential string) (bool, error) {
	apmSpan, ctx := apm.StartSpan(ctx, "LearnerUseCaseImpl.Exists", "service")
	defer apmSpan.End()

	learner, err := lu.LearnerRepository.FindByCredential(ctx, credential)
	if err != nil {
		return false, err
	}
	return learner != nil, nil
}
