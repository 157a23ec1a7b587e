package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pot-code/course-progress/internal/infrastructure/auth"
	"github.com/pot-code/course-progress/internal/infrastructure/driver"
	"github.com/pot-code/course-progress/internal/infrastructure/validate"
	"github.com/pot-code/course-progress/internal/learner"
)

// BlacklistKey kv key of a signed out token
func BlacklistKey(token string) string {
	return "token:blacklist:" + token
}

// LearnerHandler learner account operations
type LearnerHandler struct {
	JWTUtil        *auth.JWTUtil
	KVStore        driver.KeyValueDB
	LearnerUseCase learner.UseCase
	Validator      validate.Validator
}

// NewLearnerHandler create a learner controller instance
func NewLearnerHandler(
	JWTUtil *auth.JWTUtil,
	KVStore driver.KeyValueDB,
	LearnerUseCase learner.UseCase,
	Validator validate.Validator,
) *LearnerHandler {
	return &LearnerHandler{
		JWTUtil:        JWTUtil,
		KVStore:        KVStore,
		LearnerUseCase: LearnerUseCase,
		Validator:      Validator,
	}
}

type signUpPost struct {
	Username string `json:"username" validate:"required,min=3,max=32"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type signInPost struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// HandleSignIn ...
func (lh *LearnerHandler) HandleSignIn(c echo.Context) (err error) {
	ju := lh.JWTUtil

	post := new(signInPost)
	if err = c.Bind(post); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, bindError(err, "credential"))
	}
	if err := lh.Validator.Struct(post); err != nil {
		return c.JSON(http.StatusBadRequest,
			NewRESTValidationError(http.StatusBadRequest, "Failed to validate fields", err))
	}

	l, err := lh.LearnerUseCase.SignIn(c.Request().Context(), post.Username, post.Password)
	switch {
	case errors.Is(err, learner.ErrNoSuchLearner):
		return c.JSON(http.StatusUnauthorized, NewRESTStandardError(http.StatusUnauthorized, err.Error()))
	case errors.Is(err, learner.ErrTooManyAttempts):
		return c.JSON(http.StatusForbidden, NewRESTStandardError(http.StatusForbidden, err.Error()))
	case err != nil:
		return err
	}

	// issue JWT
	tokenStr, err := ju.GenerateTokenStr(&auth.Identity{ID: l.ID, Email: l.Email, Name: l.Username})
	if err != nil {
		return err
	}
	ju.SetClientToken(c, tokenStr)
	return c.JSON(http.StatusOK, l)
}

// HandleSignUp ...
func (lh *LearnerHandler) HandleSignUp(c echo.Context) (err error) {
	post := new(signUpPost)
	if err = c.Bind(post); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, bindError(err, "learner entity"))
	}

	// validation
	if err := lh.Validator.Struct(post); err != nil {
		return c.JSON(http.StatusBadRequest,
			NewRESTValidationError(http.StatusBadRequest, "Failed to validate fields", err))
	}

	// register
	l, err := lh.LearnerUseCase.SignUp(c.Request().Context(), &learner.Learner{
		Username: post.Username,
		Email:    post.Email,
		Password: post.Password,
	})
	if err != nil {
		if errors.Is(err, learner.ErrDuplicatedLearner) {
			return c.JSON(http.StatusConflict, NewRESTStandardError(http.StatusConflict, err.Error()))
		}
		return err
	}
	return c.JSON(http.StatusCreated, l)
}

// HandleSignOut black list the token for the rest of its lifetime
func (lh *LearnerHandler) HandleSignOut(c echo.Context) (err error) {
	ju := lh.JWTUtil

	tokenStr, err := ju.ExtractToken(c)
	if err != nil {
		return c.NoContent(http.StatusOK)
	}
	token, err := ju.Validate(tokenStr)
	if err != nil {
		return c.NoContent(http.StatusUnauthorized)
	}
	ju.ClearClientToken(c)
	if remaining := token.TimeRemaining(timeNow()); remaining > 0 {
		if err := lh.KVStore.SetEX(c.Request().Context(), BlacklistKey(tokenStr), "1", remaining); err != nil {
			return err
		}
	}
	return c.NoContent(http.StatusOK)
}

// HandleLearnerExists ...
func (lh *LearnerHandler) HandleLearnerExists(c echo.Context) (err error) {
	username := c.QueryParam("username")
	email := c.QueryParam("email")

	if err := lh.Validator.AllEmpty([]string{"username", "email"}, username, email); err != nil {
		return c.JSON(http.StatusBadRequest, NewRESTValidationError(http.StatusBadRequest, "Failed to validate params", err))
	}

	credential := username
	if credential == "" {
		credential = email
	}
	existing, err := lh.LearnerUseCase.Exists(c.Request().Context(), credential)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, existing)
}
