package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pot-code/course-progress/internal/infrastructure/auth"
	"github.com/pot-code/course-progress/internal/infrastructure/logging"
	"github.com/pot-code/course-progress/internal/infrastructure/validate"
	"github.com/pot-code/course-progress/internal/infrastructure/ws"
	"github.com/pot-code/course-progress/internal/progress"
	"github.com/pot-code/course-progress/internal/progression"
	"go.uber.org/zap"
)

var timeNow = time.Now

// CourseHandler lesson view and progress operations of the signed in learner
type CourseHandler struct {
	Registry        *progression.Registry
	ProgressUseCase progress.UseCase
	JWTUtil         *auth.JWTUtil
	Validator       validate.Validator
	SocketOption    *ws.Option
}

func NewCourseHandler(
	Registry *progression.Registry,
	ProgressUseCase progress.UseCase,
	JWTUtil *auth.JWTUtil,
	Validator validate.Validator,
) *CourseHandler {
	return &CourseHandler{Registry: Registry, ProgressUseCase: ProgressUseCase, JWTUtil: JWTUtil, Validator: Validator}
}

// Overview course lesson states
type Overview struct {
	CourseID string                    `json:"course_id"`
	Lessons  []progression.LessonState `json:"lessons"`
	Progress progression.Summary       `json:"progress"`
}

func newOverview(s *progression.Session) *Overview {
	return &Overview{
		CourseID: s.CourseID(),
		Lessons:  s.Lessons(),
		Progress: s.Progress(),
	}
}

type playbackPost struct {
	CurrentTime float64 `json:"current_time" validate:"gte=0"`
	Duration    float64 `json:"duration"`
}

func (ch *CourseHandler) learnerID(c echo.Context) string {
	if claims := ch.JWTUtil.GetContextToken(c); claims != nil {
		return claims.UID
	}
	return ""
}

func (ch *CourseHandler) session(c echo.Context) (*progression.Session, error) {
	return ch.Registry.Acquire(c.Request().Context(), ch.learnerID(c), c.Param("course_id"))
}

// engineError map engine errors to a response, nil when err is not one of them
func engineError(c echo.Context, err error) error {
	var code int
	switch {
	case errors.Is(err, progression.ErrEmptyCourse), errors.Is(err, progression.ErrLessonNotFound):
		code = http.StatusNotFound
	case errors.Is(err, progression.ErrLessonLocked):
		code = http.StatusForbidden
	case errors.Is(err, progression.ErrNotActiveLesson), errors.Is(err, progression.ErrSessionClosed):
		code = http.StatusConflict
	case errors.Is(err, progression.ErrNotVideoLesson), errors.Is(err, progression.ErrInvalidDuration):
		code = http.StatusBadRequest
	default:
		return err
	}
	return c.JSON(code, NewRESTStandardError(code, err.Error()))
}

// HandleGetLessons lessons of the course with the learner's state
func (ch *CourseHandler) HandleGetLessons(c echo.Context) error {
	s, err := ch.Registry.AcquireFresh(c.Request().Context(), ch.learnerID(c), c.Param("course_id"))
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(http.StatusOK, newOverview(s))
}

// HandleGetProgress raw progress records
func (ch *CourseHandler) HandleGetProgress(c echo.Context) error {
	records, err := ch.ProgressUseCase.GetProgress(c.Request().Context(), ch.learnerID(c), c.Param("course_id"))
	if err != nil {
		return err
	}
	if records == nil {
		records = []*progress.Record{}
	}
	return c.JSON(http.StatusOK, records)
}

// HandlePutProgress write a progress record
func (ch *CourseHandler) HandlePutProgress(c echo.Context) error {
	post := new(progress.Record)
	if err := c.Bind(post); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, bindError(err, "progress record"))
	}
	if err := ch.Validator.Empty("lesson_id", post.LessonID); err != nil {
		return c.JSON(http.StatusBadRequest, NewRESTValidationError(http.StatusBadRequest, "Failed to validate fields", err))
	}
	post.LearnerID = ch.learnerID(c)
	post.CourseID = c.Param("course_id")

	ctx := c.Request().Context()
	saved, err := ch.ProgressUseCase.PutProgress(ctx, post)
	if errors.Is(err, progress.ErrCacheInvalidation) {
		logging.ExtractLoggerFromContext(ctx).Warn("progress cache left stale", zap.Error(err))
		err = nil
	}
	if errors.Is(err, progress.ErrInvalidStatus) {
		return c.JSON(http.StatusBadRequest, NewRESTValidationError(http.StatusBadRequest, "Failed to validate fields",
			[]*validate.FieldError{validate.NewFieldError("status", "status must be one of (in_progress completed)")}))
	}
	if err != nil {
		return err
	}
	if s := ch.Registry.Get(post.LearnerID, post.CourseID); s != nil {
		s.Acknowledge(saved.LessonID, saved.Status)
		s.Refresh(ctx)
	}
	return c.JSON(http.StatusOK, saved)
}

// HandleOpenLesson make a lesson the open one
func (ch *CourseHandler) HandleOpenLesson(c echo.Context) error {
	s, err := ch.session(c)
	if err != nil {
		return engineError(c, err)
	}
	view, err := s.Open(c.Request().Context(), c.Param("lesson_id"))
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

// HandlePlayback report a playback position of the open video
func (ch *CourseHandler) HandlePlayback(c echo.Context) error {
	post := new(playbackPost)
	if err := c.Bind(post); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, bindError(err, "playback event"))
	}
	if err := ch.Validator.Struct(post); err != nil {
		return c.JSON(http.StatusBadRequest, NewRESTValidationError(http.StatusBadRequest, "Failed to validate fields", err))
	}

	s, err := ch.session(c)
	if err != nil {
		return engineError(c, err)
	}
	out, err := s.ObserveVideoProgress(c.Request().Context(), c.Param("lesson_id"), post.CurrentTime, post.Duration)
	if err != nil {
		return engineError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// HandleCloseSession leave the lesson view, pending dwell timers are cancelled
func (ch *CourseHandler) HandleCloseSession(c echo.Context) error {
	ch.Registry.Drop(ch.learnerID(c), c.Param("course_id"))
	return c.NoContent(http.StatusNoContent)
}
