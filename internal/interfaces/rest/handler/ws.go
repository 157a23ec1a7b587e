package handler

import (
	"context"
	"errors"

	"github.com/labstack/echo/v4"
	"github.com/pot-code/course-progress/internal/infrastructure/logging"
	"github.com/pot-code/course-progress/internal/infrastructure/ws"
	"github.com/pot-code/course-progress/internal/progression"
	"go.uber.org/zap"
)

// inbound message types
const (
	messageOpen       = "open"
	messageTimeUpdate = "timeupdate"
	messageClose      = "close"
)

// outbound message types
const (
	messageNotice   = "notice"
	messageOverview = "overview"
	messageOutcome  = "outcome"
	messageError    = "error"
)

type socketMessage struct {
	Type        string  `json:"type"`
	LessonID    string  `json:"lesson_id"`
	CurrentTime float64 `json:"current_time"`
	Duration    float64 `json:"duration"`
}

type socketReply struct {
	Type     string                   `json:"type"`
	LessonID string                   `json:"lesson_id,omitempty"`
	Notice   *progression.Notice      `json:"notice,omitempty"`
	Overview *Overview                `json:"overview,omitempty"`
	Outcome  *progression.Outcome     `json:"outcome,omitempty"`
	Lesson   *progression.LessonState `json:"lesson,omitempty"`
	Error    string                   `json:"error,omitempty"`
}

// HandleSessionSocket live lesson view channel of a course
func (ch *CourseHandler) HandleSessionSocket(c echo.Context) error {
	learnerID, courseID := ch.learnerID(c), c.Param("course_id")
	acquire := func(ctx context.Context) (*progression.Session, error) {
		return ch.Registry.Acquire(ctx, learnerID, courseID)
	}
	s, err := acquire(c.Request().Context())
	if err != nil {
		return engineError(c, err)
	}
	return ws.WithHeartbeat(func(ctx context.Context, conn *ws.Conn) error {
		return serveSession(ctx, s, acquire, conn)
	}, ch.SocketOption)(c)
}

// socketView one connection on a session shared with the learner's other
// views, it only ever leaves the lesson it opened itself
type socketView struct {
	acquire     func(ctx context.Context) (*progression.Session, error)
	conn        *ws.Conn
	logger      *zap.Logger
	session     *progression.Session
	unsubscribe func()
	opened      string
}

func (v *socketView) attach(s *progression.Session) {
	v.session = s
	v.unsubscribe = s.Subscribe(func(n progression.Notice) {
		if err := v.conn.WriteJSON(&socketReply{Type: messageNotice, LessonID: n.LessonID, Notice: &n}); err != nil {
			v.logger.Debug("failed to push notice", zap.Error(err))
			return
		}
		if err := v.conn.WriteJSON(&socketReply{Type: messageOverview, Overview: newOverview(s)}); err != nil {
			v.logger.Debug("failed to push overview", zap.Error(err))
		}
	})
}

func (v *socketView) detach() {
	if v.session == nil {
		return
	}
	v.unsubscribe()
	v.session.Leave(v.opened)
	v.session, v.unsubscribe, v.opened = nil, nil, ""
}

// current the attached session, acquiring one when the last was torn down
func (v *socketView) current(ctx context.Context) (*progression.Session, error) {
	if v.session != nil {
		return v.session, nil
	}
	s, err := v.acquire(ctx)
	if err != nil {
		return nil, err
	}
	v.attach(s)
	return s, nil
}

// do run op on the session, a session dropped meanwhile is replaced and op runs once more
func (v *socketView) do(ctx context.Context, op func(s *progression.Session) error) error {
	s, err := v.current(ctx)
	if err != nil {
		return err
	}
	err = op(s)
	if !errors.Is(err, progression.ErrSessionClosed) {
		return err
	}
	v.logger.Debug("session dropped, acquiring a new one")
	v.detach()
	if s, err = v.current(ctx); err != nil {
		return err
	}
	return op(s)
}

func serveSession(ctx context.Context, s *progression.Session, acquire func(ctx context.Context) (*progression.Session, error), conn *ws.Conn) error {
	v := &socketView{acquire: acquire, conn: conn, logger: logging.ExtractLoggerFromContext(ctx)}
	v.attach(s)
	defer v.detach()

	if err := conn.WriteJSON(&socketReply{Type: messageOverview, Overview: newOverview(s)}); err != nil {
		return err
	}
	for {
		var msg socketMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}

		var reply *socketReply
		var err error
		switch msg.Type {
		case messageOpen:
			err = v.do(ctx, func(s *progression.Session) error {
				view, err := s.Open(ctx, msg.LessonID)
				if err != nil {
					return err
				}
				v.opened = msg.LessonID
				reply = &socketReply{Type: messageOverview, LessonID: msg.LessonID, Lesson: &view, Overview: newOverview(s)}
				return nil
			})
		case messageTimeUpdate:
			err = v.do(ctx, func(s *progression.Session) error {
				out, err := s.ObserveVideoProgress(ctx, msg.LessonID, msg.CurrentTime, msg.Duration)
				// below threshold updates are frequent and carry nothing new
				if err == nil && out.Triggered {
					reply = &socketReply{Type: messageOutcome, LessonID: msg.LessonID, Outcome: &out}
				}
				return err
			})
		case messageClose:
			err = v.do(ctx, func(s *progression.Session) error {
				s.Leave(v.opened)
				v.opened = ""
				reply = &socketReply{Type: messageOverview, Overview: newOverview(s)}
				return nil
			})
		default:
			reply = &socketReply{Type: messageError, Error: "unknown message type: " + msg.Type}
		}
		if err != nil {
			reply = &socketReply{Type: messageError, LessonID: msg.LessonID, Error: err.Error()}
		}
		if reply == nil {
			continue
		}
		if err := conn.WriteJSON(reply); err != nil {
			return err
		}
	}
}
