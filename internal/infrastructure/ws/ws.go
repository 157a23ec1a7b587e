package ws

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pot-code/course-progress/internal/infrastructure/logging"
	"go.uber.org/zap"
)

// Option upgrade options
type Option struct {
	// AllowedOrigins origins accepted besides the host serving the request, eg.https://app.example.com
	AllowedOrigins []string
}

func newUpgrader(options []*Option) *websocket.Upgrader {
	allowed := make(map[string]bool)
	for _, option := range options {
		if option == nil {
			continue
		}
		for _, origin := range option.AllowedOrigins {
			allowed[strings.ToLower(strings.TrimRight(origin, "/"))] = true
		}
	}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return checkOrigin(r, allowed)
		},
		HandshakeTimeout: 3 * time.Second,
	}
}

// checkOrigin accept requests without Origin (non browser clients), same host
// origins and the allowed ones
func checkOrigin(r *http.Request, allowed map[string]bool) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	return allowed[strings.ToLower(u.Scheme+"://"+u.Host)]
}

var (
	writeWait    = 10 * time.Second
	pongWait     = 30 * time.Second
	pingInterval = pongWait * 9 / 10
)

// Conn websocket connection safe for concurrent writers
type Conn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

// WriteJSON write v as a text frame
func (c *Conn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// ReadJSON read next text frame into v. Only the handler goroutine reads.
func (c *Conn) ReadJSON(v interface{}) error {
	return c.conn.ReadJSON(v)
}

func (c *Conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Handler serves one upgraded connection, it returns when the peer goes away
type Handler func(ctx context.Context, conn *Conn) error

// IsClosed reports whether err is the peer closing the connection
func IsClosed(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived)
}

// WithHeartbeat wrap handler function with a ping loop
//
// the handler runs on the request goroutine, so echo.Context stays valid until it returns
func WithHeartbeat(handler Handler, options ...*Option) echo.HandlerFunc {
	upgrader := newUpgrader(options)
	return func(c echo.Context) error {
		raw, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		ctx := c.Request().Context()
		logger := logging.ExtractLoggerFromContext(ctx)
		conn := &Conn{conn: raw}
		done := make(chan struct{})
		raw.SetReadDeadline(time.Now().Add(pongWait))
		raw.SetPongHandler(func(string) error {
			return raw.SetReadDeadline(time.Now().Add(pongWait))
		})
		go heartbeatRoutine(conn, done)

		err = handler(ctx, conn)
		close(done)
		raw.Close()
		if err != nil && !IsClosed(err) {
			logger.Debug("websocket closed", zap.Error(err))
		}
		return nil
	}
}

func heartbeatRoutine(conn *Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}
