package middleware

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pot-code/course-progress/internal/infrastructure/logging"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggingConfig ...
type LoggingConfig struct {
	Skipper middleware.Skipper
	// Level picks the level of a finished request from its status code
	Level func(status int) zapcore.Level
}

func statusLevel(status int) zapcore.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return zapcore.WarnLevel
	case status >= http.StatusBadRequest:
		return zapcore.InfoLevel
	}
	return zapcore.DebugLevel
}

// Logging log every finished request with zap
func Logging(base *zap.Logger, options ...*LoggingConfig) echo.MiddlewareFunc {
	cfg := &LoggingConfig{
		Skipper: middleware.DefaultSkipper,
		Level:   statusLevel,
	}
	if len(options) > 0 {
		option := options[0]
		if option.Skipper != nil {
			cfg.Skipper = option.Skipper
		}
		if option.Level != nil {
			cfg.Level = option.Level
		}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper(c) {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			fields := append(requestFields(c),
				zap.Int("http.response.status_code", status),
				zap.Int64("http.response.body.bytes", c.Response().Size),
				zap.Duration("event.duration", time.Since(start)),
			)
			if ce := base.Check(cfg.Level(status), http.StatusText(status)); ce != nil {
				ce.Write(fields...)
			}
			return err
		}
	}
}

func requestFields(c echo.Context) []zap.Field {
	r := c.Request()
	fields := []zap.Field{
		zap.String("trace.id", c.Response().Header().Get(echo.HeaderXRequestID)),
		zap.String("http.request.method", r.Method),
		zap.String("http.route", c.Path()),
		zap.String("url.path", r.URL.Path),
		zap.String("client.address", c.RealIP()),
	}
	for i, name := range c.ParamNames() {
		if i < len(c.ParamValues()) {
			fields = append(fields, zap.String("http.route.param."+name, c.ParamValues()[i]))
		}
	}
	return fields
}

// SetTraceLogger put a logger bound to the request trace id into the request context
func SetTraceLogger(base *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r := c.Request()
			logger := base.With(
				zap.String("trace.id", c.Response().Header().Get(echo.HeaderXRequestID)),
				zap.String("http.route", c.Path()),
			)
			c.SetRequest(r.WithContext(logging.SetLoggerInContext(r.Context(), logger)))
			return next(c)
		}
	}
}
