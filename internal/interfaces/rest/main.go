package rest

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echo_middleware "github.com/labstack/echo/v4/middleware"
	infra "github.com/pot-code/course-progress/internal/infrastructure"
	"github.com/pot-code/course-progress/internal/infrastructure/auth"
	"github.com/pot-code/course-progress/internal/infrastructure/driver"
	"github.com/pot-code/course-progress/internal/infrastructure/validate"
	"github.com/pot-code/course-progress/internal/infrastructure/ws"
	"github.com/pot-code/course-progress/internal/interfaces/rest/handler"
	"github.com/pot-code/course-progress/internal/interfaces/rest/middleware"
	"github.com/pot-code/course-progress/internal/learner"
	"github.com/pot-code/course-progress/internal/progress"
	"github.com/pot-code/course-progress/internal/progression"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.elastic.co/apm/module/apmechov4"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Serve create http transport server, it blocks until SIGINT or SIGTERM
func Serve(
	conn driver.ITransactionalDB,
	rdb driver.KeyValueDB,
	option *infra.AppConfig,
	LearnerUseCase learner.UseCase,
	ProgressUseCase progress.UseCase,
	Registry *progression.Registry,
	logger *zap.Logger,
) error {
	var (
		app       = echo.New()
		validator = validate.NewValidator()
		jwtUtil   = auth.NewJWTUtil(option.Security.JWTMethod,
			option.Security.JWTSecret,
			option.Security.TokenName,
			option.SessionTimeout)
		jwtMiddleware = middleware.VerifyToken(jwtUtil, &middleware.ValidateTokenOption{
			InBlackList: func(ctx context.Context, token string) (bool, error) {
				return rdb.Exists(ctx, handler.BlacklistKey(token))
			},
		})
		refreshMiddleware = middleware.RefreshToken(jwtUtil, &middleware.RefreshTokenOption{
			Threshold: option.SessionRefresh,
		})
	)
	app.HideBanner = true

	registerHealthCheck(app, conn, rdb)
	if option.Env == infra.EnvDevelopment {
		registerProfileEndpoints(app)
	}
	if option.DevOP.Metrics {
		if err := registerMetrics(app, prometheus.DefaultRegisterer); err != nil {
			return err
		}
	}

	app.Use(middleware.Logging(logger, &middleware.LoggingConfig{
		Skipper: func(e echo.Context) bool {
			return strings.HasPrefix(e.Request().RequestURI, "/healthz") ||
				strings.HasPrefix(e.Request().RequestURI, "/metrics")
		},
	}))
	app.Use(middleware.ErrorHandling(
		&middleware.ErrorHandlingOption{
			Handler: func(c echo.Context, err error) {
				traceID := c.Response().Header().Get(echo.HeaderXRequestID)
				c.JSON(http.StatusInternalServerError,
					handler.NewRESTStandardError(http.StatusInternalServerError, err.Error()).SetTraceID(traceID),
				)
				logger.Error(err.Error(), zap.String("trace.id", traceID))
			},
			HTTPError: func(c echo.Context, err *echo.HTTPError) {
				traceID := c.Response().Header().Get(echo.HeaderXRequestID)
				c.JSON(err.Code, handler.NewRESTStandardError(err.Code, fmt.Sprint(err.Message)).SetTraceID(traceID))
			},
		},
	))
	app.Use(echo_middleware.Secure())
	if option.DevOP.APM {
		app.Use(apmechov4.Middleware())
	}
	if option.DevOP.Metrics {
		app.Use(middleware.Metrics())
	}
	app.Use(echo_middleware.CORS())
	app.Use(middleware.AbortRequest(&middleware.AbortRequestOption{
		Timeout: option.RequestTimeout,
		Skipper: func(c echo.Context) bool {
			// sockets outlive any request timeout
			return strings.Contains(c.Path(), "/ws/")
		},
	}))

	var (
		LearnerHandler = handler.NewLearnerHandler(jwtUtil, rdb, LearnerUseCase, validator)
		CourseHandler  = handler.NewCourseHandler(Registry, ProgressUseCase, jwtUtil, validator)
	)
	CourseHandler.SocketOption = &ws.Option{AllowedOrigins: option.Security.AllowedOrigins}

	createEndpoint(app,
		&endpoint{
			apiVersion:  "api/v1",
			middlewares: []echo.MiddlewareFunc{echo_middleware.RequestID(), middleware.SetTraceLogger(logger)},
			groups: []*apiGroup{
				{
					prefix: "/learner",
					routes: []*route{
						{"POST", "/login", LearnerHandler.HandleSignIn, nil},
						{"PUT", "/sign-out", LearnerHandler.HandleSignOut, nil},
						{"POST", "/sign-up", LearnerHandler.HandleSignUp, nil},
						{"GET", "/exists", LearnerHandler.HandleLearnerExists, nil},
					},
				},
				{
					prefix:      "/courses",
					middlewares: []echo.MiddlewareFunc{jwtMiddleware, refreshMiddleware},
					routes: []*route{
						{"GET", "/:course_id/lessons", CourseHandler.HandleGetLessons, nil},
						{"GET", "/:course_id/progress", CourseHandler.HandleGetProgress, nil},
						{"PUT", "/:course_id/progress", CourseHandler.HandlePutProgress, nil},
						{"POST", "/:course_id/lessons/:lesson_id/open", CourseHandler.HandleOpenLesson, nil},
						{"POST", "/:course_id/lessons/:lesson_id/playback", CourseHandler.HandlePlayback, nil},
						{"DELETE", "/:course_id/session", CourseHandler.HandleCloseSession, nil},
					},
				},
				{
					prefix:      "/ws",
					middlewares: []echo.MiddlewareFunc{jwtMiddleware},
					routes: []*route{
						{"GET", "/courses/:course_id", CourseHandler.HandleSessionSocket, nil},
					},
				},
			},
		})

	printRoutes(app, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start(fmt.Sprintf("%s:%d", option.Host, option.Port))
	}()

	select {
	case err := <-errCh:
		Registry.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	Registry.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return app.Shutdown(shutdownCtx)
}

func printRoutes(app *echo.Echo, logger *zap.Logger) {
	for _, route := range app.Routes() {
		if !strings.HasPrefix(route.Name, "github.com/labstack/echo") {
			logger.Info("Registered route", zap.String("method", route.Method), zap.String("path", route.Path))
		}
	}
}

func registerHealthCheck(app *echo.Echo, db driver.ITransactionalDB, rdb driver.KeyValueDB) {
	app.GET("/healthz", func(c echo.Context) error {
		ctx := c.Request().Context()
		if db.Ping(ctx) == nil && rdb.Ping(ctx) == nil {
			return c.NoContent(http.StatusOK)
		}
		return c.NoContent(http.StatusServiceUnavailable)
	})
}

func registerMetrics(app *echo.Echo, reg prometheus.Registerer) error {
	if err := progression.RegisterMetrics(reg); err != nil {
		return err
	}
	if err := middleware.RegisterMetrics(reg); err != nil {
		return err
	}
	app.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	return nil
}

func registerProfileEndpoints(app *echo.Echo) {
	expvarHandler := expvar.Handler()
	app.GET("/debug/vars", func(c echo.Context) error {
		expvarHandler.ServeHTTP(c.Response().Writer, c.Request())
		return nil
	})
	app.GET("/debug/pprof/", func(c echo.Context) error {
		pprof.Index(c.Response().Writer, c.Request())
		return nil
	})
	app.GET("/debug/pprof/:name", func(c echo.Context) error {
		switch c.Param("name") {
		case "cmdline":
			pprof.Cmdline(c.Response().Writer, c.Request())
		case "profile":
			pprof.Profile(c.Response().Writer, c.Request())
		case "symbol":
			pprof.Symbol(c.Response().Writer, c.Request())
		case "trace":
			pprof.Trace(c.Response().Writer, c.Request())
		default:
			pprof.Handler(c.Param("name")).ServeHTTP(c.Response().Writer, c.Request())
		}
		return nil
	})
}
