package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ErrorHandlingOption options for error handling
type ErrorHandlingOption struct {
	// Handler renders unexpected errors and recovered panics
	Handler func(c echo.Context, err error)
	// HTTPError renders errors raised with echo.NewHTTPError
	HTTPError func(c echo.Context, err *echo.HTTPError)
}

func defaultErrorHandler(c echo.Context, err error) {
	c.String(http.StatusInternalServerError, err.Error())
}

func defaultHTTPErrorHandler(c echo.Context, err *echo.HTTPError) {
	c.String(err.Code, fmt.Sprint(err.Message))
}

// ErrorHandling render errors returned by, and panics raised in, the handler chain.
// Nothing is returned to echo afterwards.
func ErrorHandling(options ...*ErrorHandlingOption) echo.MiddlewareFunc {
	cfg := &ErrorHandlingOption{
		Handler:   defaultErrorHandler,
		HTTPError: defaultHTTPErrorHandler,
	}
	if len(options) > 0 {
		if option := options[0]; option.Handler != nil {
			cfg.Handler = option.Handler
		}
		if option := options[0]; option.HTTPError != nil {
			cfg.HTTPError = option.HTTPError
		}
	}
	render := func(c echo.Context, err error) {
		if c.Response().Committed {
			return
		}
		var he *echo.HTTPError
		if errors.As(err, &he) {
			cfg.HTTPError(c, he)
			return
		}
		cfg.Handler(c, err)
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			defer func() {
				if r := recover(); r != nil {
					perr, ok := r.(error)
					if !ok {
						perr = fmt.Errorf("%v", r)
					}
					render(c, perr)
				}
			}()
			if err := next(c); err != nil {
				render(c, err)
			}
			return nil
		}
	}
}
