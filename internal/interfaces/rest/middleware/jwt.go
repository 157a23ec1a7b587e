package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pot-code/course-progress/internal/infrastructure/auth"
)

// ValidateTokenOption ...
type ValidateTokenOption struct {
	// InBlackList reports whether a signed out token is presented
	InBlackList func(ctx context.Context, token string) (bool, error)
}

// RefreshTokenOption ...
type RefreshTokenOption struct {
	// Threshold remaining lifetime under which a new token is issued
	Threshold time.Duration
	Now       func() time.Time
}

func unauthorized(reason string) error {
	return echo.NewHTTPError(http.StatusUnauthorized, reason)
}

// VerifyToken reject requests without a valid, not signed out learner token.
// The claims are stored in the echo context on success.
func VerifyToken(ju *auth.JWTUtil, options ...*ValidateTokenOption) echo.MiddlewareFunc {
	var inBlacklist func(context.Context, string) (bool, error)
	if len(options) > 0 {
		inBlacklist = options[0].InBlackList
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tokenStr, err := ju.ExtractToken(c)
			if err != nil {
				return unauthorized("missing token")
			}
			claims, err := ju.Validate(tokenStr)
			if err != nil {
				return unauthorized(err.Error())
			}
			if inBlacklist != nil {
				listed, err := inBlacklist(c.Request().Context(), tokenStr)
				if err != nil {
					return err
				}
				if listed {
					return unauthorized("token signed out")
				}
			}
			ju.SetContextToken(c, claims)
			return next(c)
		}
	}
}

// RefreshToken issue a fresh cookie when the token is about to expire, must be chained after VerifyToken
func RefreshToken(ju *auth.JWTUtil, options ...*RefreshTokenOption) echo.MiddlewareFunc {
	cfg := &RefreshTokenOption{Threshold: 5 * time.Minute, Now: time.Now}
	if len(options) > 0 {
		if option := options[0]; option.Threshold > 0 {
			cfg.Threshold = option.Threshold
		}
		if option := options[0]; option.Now != nil {
			cfg.Now = option.Now
		}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := ju.GetContextToken(c)
			if claims == nil || claims.TimeRemaining(cfg.Now()) >= cfg.Threshold {
				return next(c)
			}
			tokenStr, err := ju.Sign(ju.RefreshToken(claims))
			if err != nil {
				return err
			}
			ju.SetClientToken(c, tokenStr)
			return next(c)
		}
	}
}
