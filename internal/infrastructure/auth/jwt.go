package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
)

// ErrInvalidToken token failed signature or claims check
var ErrInvalidToken = errors.New("invalid token")

// LearnerClaims claims carried by a learner session token
type LearnerClaims struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Name  string `json:"name"`

	jwt.StandardClaims
}

// TimeRemaining remaining time before the token get expired
func (tk *LearnerClaims) TimeRemaining(now time.Time) time.Duration {
	exp := time.Unix(tk.ExpiresAt, 0)
	if exp.Before(now) {
		return 0
	}
	return exp.Sub(now)
}

// Identity minimal learner identity used to mint a token
type Identity struct {
	ID    string
	Email string
	Name  string
}

// JWTUtil .
type JWTUtil struct {
	secret    []byte
	tokenName string
	timeout   time.Duration
	method    jwt.SigningMethod
}

// NewJWTUtil create a JWTUtil instance, method is either HS256 or HS512
func NewJWTUtil(method, secret, tokenName string, timeout time.Duration) *JWTUtil {
	var signMethod jwt.SigningMethod
	switch method {
	case "HS512":
		signMethod = jwt.SigningMethodHS512
	default:
		signMethod = jwt.SigningMethodHS256
	}
	return &JWTUtil{
		method:    signMethod,
		secret:    []byte(secret),
		tokenName: tokenName,
		timeout:   timeout,
	}
}

// TokenName cookie and context key of the token
func (ju *JWTUtil) TokenName() string {
	return ju.tokenName
}

// Sign sign token
func (ju *JWTUtil) Sign(claims *LearnerClaims) (string, error) {
	token := jwt.NewWithClaims(ju.method, claims)
	return token.SignedString(ju.secret)
}

// Validate validate token string with secret and return LearnerClaims
func (ju *JWTUtil) Validate(tokenStr string) (*LearnerClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &LearnerClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != ju.method.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %s", token.Method.Alg())
		}
		return ju.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*LearnerClaims)
	if !ok || !token.Valid || claims.UID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GenerateTokenStr generate learner token
func (ju *JWTUtil) GenerateTokenStr(ident *Identity) (string, error) {
	expires := time.Now().Add(ju.timeout).Unix()
	return ju.Sign(&LearnerClaims{
		UID:   ident.ID,
		Email: ident.Email,
		Name:  ident.Name,
		StandardClaims: jwt.StandardClaims{
			ExpiresAt: expires,
		},
	})
}

// RefreshToken push token expiration forward by the session timeout
func (ju *JWTUtil) RefreshToken(claims *LearnerClaims) *LearnerClaims {
	claims.ExpiresAt = time.Now().Add(ju.timeout).Unix()
	return claims
}

// SetClientToken set token in client cookie
func (ju *JWTUtil) SetClientToken(c echo.Context, tokenStr string) {
	c.SetCookie(&http.Cookie{
		Name:     ju.tokenName,
		Value:    tokenStr,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(ju.timeout),
	})
}

// ClearClientToken clear client cookie
func (ju *JWTUtil) ClearClientToken(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     ju.tokenName,
		Value:    "",
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

// SetContextToken set token in App context
func (ju *JWTUtil) SetContextToken(c echo.Context, token *LearnerClaims) {
	c.Set(ju.tokenName, token)
}

// GetContextToken get token from App context
func (ju *JWTUtil) GetContextToken(c echo.Context) *LearnerClaims {
	v, ok := c.Get(ju.tokenName).(*LearnerClaims)
	if ok {
		return v
	}
	return nil
}

// ExtractToken get token string from request, cookie first then bearer header
func (ju *JWTUtil) ExtractToken(c echo.Context) (string, error) {
	if token, err := c.Cookie(ju.tokenName); err == nil && token.Value != "" {
		return token.Value, nil
	}
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	const prefix = "Bearer "
	if len(header) > len(prefix) && header[:len(prefix)] == prefix {
		return header[len(prefix):], nil
	}
	return "", http.ErrNoCookie
}
