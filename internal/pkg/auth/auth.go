package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

const userKey = "whispers.user"

// Authenticator validates bearer tokens signed with HS256
type Authenticator struct {
	secret []byte
	parser *jwt.Parser
}

// NewAuthenticator creates authenticator
func NewAuthenticator(secret string) (*Authenticator, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("no auth secret")
	}
	return &Authenticator{secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())}, nil
}

// Middleware rejects requests without a valid token and stores the token subject in the echo context
func (a *Authenticator) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token, err := takeBearer(c.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				goapp.Log.Info().Err(err).Send()
				return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
			}
			user, err := a.Validate(token)
			if err != nil {
				goapp.Log.Info().Err(err).Msg("wrong token")
				return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
			}
			c.Set(userKey, user)
			return next(c)
		}
	}
}

// Validate checks token and returns its subject
func (a *Authenticator) Validate(token string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := a.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("can't parse token: %w", err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("no sub")
	}
	return claims.Subject, nil
}

// NewToken issues a token for the user
func (a *Authenticator) NewToken(userID string, expires time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{Subject: userID, IssuedAt: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(expires))}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// UserID returns authenticated user, empty if none
func UserID(c echo.Context) string {
	res, _ := c.Get(userKey).(string)
	return res
}

func takeBearer(h string) (string, error) {
	if h == "" {
		return "", fmt.Errorf("no authorization header")
	}
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("wrong authorization header")
	}
	return strings.TrimSpace(token), nil
}
