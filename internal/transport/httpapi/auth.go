package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookshop/internal/domain"
)

type callerKey struct{}

var (
	errMissingToken = fmt.Errorf("%w: bearer token is required", domain.ErrUnauthorized)
	errInvalidToken = fmt.Errorf("%w: bearer token is invalid", domain.ErrUnauthorized)
)

// Authenticator проверяет HS256 bearer-токены; subject токена содержит id пользователя.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

// NewAuthenticator создаёт проверку токенов с общим секретом.
func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret), now: time.Now}
}

// Issue подписывает токен для пользователя (используется dev-утилитами и тестами).
func (a *Authenticator) Issue(userID string, ttl time.Duration) (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		Subject:  userID,
		IssuedAt: jwt.NewNumericDate(now),
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify разбирает токен и возвращает id пользователя.
func (a *Authenticator) Verify(raw string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errInvalidToken, err)
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", errInvalidToken
	}
	return subject, nil
}

// Middleware кладёт id вызывающего в контекст или отвечает 401.
func (a *Authenticator) Middleware(logger *log.Entry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				writeError(w, logger, errMissingToken)
				return
			}

			userID, err := a.Verify(strings.TrimSpace(raw))
			if err != nil {
				logger.WithError(err).Debug("rejected bearer token")
				writeError(w, logger, errInvalidToken)
				return
			}

			next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), userID)))
		})
	}
}

func withCaller(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, callerKey{}, userID)
}

// CallerFromContext возвращает id пользователя, установленный Middleware.
func CallerFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(callerKey{}).(string)
	return userID, ok && userID != ""
}
