package middlewares

import (
	"context"
	"crypto/rand"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vidfetch/vidfetch/server/internal"
)

type contextKey struct{}

var sessionKey = contextKey{}

// Sessions hands every client an anonymous session id kept in a signed cookie.
type Sessions struct {
	secret     []byte
	cookieName string
	ttl        time.Duration
}

// NewSessions with an empty secret signs with a random key, sessions do
// not survive a restart then.
func NewSessions(secret, cookieName string, ttl time.Duration) *Sessions {
	key := []byte(secret)
	if len(key) == 0 {
		slog.Warn("no session secret configured, using an ephemeral one")
		key = make([]byte, 32)
		rand.Read(key)
	}
	if cookieName == "" {
		cookieName = "session"
	}
	if ttl <= 0 {
		ttl = time.Hour * 24
	}

	return &Sessions{
		secret:     key,
		cookieName: cookieName,
		ttl:        ttl,
	}
}

func (s *Sessions) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := s.read(r)
		if !ok {
			id = uuid.NewString()

			token, err := s.sign(id)
			if err != nil {
				slog.Error("failed to sign session", slog.String("err", err.Error()))
			} else {
				http.SetCookie(w, &http.Cookie{
					Name:     s.cookieName,
					Value:    token,
					Path:     "/",
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
					Expires:  time.Now().Add(s.ttl),
				})
			}
		}

		ctx := context.WithValue(r.Context(), sessionKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Sessions) sign(id string) (string, error) {
	now := time.Now()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   id,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	})

	return token.SignedString(s.secret)
}

func (s *Sessions) read(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil {
		return "", false
	}

	claims := &jwt.RegisteredClaims{}

	token, err := jwt.ParseWithClaims(cookie.Value, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid || claims.Subject == "" {
		return "", false
	}

	return claims.Subject, true
}

// SessionID returns the session attached by Sessions.Handler.
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey).(string)
	return id
}

// RequesterFrom describes who sent r. Behind a proxy the RealIP
// middleware must run first.
func RequesterFrom(r *http.Request) internal.Requester {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		ip = host
	}

	return internal.Requester{
		IP:        ip,
		UserAgent: r.UserAgent(),
		SessionID: SessionID(r.Context()),
	}
}
