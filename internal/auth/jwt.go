package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrMissingToken is returned when the request has no bearer token.
	ErrMissingToken = errors.New("auth: missing bearer token")
	// ErrInvalidToken covers bad signatures, expired tokens and bad subjects.
	ErrInvalidToken = errors.New("auth: invalid token")
)

type ctxKey struct{}

// Verifier validates HS256 tokens signed with a shared secret.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier builds a verifier for the given secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), now: time.Now}
}

// Sign issues a token for userID. Token issuance belongs to the identity
// service; this is used by tests and local tooling.
func (v *Verifier) Sign(userID string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": userID,
		"exp": v.now().Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Verify parses a token and returns the actor id it carries. The id is read
// from "sub", falling back to "user_id", and must be a UUID.
func (v *Verifier) Verify(raw string) (string, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}

	var subject string
	if sub, ok := claims["sub"].(string); ok && sub != "" {
		subject = sub
	} else if uid, ok := claims["user_id"].(string); ok {
		subject = uid
	}
	id, err := uuid.Parse(subject)
	if err != nil {
		return "", fmt.Errorf("%w: subject is not a uuid", ErrInvalidToken)
	}
	return id.String(), nil
}

// Middleware resolves the actor from the Authorization header and stores it
// in the request context. Requests without a valid token are handed to fail.
func Middleware(v *Verifier, fail func(http.ResponseWriter, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			scheme, token, found := strings.Cut(header, " ")
			if header == "" || !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				fail(w, ErrMissingToken)
				return
			}
			actor, err := v.Verify(strings.TrimSpace(token))
			if err != nil {
				fail(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
		})
	}
}

// WithActor returns a context carrying the actor id.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, actorID)
}

// ActorFromContext returns the actor set by Middleware.
func ActorFromContext(ctx context.Context) (string, bool) {
	actor, ok := ctx.Value(ctxKey{}).(string)
	return actor, ok && actor != ""
}
