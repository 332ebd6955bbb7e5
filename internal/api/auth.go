package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-booking/internal/actor"
)

const actorKey contextKey = "actor"

// Claims is the token issued by the identity provider: sub is the user id, role one of DOCTOR, PATIENT, ADMIN.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for the actor. Used by tooling and tests; production tokens come from the identity provider.
func IssueToken(secret string, a actor.Actor, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: a.Role.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func parseActor(secret, tokenString string) (actor.Actor, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return actor.Actor{}, err
	}
	if !token.Valid {
		return actor.Actor{}, errors.New("token is not valid")
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return actor.Actor{}, fmt.Errorf("subject: %w", err)
	}
	role, err := actor.ParseRole(claims.Role)
	if err != nil {
		return actor.Actor{}, err
	}
	return actor.Actor{ID: id, Role: role}, nil
}

// ActorMiddleware turns the bearer token into an actor on the request context.
func ActorMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "missing_authorization_header", "")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeError(w, http.StatusUnauthorized, "invalid_authorization_header", "expected a bearer token")
				return
			}

			a, err := parseActor(secret, parts[1])
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid_token", err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), actorKey, a)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ActorFrom returns the authenticated actor. ok is false outside ActorMiddleware.
func ActorFrom(ctx context.Context) (actor.Actor, bool) {
	a, ok := ctx.Value(actorKey).(actor.Actor)
	return a, ok
}
