package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type authContextKey string

const principalKey authContextKey = "principal"

// Encode signs a token for the given subject. Used by tests and by
// deployments that run linkdrop behind their own issuer with a shared secret.
func Encode(secret, subject string, claims jwt.MapClaims) (string, error) {
	if claims == nil {
		claims = jwt.MapClaims{}
	}
	claims["sub"] = subject
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func Decode(secret, token string) (string, error) {
	claims := jwt.MapClaims{}
	tkn, err := jwt.ParseWithClaims(token, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}
	if !tkn.Valid {
		return "", fmt.Errorf("invalid token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("missing subject")
	}
	return sub, nil
}

func WithPrincipal(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, principalKey, user)
}

// GetPrincipal returns the authenticated username, or "" for anonymous callers.
func GetPrincipal(ctx context.Context) string {
	user, _ := ctx.Value(principalKey).(string)
	return user
}

// Middleware resolves the caller identity. With a secret configured it
// requires a valid bearer token; without one it trusts the
// X-Forwarded-User header set by an upstream proxy. Anonymous requests
// pass through with no principal so open endpoints keep working.
func Middleware(secret string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var user string
			if secret != "" {
				header := r.Header.Get("Authorization")
				if token, ok := strings.CutPrefix(header, "Bearer "); ok {
					sub, err := Decode(secret, token)
					if err != nil {
						http.Error(w, "invalid token", http.StatusUnauthorized)
						return
					}
					user = sub
				}
			} else {
				user = r.Header.Get("X-Forwarded-User")
			}
			if user != "" {
				r = r.WithContext(WithPrincipal(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Require rejects requests that carry no principal.
func Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetPrincipal(r.Context()) == "" {
			http.Error(w, "authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
