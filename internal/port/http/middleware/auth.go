package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/aqmarket/escrow-service/internal/platform/logger"
	"github.com/golang-jwt/jwt/v5"
)

// PrincipalKeyType is a custom type for the principal context key to avoid collisions.
type PrincipalKeyType string

// PrincipalKey is the key used to store and retrieve the authenticated principal from the context.
const PrincipalKey PrincipalKeyType = "authenticatedPrincipal"

// Claims defines the structure of the JWT claims expected from the token.
// UserID is the principal string used for every authorization decision.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// PrincipalFromContext returns the authenticated principal set by JWTAuth.
func PrincipalFromContext(ctx context.Context) (string, bool) {
	principal, ok := ctx.Value(PrincipalKey).(string)
	return principal, ok && principal != ""
}

// JWTAuth authenticates requests with a Bearer token signed with the
// shared HMAC secret and stores the principal in the request context.
func JWTAuth(jwtSecret string, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				log.Warnf("JWTAuth: 'Authorization' header not found for %s %s", r.Method, r.URL.Path)
				http.Error(w, "authorization token is not provided", http.StatusUnauthorized)
				return
			}

			parts := strings.Fields(authHeader)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				log.Warnf("JWTAuth: invalid 'Authorization' header format for %s %s", r.Method, r.URL.Path)
				http.Error(w, "authorization token format is invalid, expected 'Bearer <token>'", http.StatusUnauthorized)
				return
			}
			tokenString := parts[1]

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, errors.New("unexpected signing method")
				}
				return []byte(jwtSecret), nil
			})
			if err != nil {
				log.Warnf("JWTAuth: token parsing/validation failed for %s %s: %v", r.Method, r.URL.Path, err)
				if errors.Is(err, jwt.ErrTokenExpired) {
					http.Error(w, "token has expired", http.StatusUnauthorized)
					return
				}
				http.Error(w, "token is invalid", http.StatusUnauthorized)
				return
			}
			if !token.Valid {
				http.Error(w, "token is not valid", http.StatusUnauthorized)
				return
			}
			if claims.UserID == "" {
				log.Warnf("JWTAuth: user_id not found in token claims for %s %s", r.Method, r.URL.Path)
				http.Error(w, "user_id not found in token claims", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), PrincipalKey, claims.UserID)))
		})
	}
}
