// Package middleware provides HTTP middleware for the raffle engine API.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/R3E-Network/raffle_engine/pkg/logger"
)

type contextKey string

const operatorKey contextKey = "operator"

// OperatorClaims are the claims carried by operator tokens. Operator tokens
// gate destructive endpoints, most importantly round cancellation.
type OperatorClaims struct {
	Operator string `json:"operator"`
	Role     string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// OperatorAuth validates HS256 bearer tokens on operator-only routes.
type OperatorAuth struct {
	secret []byte
	log    *logger.Logger
}

// NewOperatorAuth creates the operator auth middleware.
func NewOperatorAuth(secret string, log *logger.Logger) *OperatorAuth {
	if log == nil {
		log = logger.NewDefault("auth")
	}
	return &OperatorAuth{secret: []byte(secret), log: log}
}

// Handler rejects requests without a valid operator token.
func (m *OperatorAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			unauthorized(w, "missing Authorization header")
			return
		}
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			unauthorized(w, "invalid Authorization header format")
			return
		}

		claims, err := m.validateToken(parts[1])
		if err != nil {
			m.log.WithError(err).
				WithField("path", r.URL.Path).
				Warn("operator token rejected")
			unauthorized(w, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), operatorKey, claims.Operator)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *OperatorAuth) validateToken(tokenString string) (*OperatorClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &OperatorClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*OperatorClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// Operator returns the authenticated operator id from the context, if any.
func Operator(ctx context.Context) string {
	op, _ := ctx.Value(operatorKey).(string)
	return op
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
