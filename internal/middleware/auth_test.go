package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, secret string, method jwt.SigningMethod, expires time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(method, OperatorClaims{
		Operator: "ops-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return signed
}

func TestOperatorAuth(t *testing.T) {
	auth := NewOperatorAuth("secret", nil)

	var seenOperator string
	handler := auth.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenOperator = Operator(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	do := func(header string) int {
		req := httptest.NewRequest(http.MethodPost, "/rounds/1/cancel", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	if code := do(""); code != http.StatusUnauthorized {
		t.Fatalf("missing header: %d", code)
	}
	if code := do("Basic abc"); code != http.StatusUnauthorized {
		t.Fatalf("wrong scheme: %d", code)
	}
	if code := do("Bearer garbage"); code != http.StatusUnauthorized {
		t.Fatalf("garbage token: %d", code)
	}

	expired := signToken(t, "secret", jwt.SigningMethodHS256, time.Now().Add(-time.Hour))
	if code := do("Bearer " + expired); code != http.StatusUnauthorized {
		t.Fatalf("expired token: %d", code)
	}

	wrongKey := signToken(t, "other-secret", jwt.SigningMethodHS256, time.Now().Add(time.Hour))
	if code := do("Bearer " + wrongKey); code != http.StatusUnauthorized {
		t.Fatalf("wrong key: %d", code)
	}

	valid := signToken(t, "secret", jwt.SigningMethodHS256, time.Now().Add(time.Hour))
	if code := do("Bearer " + valid); code != http.StatusOK {
		t.Fatalf("valid token: %d", code)
	}
	if seenOperator != "ops-1" {
		t.Fatalf("operator id not propagated, got %q", seenOperator)
	}
}
