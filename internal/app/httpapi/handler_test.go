package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	app "github.com/R3E-Network/raffle_engine/internal/app"
	"github.com/R3E-Network/raffle_engine/internal/app/domain/round"
	"github.com/R3E-Network/raffle_engine/internal/app/services/rounds"
	"github.com/R3E-Network/raffle_engine/internal/config"
	"github.com/R3E-Network/raffle_engine/internal/middleware"
)

type env struct {
	handler http.Handler
	app     *app.Application
	clock   *rounds.ManualClock
}

func newEnv(t *testing.T, opts Options) *env {
	t.Helper()

	clock := rounds.NewManualClock(100)
	params := config.DefaultRaffleParams()
	params.RoundDurationSeconds = 1 // expire almost immediately

	application, err := app.New(app.Stores{}, app.Dependencies{
		Clock:   clock,
		Entropy: rounds.NewHashChainSource("http-test", clock),
	}, params, nil)
	if err != nil {
		t.Fatalf("build application: %v", err)
	}
	if _, err := application.Rounds.EnsureCurrentRound(context.Background()); err != nil {
		t.Fatalf("open round: %v", err)
	}

	return &env{handler: NewHandler(application, opts), app: application, clock: clock}
}

func (e *env) do(t *testing.T, method, path string, body interface{}, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestDepositAndSnapshotFlow(t *testing.T) {
	e := newEnv(t, Options{})

	rec := e.do(t, http.MethodPost, "/rounds/current/deposits", map[string]interface{}{
		"participant_id": "alice", "amount": 10,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("deposit status %d: %s", rec.Code, rec.Body.String())
	}

	rec = e.do(t, http.MethodGet, "/rounds/current", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot status %d", rec.Code)
	}
	var snap round.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Phase != round.PhaseWaiting || snap.ParticipantCount != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}

	// Second depositor activates the round.
	e.do(t, http.MethodPost, "/rounds/current/deposits", map[string]interface{}{
		"participant_id": "bob", "amount": 30,
	})
	rec = e.do(t, http.MethodGet, "/rounds/current", nil)
	json.Unmarshal(rec.Body.Bytes(), &snap)
	if snap.Phase != round.PhaseActive || snap.Pool != 40 {
		t.Fatalf("expected active round with pool 40, got %+v", snap)
	}
}

func TestDepositValidationStatuses(t *testing.T) {
	e := newEnv(t, Options{})

	rec := e.do(t, http.MethodPost, "/rounds/current/deposits", map[string]interface{}{"amount": 10})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing participant_id: status %d", rec.Code)
	}

	rec = e.do(t, http.MethodPost, "/rounds/current/deposits", map[string]interface{}{
		"participant_id": "alice", "amount": 1,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("below-minimum deposit: status %d", rec.Code)
	}

	rec = e.do(t, http.MethodPost, "/rounds/current/deposits", map[string]interface{}{
		"participant_id": "alice", "amount": 10, "bogus": true,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown field: status %d", rec.Code)
	}
}

func TestWithdrawEndpoint(t *testing.T) {
	e := newEnv(t, Options{})

	e.do(t, http.MethodPost, "/rounds/current/deposits", map[string]interface{}{
		"participant_id": "alice", "amount": 10,
	})

	rec := e.do(t, http.MethodDelete, "/rounds/current/deposits/alice", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("withdraw status %d: %s", rec.Code, rec.Body.String())
	}
	rec = e.do(t, http.MethodDelete, "/rounds/current/deposits/alice", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("double withdraw status %d", rec.Code)
	}
}

func TestDrawEndpointsStatuses(t *testing.T) {
	e := newEnv(t, Options{})

	// Activate round 1.
	e.do(t, http.MethodPost, "/rounds/current/deposits", map[string]interface{}{"participant_id": "alice", "amount": 10})
	e.do(t, http.MethodPost, "/rounds/current/deposits", map[string]interface{}{"participant_id": "bob", "amount": 30})

	// Execute without a request.
	rec := e.do(t, http.MethodPost, "/rounds/1/draw/execute", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("execute before request: status %d", rec.Code)
	}

	// One-second round duration has elapsed by the next wall read.
	time.Sleep(1100 * time.Millisecond)

	rec = e.do(t, http.MethodPost, "/rounds/1/draw/request", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("request draw: status %d: %s", rec.Code, rec.Body.String())
	}
	var req round.DrawRequest
	json.Unmarshal(rec.Body.Bytes(), &req)

	rec = e.do(t, http.MethodPost, "/rounds/1/draw/request", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate request: status %d", rec.Code)
	}

	// Inside the confirmation delay.
	rec = e.do(t, http.MethodPost, "/rounds/1/draw/execute", nil)
	if rec.Code != http.StatusTooEarly {
		t.Fatalf("execute too early: status %d", rec.Code)
	}

	e.clock.Set(req.WindowStart)
	rec = e.do(t, http.MethodPost, "/rounds/1/draw/execute", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("execute: status %d: %s", rec.Code, rec.Body.String())
	}

	rec = e.do(t, http.MethodGet, "/rounds/1/distribution", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("distribution: status %d", rec.Code)
	}

	rec = e.do(t, http.MethodGet, "/rounds/99", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown round: status %d", rec.Code)
	}
}

func TestExpiredWindowStatuses(t *testing.T) {
	e := newEnv(t, Options{})

	e.do(t, http.MethodPost, "/rounds/current/deposits", map[string]interface{}{"participant_id": "alice", "amount": 10})
	e.do(t, http.MethodPost, "/rounds/current/deposits", map[string]interface{}{"participant_id": "bob", "amount": 30})
	time.Sleep(1100 * time.Millisecond)

	rec := e.do(t, http.MethodPost, "/rounds/1/draw/request", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("request draw: status %d", rec.Code)
	}
	var req round.DrawRequest
	json.Unmarshal(rec.Body.Bytes(), &req)

	e.clock.Set(req.WindowEnd + 1)
	rec = e.do(t, http.MethodPost, "/rounds/1/draw/execute", nil)
	if rec.Code != http.StatusGone {
		t.Fatalf("expired window: status %d", rec.Code)
	}

	// Operator cancellation recovers the funds.
	rec = e.do(t, http.MethodPost, "/rounds/1/cancel", map[string]interface{}{"reason": "window expired"})
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel: status %d: %s", rec.Code, rec.Body.String())
	}
}

func TestOperatorAuthGuardsCancel(t *testing.T) {
	secret := "test-operator-secret"
	e := newEnv(t, Options{OperatorAuth: middleware.NewOperatorAuth(secret, nil)})

	rec := e.do(t, http.MethodPost, "/rounds/1/cancel", map[string]interface{}{"reason": "x"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("cancel without token: status %d", rec.Code)
	}

	rec = e.do(t, http.MethodPost, "/rounds/1/cancel", map[string]interface{}{"reason": "x"},
		"Authorization", "Bearer not-a-token")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("cancel with garbage token: status %d", rec.Code)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, middleware.OperatorClaims{
		Operator: "ops-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	rec = e.do(t, http.MethodPost, "/rounds/1/cancel", map[string]interface{}{"reason": "x"},
		"Authorization", fmt.Sprintf("Bearer %s", signed))
	if rec.Code != http.StatusOK {
		t.Fatalf("cancel with valid token: status %d: %s", rec.Code, rec.Body.String())
	}
}

func TestListRoundsAndHealth(t *testing.T) {
	e := newEnv(t, Options{})

	rec := e.do(t, http.MethodGet, "/healthz", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health: status %d", rec.Code)
	}

	rec = e.do(t, http.MethodGet, "/rounds", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: status %d", rec.Code)
	}
	var list []round.Round
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("expected one open round, got %d", len(list))
	}

	rec = e.do(t, http.MethodGet, "/rounds?limit=bogus", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: status %d", rec.Code)
	}
}
