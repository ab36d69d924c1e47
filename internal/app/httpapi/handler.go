// Package httpapi exposes the raffle engine over REST.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	app "github.com/R3E-Network/raffle_engine/internal/app"
	"github.com/R3E-Network/raffle_engine/internal/app/domain/round"
	"github.com/R3E-Network/raffle_engine/internal/middleware"
)

// handler bundles HTTP endpoints for the round engine.
type handler struct {
	app *app.Application
}

// Options carries the middleware applied to handler groups.
type Options struct {
	// OperatorAuth guards destructive endpoints. Nil leaves them open,
	// which is only acceptable in development.
	OperatorAuth *middleware.OperatorAuth
	// DrawLimiter throttles the permissionless draw endpoints.
	DrawLimiter *middleware.RateLimiter
}

// NewHandler returns a router exposing the round REST API.
func NewHandler(application *app.Application, opts Options) http.Handler {
	h := &handler{app: application}
	r := mux.NewRouter()

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)

	r.HandleFunc("/rounds", h.listRounds).Methods(http.MethodGet)
	r.HandleFunc("/rounds/current", h.currentRound).Methods(http.MethodGet)
	r.HandleFunc("/rounds/current/deposits", h.deposit).Methods(http.MethodPost)
	r.HandleFunc("/rounds/current/deposits/{participantId}", h.withdraw).Methods(http.MethodDelete)
	r.HandleFunc("/rounds/current/tickets", h.addTickets).Methods(http.MethodPost)
	r.HandleFunc("/rounds/{id:[0-9]+}", h.getRound).Methods(http.MethodGet)
	r.HandleFunc("/rounds/{id:[0-9]+}/draw", h.getDraw).Methods(http.MethodGet)
	r.HandleFunc("/rounds/{id:[0-9]+}/distribution", h.getDistribution).Methods(http.MethodGet)
	r.HandleFunc("/rounds/{id:[0-9]+}/weights/{participantId}", h.getWeight).Methods(http.MethodGet)

	draw := r.PathPrefix("/rounds/{id:[0-9]+}/draw").Subrouter()
	draw.HandleFunc("/request", h.requestDraw).Methods(http.MethodPost)
	draw.HandleFunc("/execute", h.executeDraw).Methods(http.MethodPost)
	if opts.DrawLimiter != nil {
		draw.Use(opts.DrawLimiter.Handler)
	}

	operator := r.PathPrefix("/rounds/{id:[0-9]+}/cancel").Subrouter()
	operator.HandleFunc("", h.cancelRound).Methods(http.MethodPost)
	if opts.OperatorAuth != nil {
		operator.Use(opts.OperatorAuth.Handler)
	}

	ops := r.PathPrefix("/ops").Subrouter()
	ops.HandleFunc("/stuck", h.stuckRounds).Methods(http.MethodGet)
	if opts.OperatorAuth != nil {
		ops.Use(opts.OperatorAuth.Handler)
	}

	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) listRounds(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, errors.New("invalid limit"))
			return
		}
		limit = parsed
	}
	rounds, err := h.app.Rounds.ListRounds(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, rounds)
}

func (h *handler) currentRound(w http.ResponseWriter, r *http.Request) {
	snap, err := h.app.Rounds.CurrentSnapshot(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *handler) getRound(w http.ResponseWriter, r *http.Request) {
	id, ok := roundID(w, r)
	if !ok {
		return
	}
	snap, err := h.app.Rounds.Snapshot(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *handler) deposit(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ParticipantID string `json:"participant_id"`
		Amount        uint64 `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.ParticipantID == "" {
		writeError(w, http.StatusBadRequest, errors.New("participant_id is required"))
		return
	}

	receipt, err := h.app.Rounds.Deposit(r.Context(), payload.ParticipantID, payload.Amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (h *handler) withdraw(w http.ResponseWriter, r *http.Request) {
	participantID := mux.Vars(r)["participantId"]
	receipt, err := h.app.Rounds.Withdraw(r.Context(), participantID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (h *handler) addTickets(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		ParticipantID string `json:"participant_id"`
		Amount        uint64 `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.ParticipantID == "" {
		writeError(w, http.StatusBadRequest, errors.New("participant_id is required"))
		return
	}

	receipt, err := h.app.Rounds.AddTickets(r.Context(), payload.ParticipantID, payload.Amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

func (h *handler) requestDraw(w http.ResponseWriter, r *http.Request) {
	id, ok := roundID(w, r)
	if !ok {
		return
	}
	req, err := h.app.Rounds.RequestDraw(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

func (h *handler) executeDraw(w http.ResponseWriter, r *http.Request) {
	id, ok := roundID(w, r)
	if !ok {
		return
	}
	result, err := h.app.Rounds.ExecuteDraw(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) getDraw(w http.ResponseWriter, r *http.Request) {
	id, ok := roundID(w, r)
	if !ok {
		return
	}
	req, err := h.app.Rounds.DrawRequest(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *handler) getDistribution(w http.ResponseWriter, r *http.Request) {
	id, ok := roundID(w, r)
	if !ok {
		return
	}
	dist, err := h.app.Rounds.Distribution(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dist)
}

func (h *handler) getWeight(w http.ResponseWriter, r *http.Request) {
	id, ok := roundID(w, r)
	if !ok {
		return
	}
	participantID := mux.Vars(r)["participantId"]
	weight, err := h.app.Rounds.Weight(r.Context(), id, participantID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"round_id":       id,
		"participant_id": participantID,
		"weight":         weight,
	})
}

func (h *handler) cancelRound(w http.ResponseWriter, r *http.Request) {
	id, ok := roundID(w, r)
	if !ok {
		return
	}
	var payload struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if payload.Reason == "" {
		payload.Reason = "operator cancellation"
	}

	receipt, err := h.app.Rounds.Cancel(r.Context(), id, payload.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (h *handler) stuckRounds(w http.ResponseWriter, r *http.Request) {
	stuck, err := h.app.Rounds.Stuck(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, stuck)
}

func roundID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid round id"))
		return 0, false
	}
	return id, true
}

// writeServiceError maps domain errors onto HTTP statuses. Transient draw
// conditions map to 425 so clients know a plain retry will do.
func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, round.ErrRoundNotFound),
		errors.Is(err, round.ErrNothingToWithdraw):
		status = http.StatusNotFound
	case errors.Is(err, round.ErrBelowMinimumDeposit),
		errors.Is(err, round.ErrTicketLimitExceeded):
		status = http.StatusBadRequest
	case errors.Is(err, round.ErrInvalidPhaseTransition),
		errors.Is(err, round.ErrAlreadyRequested),
		errors.Is(err, round.ErrInsufficientParticipants),
		errors.Is(err, round.ErrDrawNotRequested),
		errors.Is(err, round.ErrNoTicketsToDraw):
		status = http.StatusConflict
	case errors.Is(err, round.ErrDrawNotReady):
		status = http.StatusTooEarly
	case errors.Is(err, round.ErrDrawWindowExpired):
		status = http.StatusGone
	case errors.Is(err, round.ErrRandomnessUnavailable):
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, err)
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
