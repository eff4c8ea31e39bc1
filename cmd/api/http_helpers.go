package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"cardcore/internal/coreerr"
	"cardcore/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

type errorBody struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Status: status})
}

// writePipelineError maps a coreerr.Kind to the status code called for in
// the error handling design: 400 for validation, state, and
// insufficient-funds errors, 404 for unknown card/account, 500 otherwise.
func writePipelineError(w http.ResponseWriter, err error) {
	var kind coreerr.Kind
	var ce *coreerr.Error
	if errors.As(err, &ce) {
		kind = ce.Kind
	}

	switch kind {
	case coreerr.InvalidArgument, coreerr.InvalidState, coreerr.InsufficientFunds:
		writeError(w, http.StatusBadRequest, err.Error())
	case coreerr.NotFound:
		writeError(w, http.StatusNotFound, err.Error())
	case coreerr.BankCore:
		logger.Error("bank core error on settlement path", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		logger.Error("unhandled pipeline error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func requestIdempotencyKey(r *http.Request, fallback string) string {
	if key := r.Header.Get("Idempotency-Key"); key != "" {
		return key
	}
	return fallback
}

func newID() string {
	return uuid.New().String()
}
