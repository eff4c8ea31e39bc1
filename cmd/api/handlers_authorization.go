package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"cardcore/internal/authorization"
	"cardcore/internal/ledger"
	"cardcore/internal/money"

	"github.com/go-chi/chi/v5"
)

type authorizeRequest struct {
	CardID               string `json:"cardId"`
	Amount               string `json:"amount"`
	Currency             string `json:"currency"`
	MerchantName         string `json:"merchantName"`
	MerchantCategoryCode string `json:"merchantCategoryCode"`
	MerchantCity         string `json:"merchantCity"`
	MerchantCountry      string `json:"merchantCountry"`
}

type authorizeResponse struct {
	AuthorizationID string `json:"authorizationId"`
	Status          string `json:"status"`
	DeclineReason   string `json:"declineReason,omitempty"`
}

func (d *apiDeps) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	amount, err := money.NewFromString(req.Amount, money.Currency(req.Currency))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount/currency")
		return
	}

	authorizationID := newID()
	idempotencyKey := requestIdempotencyKey(r, authorizationID)

	resp, err := d.authSvc.Authorize(r.Context(), authorization.Request{
		AuthorizationID: authorizationID,
		CardID:          req.CardID,
		Amount:          amount,
		Merchant: ledger.Merchant{
			Name:    req.MerchantName,
			MCC:     req.MerchantCategoryCode,
			City:    req.MerchantCity,
			Country: req.MerchantCountry,
		},
		IdempotencyKey: idempotencyKey,
	})
	if err != nil {
		writePipelineError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, authorizeResponse{
		AuthorizationID: resp.AuthorizationID,
		Status:          string(resp.Status),
		DeclineReason:   resp.DeclineReason,
	})
}

func (d *apiDeps) handleClear(w http.ResponseWriter, r *http.Request) {
	authorizationID := chi.URLParam(r, "authorizationId")
	m, err := parseAmountQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	idempotencyKey := requestIdempotencyKey(r, "clear:"+authorizationID+":"+m.String())

	if err := d.settleSvc.Clear(r.Context(), authorizationID, m, idempotencyKey); err != nil {
		writePipelineError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (d *apiDeps) handleRelease(w http.ResponseWriter, r *http.Request) {
	authorizationID := chi.URLParam(r, "authorizationId")
	idempotencyKey := requestIdempotencyKey(r, "release:"+authorizationID)

	if err := d.settleSvc.Release(r.Context(), authorizationID, idempotencyKey); err != nil {
		writePipelineError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (d *apiDeps) handleReverse(w http.ResponseWriter, r *http.Request) {
	authorizationID := chi.URLParam(r, "authorizationId")
	m, err := parseAmountQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	idempotencyKey := requestIdempotencyKey(r, "reverse:"+authorizationID+":"+m.String())

	if err := d.settleSvc.Reverse(r.Context(), authorizationID, m, idempotencyKey); err != nil {
		writePipelineError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

var errInvalidAmountQuery = errors.New("amount and currency query parameters are required")

func parseAmountQuery(r *http.Request) (money.Money, error) {
	amount := r.URL.Query().Get("amount")
	currency := r.URL.Query().Get("currency")
	if amount == "" || currency == "" {
		return money.Money{}, errInvalidAmountQuery
	}
	return money.NewFromString(amount, money.Currency(currency))
}
