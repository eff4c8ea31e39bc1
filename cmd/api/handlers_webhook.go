package main

import (
	"encoding/json"
	"errors"
	"net/http"

	"cardcore/internal/money"
	"cardcore/internal/processor"

	"github.com/go-chi/chi/v5"
)

type webhookAuthorizeRequest struct {
	ProcessorTransactionID string `json:"processorTransactionId"`
	CardToken              string `json:"cardToken"`
	Amount                 string `json:"amount"`
	Currency               string `json:"currency"`
	MerchantName           string `json:"merchantName"`
	MerchantCategoryCode   string `json:"merchantCategoryCode"`
	MerchantCity           string `json:"merchantCity"`
	MerchantCountry        string `json:"merchantCountry"`
	IdempotencyKey         string `json:"idempotencyKey"`
}

type webhookSettleRequest struct {
	ProcessorTransactionID string `json:"processorTransactionId"`
	Amount                 string `json:"amount"`
	Currency               string `json:"currency"`
	IdempotencyKey         string `json:"idempotencyKey"`
}

func (d *apiDeps) resolveProcessor(w http.ResponseWriter, r *http.Request) (processor.Adapter, bool) {
	name := chi.URLParam(r, "processor")
	adapter, ok := d.processors[name]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown processor "+name)
		return nil, false
	}
	return adapter, true
}

func (d *apiDeps) handleWebhookAuthorize(w http.ResponseWriter, r *http.Request) {
	adapter, ok := d.resolveProcessor(w, r)
	if !ok {
		return
	}

	var req webhookAuthorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	amount, err := money.NewFromString(req.Amount, money.Currency(req.Currency))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount/currency")
		return
	}

	result, err := adapter.HandleAuthorize(r.Context(), processor.AuthorizeEvent{
		ProcessorTransactionID: req.ProcessorTransactionID,
		CardToken:              req.CardToken,
		Amount:                 amount,
		MerchantName:           req.MerchantName,
		MerchantMCC:            req.MerchantCategoryCode,
		MerchantCity:           req.MerchantCity,
		MerchantCountry:        req.MerchantCountry,
		IdempotencyKey:         requestIdempotencyKey(r, req.IdempotencyKey),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to process authorization")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (d *apiDeps) handleWebhookClear(w http.ResponseWriter, r *http.Request) {
	adapter, ok := d.resolveProcessor(w, r)
	if !ok {
		return
	}

	var req webhookSettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	amount, err := money.NewFromString(req.Amount, money.Currency(req.Currency))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount/currency")
		return
	}

	err = adapter.HandleClear(r.Context(), processor.ClearEvent{
		ProcessorTransactionID: req.ProcessorTransactionID,
		Amount:                 amount,
		IdempotencyKey:         requestIdempotencyKey(r, req.IdempotencyKey),
	})
	if err != nil {
		if errors.Is(err, processor.ErrUnknownTransaction) {
			writeError(w, http.StatusInternalServerError, "unknown transaction")
			return
		}
		writePipelineError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (d *apiDeps) handleWebhookReverse(w http.ResponseWriter, r *http.Request) {
	adapter, ok := d.resolveProcessor(w, r)
	if !ok {
		return
	}

	var req webhookSettleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	amount, err := money.NewFromString(req.Amount, money.Currency(req.Currency))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount/currency")
		return
	}

	err = adapter.HandleReverse(r.Context(), processor.ReverseEvent{
		ProcessorTransactionID: req.ProcessorTransactionID,
		Amount:                 amount,
		IdempotencyKey:         requestIdempotencyKey(r, req.IdempotencyKey),
	})
	if err != nil {
		if errors.Is(err, processor.ErrUnknownTransaction) {
			writeError(w, http.StatusInternalServerError, "unknown transaction")
			return
		}
		writePipelineError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
