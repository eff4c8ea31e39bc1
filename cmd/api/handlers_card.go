package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"cardcore/internal/card"
	"cardcore/internal/coreerr"
	"cardcore/internal/storage"

	"github.com/go-chi/chi/v5"
)

type createCardRequest struct {
	CardholderName string    `json:"cardholderName"`
	Last4          string    `json:"last4"`
	ExpiresAt      time.Time `json:"expiresAt"`
	OwnerID        string    `json:"ownerId"`
	BankClientRef  string    `json:"bankClientRef"`
	BankAccountRef string    `json:"bankAccountRef"`
	BankCoreType   string    `json:"bankCoreType"`
}

type cardResponse struct {
	ID             string `json:"id"`
	CardholderName string `json:"cardholderName"`
	Last4          string `json:"last4"`
	State          string `json:"state"`
	OwnerID        string `json:"ownerId"`
}

func toCardResponse(c *card.Card) cardResponse {
	return cardResponse{
		ID:             c.ID,
		CardholderName: c.CardholderName,
		Last4:          c.Last4,
		State:          string(c.State),
		OwnerID:        c.OwnerID,
	}
}

func (d *apiDeps) handleCreateCard(w http.ResponseWriter, r *http.Request) {
	var req createCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	now := time.Now().UTC()
	c := &card.Card{
		ID:             newID(),
		CardholderName: req.CardholderName,
		Last4:          req.Last4,
		ExpiresAt:      req.ExpiresAt,
		State:          card.Active,
		OwnerID:        req.OwnerID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := d.db.WithTx(r.Context(), func(ctx context.Context, q storage.Querier) error {
		if err := d.cardRepo.Create(ctx, q, c); err != nil {
			return err
		}
		mapping := &card.BankAccountMapping{
			ID:             newID(),
			CardID:         c.ID,
			BankClientRef:  req.BankClientRef,
			BankAccountRef: req.BankAccountRef,
			BankCoreType:   req.BankCoreType,
			CreatedAt:      now,
			CreatedBy:      "api",
		}
		return d.mappingRepo.Create(ctx, q, mapping)
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create card")
		return
	}

	writeJSON(w, http.StatusCreated, toCardResponse(c))
}

func (d *apiDeps) handleGetCard(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := d.cardRepo.GetByID(r.Context(), d.db.Pool(), id)
	if err != nil {
		if errors.Is(err, card.ErrCardNotFound) {
			writeError(w, http.StatusNotFound, "card not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to look up card")
		return
	}
	writeJSON(w, http.StatusOK, toCardResponse(c))
}

func (d *apiDeps) handleFreezeCard(w http.ResponseWriter, r *http.Request) {
	d.transitionCard(w, r, (*card.Card).Freeze)
}

func (d *apiDeps) handleUnfreezeCard(w http.ResponseWriter, r *http.Request) {
	d.transitionCard(w, r, (*card.Card).Activate)
}

func (d *apiDeps) handleCloseCard(w http.ResponseWriter, r *http.Request) {
	d.transitionCard(w, r, (*card.Card).Close)
}

// transitionCard locks the card row for the duration of the state
// transition so a concurrent transition on the same card serializes
// instead of racing.
func (d *apiDeps) transitionCard(w http.ResponseWriter, r *http.Request, transition func(*card.Card) error) {
	id := chi.URLParam(r, "id")
	var result *card.Card

	err := d.db.WithTx(r.Context(), func(ctx context.Context, q storage.Querier) error {
		c, err := d.cardRepo.GetByIDForUpdate(ctx, q, id)
		if err != nil {
			return err
		}
		if err := transition(c); err != nil {
			return err
		}
		if err := d.cardRepo.UpdateState(ctx, q, c.ID, c.State, time.Now().UTC()); err != nil {
			return err
		}
		result = c
		return nil
	})

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, toCardResponse(result))
	case errors.Is(err, card.ErrCardNotFound):
		writeError(w, http.StatusNotFound, "card not found")
	case errors.Is(err, card.ErrInvalidTransition):
		writePipelineError(w, coreerr.Wrap(coreerr.InvalidState, "invalid card state transition", err))
	default:
		writeError(w, http.StatusInternalServerError, "failed to transition card")
	}
}
