package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/malwarebo/mintbridge/models"
	"github.com/malwarebo/mintbridge/services"
	"github.com/malwarebo/mintbridge/stores"
	"github.com/malwarebo/mintbridge/utils"
)

type PurchaseHandler struct {
	orchestrator *services.Orchestrator
	purchases    *stores.PurchaseStore
	events       *stores.EventStore
	ledgerTxs    *stores.LedgerTxStore
}

func CreatePurchaseHandler(orchestrator *services.Orchestrator, purchases *stores.PurchaseStore, events *stores.EventStore, ledgerTxs *stores.LedgerTxStore) *PurchaseHandler {
	return &PurchaseHandler{
		orchestrator: orchestrator,
		purchases:    purchases,
		events:       events,
		ledgerTxs:    ledgerTxs,
	}
}

func (h *PurchaseHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req models.CreatePurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	purchase, err := h.orchestrator.CreateOrGetPurchase(r.Context(), &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, purchase)
}

func (h *PurchaseHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	purchase, err := h.purchases.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, utils.ErrPurchaseNotFound) {
			writeError(w, http.StatusNotFound, "Purchase not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	events, err := h.events.ListByPurchase(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	legs, err := h.ledgerTxs.ListByPurchase(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"purchase":  purchase,
		"events":    events,
		"ledger_tx": legs,
	})
}

func (h *PurchaseHandler) HandleConfirmFunds(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req models.ConfirmFundsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.FundsTxHash == "" {
		writeError(w, http.StatusBadRequest, "funds_tx_hash is required")
		return
	}

	if err := h.orchestrator.ConfirmFunds(r.Context(), id, req.FundsTxHash); err != nil {
		switch {
		case errors.Is(err, utils.ErrPurchaseNotFound):
			writeError(w, http.StatusNotFound, "Purchase not found")
		case errors.Is(err, utils.ErrFundsHashConflict):
			writeError(w, http.StatusConflict, "Purchase already confirmed with a different funds transaction")
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "funds_confirmed"})
}

func (h *PurchaseHandler) HandleDeliver(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	result, err := h.orchestrator.ProcessAssetDelivery(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, utils.ErrPurchaseNotFound):
			writeError(w, http.StatusNotFound, "Purchase not found")
			return
		case errors.Is(err, utils.ErrLockNotAcquired):
			// Another worker holds the purchase; the caller retries later.
			writeError(w, http.StatusConflict, "Delivery already in progress")
			return
		}
		if result != nil {
			// The delivery ran and failed; the result carries the verdict.
			writeJSON(w, http.StatusOK, result)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}
