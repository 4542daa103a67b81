package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/malwarebo/mintbridge/models"
	"github.com/malwarebo/mintbridge/services"
	"github.com/malwarebo/mintbridge/utils"
)

type CompensationHandler struct {
	compensations *services.CompensationService
}

func CreateCompensationHandler(compensations *services.CompensationService) *CompensationHandler {
	return &CompensationHandler{compensations: compensations}
}

func (h *CompensationHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req models.CreateCompensationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	comp, err := h.compensations.Create(r.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, utils.ErrPurchaseNotFound):
			writeError(w, http.StatusNotFound, "Purchase not found")
		case errors.Is(err, utils.ErrCompensationExists):
			writeError(w, http.StatusConflict, "Compensation already open for this purchase")
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, comp)
}

func (h *CompensationHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req struct {
		Approver string `json:"approver"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Approver == "" {
		writeError(w, http.StatusBadRequest, "approver is required")
		return
	}

	comp, err := h.compensations.Approve(r.Context(), id, req.Approver)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, comp)
}

func (h *CompensationHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	comp, err := h.compensations.Execute(r.Context(), id)
	if err != nil {
		if errors.Is(err, utils.ErrNotApproved) {
			writeError(w, http.StatusConflict, "Compensation is not approved")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, comp)
}

func (h *CompensationHandler) HandleListPending(w http.ResponseWriter, r *http.Request) {
	comps, err := h.compensations.ListPending(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, comps)
}
