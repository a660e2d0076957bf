package rest

import (
	"net/http"

	"github.com/google/uuid"
)

func (h *Handler) evaluateTransfer(w http.ResponseWriter, r *http.Request) {
	var req EvaluateTransferRequest
	if !h.decode(w, r, &req) {
		return
	}

	risk, err := h.transfers.EvaluateTransfer(r.Context(),
		req.SourceCountryID, req.DestinationCountryID, req.MechanismID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, risk)
}

func (h *Handler) validateMechanism(w http.ResponseWriter, r *http.Request) {
	var req ValidateMechanismRequest
	if !h.decode(w, r, &req) {
		return
	}

	requirement, err := h.transfers.ValidateMechanismRequirement(r.Context(),
		req.SourceCountryID, req.DestinationCountryID, req.MechanismID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, requirement)
}

func (h *Handler) assessRecipientTransfer(w http.ResponseWriter, r *http.Request) {
	orgID, ok := organization(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	sourceID, err := uuid.Parse(q.Get("source_country_id"))
	if err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, "INVALID_SOURCE_COUNTRY",
			"source_country_id must be a UUID")
		return
	}
	var mechanismID *uuid.UUID
	if raw := q.Get("mechanism_id"); raw != "" {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			writeErrorCode(w, r, http.StatusBadRequest, "INVALID_MECHANISM",
				"mechanism_id must be a UUID")
			return
		}
		mechanismID = &parsed
	}

	assessment, err := h.transfers.AssessRecipientTransfer(r.Context(), orgID, id, sourceID, mechanismID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, assessment)
}

func (h *Handler) listCountries(w http.ResponseWriter, r *http.Request) {
	countries, err := h.refs.ListCountries(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, countries)
}

func (h *Handler) listMechanisms(w http.ResponseWriter, r *http.Request) {
	mechanisms, err := h.refs.ListMechanisms(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, mechanisms)
}
