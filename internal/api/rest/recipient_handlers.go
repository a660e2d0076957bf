package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/compilo/compilo-backend/internal/domain/recipient"
	"github.com/compilo/compilo-backend/internal/domain/transfer"
	"github.com/compilo/compilo-backend/internal/service/hierarchy"
	"github.com/compilo/compilo-backend/internal/service/transferrisk"
)

// HierarchyService is the slice of the hierarchy service the API exposes.
type HierarchyService interface {
	GetRecipient(ctx context.Context, id, orgID uuid.UUID) (*recipient.Recipient, error)
	GetDirectChildren(ctx context.Context, recipientID, orgID uuid.UUID) ([]*recipient.Recipient, error)
	GetDescendantTree(ctx context.Context, recipientID, orgID uuid.UUID) (*recipient.TreeNode, error)
	GetAncestorChain(ctx context.Context, recipientID, orgID uuid.UUID) ([]*recipient.Recipient, error)
	CalculateHierarchyDepth(ctx context.Context, recipientID, orgID uuid.UUID) (int, error)
	ValidatePlacement(ctx context.Context, child *recipient.Recipient, parentID *uuid.UUID) (*recipient.ValidationResult, error)
	CreateRecipient(ctx context.Context, orgID uuid.UUID, input hierarchy.CreateInput) (*recipient.Recipient, *recipient.ValidationResult, error)
	UpdateRecipient(ctx context.Context, id, orgID uuid.UUID, input hierarchy.UpdateInput) (*recipient.Recipient, *recipient.ValidationResult, error)
	Reparent(ctx context.Context, id, orgID uuid.UUID, newParentID *uuid.UUID) (*recipient.Recipient, *recipient.ValidationResult, error)
	DeactivateRecipient(ctx context.Context, id, orgID uuid.UUID) (*recipient.Recipient, error)
	DeleteRecipient(ctx context.Context, id, orgID uuid.UUID) error
	ListRecipients(ctx context.Context, orgID uuid.UUID, filter recipient.Filter) ([]*recipient.Recipient, error)
	OrphanedRecipients(ctx context.Context, orgID uuid.UUID) ([]*recipient.Recipient, error)
	ThirdCountryRecipients(ctx context.Context, orgID uuid.UUID) ([]*recipient.Recipient, error)
	GetStatistics(ctx context.Context, orgID uuid.UUID) (*hierarchy.Statistics, error)
	DuplicateExternalOrgs(ctx context.Context, orgID uuid.UUID) ([]recipient.DuplicateGroup, error)
	ExpiringAgreements(ctx context.Context, orgID uuid.UUID) ([]*recipient.Agreement, error)
	GetHealthReport(ctx context.Context, orgID uuid.UUID) (*hierarchy.HealthReport, error)
}

// TransferService is the slice of the transfer risk service the API exposes.
type TransferService interface {
	EvaluateTransfer(ctx context.Context, sourceCountryID, destCountryID uuid.UUID, mechanismID *uuid.UUID) (*transfer.TransferRisk, error)
	ValidateMechanismRequirement(ctx context.Context, sourceCountryID, destCountryID uuid.UUID, mechanismID *uuid.UUID) (*transfer.MechanismRequirement, error)
	AssessRecipientTransfer(ctx context.Context, orgID, recipientID, sourceCountryID uuid.UUID, mechanismID *uuid.UUID) (*transferrisk.RecipientTransferAssessment, error)
}

// Handler serves the JSON API.
type Handler struct {
	hierarchy HierarchyService
	transfers TransferService
	refs      transfer.ReferenceRepository
	validator *validator.Validate
}

// NewHandler creates the API handler.
func NewHandler(hierarchySvc HierarchyService, transferSvc TransferService, refs transfer.ReferenceRepository) *Handler {
	return &Handler{
		hierarchy: hierarchySvc,
		transfers: transferSvc,
		refs:      refs,
		validator: validator.New(),
	}
}

// Routes returns the API route table.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/recipients", h.listRecipients)
	mux.HandleFunc("POST /api/v1/recipients", h.createRecipient)
	mux.HandleFunc("POST /api/v1/recipients/validate", h.validatePlacement)
	mux.HandleFunc("GET /api/v1/recipients/orphans", h.listOrphans)
	mux.HandleFunc("GET /api/v1/recipients/third-country", h.listThirdCountry)
	mux.HandleFunc("GET /api/v1/recipients/statistics", h.getStatistics)
	mux.HandleFunc("GET /api/v1/recipients/health-report", h.getHealthReport)
	mux.HandleFunc("GET /api/v1/recipients/{id}", h.getRecipient)
	mux.HandleFunc("PATCH /api/v1/recipients/{id}", h.updateRecipient)
	mux.HandleFunc("DELETE /api/v1/recipients/{id}", h.deleteRecipient)
	mux.HandleFunc("GET /api/v1/recipients/{id}/children", h.getChildren)
	mux.HandleFunc("GET /api/v1/recipients/{id}/tree", h.getTree)
	mux.HandleFunc("GET /api/v1/recipients/{id}/ancestors", h.getAncestors)
	mux.HandleFunc("GET /api/v1/recipients/{id}/depth", h.getDepth)
	mux.HandleFunc("PUT /api/v1/recipients/{id}/parent", h.reparent)
	mux.HandleFunc("POST /api/v1/recipients/{id}/deactivate", h.deactivateRecipient)
	mux.HandleFunc("GET /api/v1/recipients/{id}/transfer-assessment", h.assessRecipientTransfer)

	mux.HandleFunc("GET /api/v1/external-organizations/duplicates", h.listDuplicateOrgs)
	mux.HandleFunc("GET /api/v1/agreements/expiring", h.listExpiringAgreements)

	mux.HandleFunc("POST /api/v1/transfers/evaluate", h.evaluateTransfer)
	mux.HandleFunc("POST /api/v1/transfers/validate-mechanism", h.validateMechanism)

	mux.HandleFunc("GET /api/v1/countries", h.listCountries)
	mux.HandleFunc("GET /api/v1/transfer-mechanisms", h.listMechanisms)

	return mux
}

// decode reads and validates the JSON body into dst, writing the error
// response itself on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, "INVALID_JSON", "request body is not valid JSON")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string][]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = append(fields[fe.Field()], fe.Tag())
			}
			envelope := &ErrorResponse{
				Code:    "INVALID_REQUEST",
				Message: "request validation failed",
				Fields:  fields,
			}
			writeJSONError(w, r, http.StatusBadRequest, envelope)
			return false
		}
		writeErrorCode(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return false
	}
	return true
}

func writeJSONError(w http.ResponseWriter, r *http.Request, status int, errResp *ErrorResponse) {
	envelope := ResponseEnvelope{
		Success: false,
		Error:   errResp,
		Meta:    ResponseMeta{RequestID: RequestIDFromContext(r.Context())},
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope)
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, "INVALID_ID", "path id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func organization(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	orgID, ok := OrganizationFromContext(r.Context())
	if !ok {
		writeErrorCode(w, r, http.StatusBadRequest, "MISSING_ORGANIZATION",
			"the "+OrganizationHeader+" header is required")
		return uuid.Nil, false
	}
	return orgID, true
}

func (h *Handler) listRecipients(w http.ResponseWriter, r *http.Request) {
	orgID, ok := organization(w, r)
	if !ok {
		return
	}

	var filter recipient.Filter
	q := r.URL.Query()
	if t := q.Get("type"); t != "" {
		rt := recipient.Type(t)
		filter.Type = &rt
	}
	if ht := q.Get("hierarchy_type"); ht != "" {
		rht := recipient.HierarchyType(ht)
		filter.HierarchyType = &rht
	}
	if active := q.Get("is_active"); active != "" {
		isActive := active == "true"
		filter.IsActive = &isActive
	}
	if q.Get("roots_only") == "true" {
		filter.RootsOnly = true
	}

	recipients, err := h.hierarchy.ListRecipients(r.Context(), orgID, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, recipients)
}

func (h *Handler) createRecipient(w http.ResponseWriter, r *http.Request) {
	orgID, ok := organization(w, r)
	if !ok {
		return
	}
	var req CreateRecipientRequest
	if !h.decode(w, r, &req) {
		return
	}

	created, result, err := h.hierarchy.CreateRecipient(r.Context(), orgID, hierarchy.CreateInput{
		Name:              req.Name,
		Type:              recipient.Type(req.Type),
		Description:       req.Description,
		ExternalOrgID:     req.ExternalOrgID,
		ParentRecipientID: req.ParentRecipientID,
		HierarchyType:     recipient.HierarchyType(req.HierarchyType),
		CountryID:         req.CountryID,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !result.Valid() {
		writeValidationFailure(w, r, issueFields(result.Errors))
		return
	}
	writeJSON(w, r, http.StatusCreated, map[string]any{
		"recipient": created,
		"warnings":  result.Warnings,
	})
}

func (h *Handler) getRecipient(w http.ResponseWriter, r *http.Request) {
	orgID, ok := organization(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	rec, err := h.hierarchy.GetRecipient(r.Context(), id, orgID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

func (h *Handler) updateRecipient(w http.ResponseWriter, r *http.Request) {
	orgID, ok := organization(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req UpdateRecipientRequest
	if !h.decode(w, r, &req) {
		return
	}

	input := hierarchy.UpdateInput{Name: req.Name, Description: req.Description}
	if req.Type != nil {
		t := recipient.Type(*req.Type)
		input.Type = &t
	}

	updated, result, err := h.hierarchy.UpdateRecipient(r.Context(), id, orgID, input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !result.Valid() {
		writeValidationFailure(w, r, issueFields(result.Errors))
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"recipient": updated,
		"warnings":  result.Warnings,
	})
}

func (h *Handler) deleteRecipient(w http.ResponseWriter, r *http.Request) {
	orgID, ok := organization(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	if err := h.hierarchy.DeleteRecipient(r.Context(), id, orgID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deactivateRecipient(w http.ResponseWriter, r *http.Request) {
	orgID, ok := organization(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	rec, err := h.hierarchy.DeactivateRecipient(r.Context(), id, orgID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, rec)
}

func (h *Handler) getChildren(w http.ResponseWriter, r *http.Request) {
	orgID, ok := organization(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	children, err := h.hierarchy.GetDirectChildren(r.Context(), id, orgID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, children)
}

func (h *Handler) getTree(w http.ResponseWriter, r *http.Request) {
	orgID, ok := organization(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	tree, err := h.hierarchy.GetDescendantTree(r.Context(), id, orgID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, tree)
}

func (h *Handler) getAncestors(w http.ResponseWriter, r *http.Request) {
	orgID, ok := organization(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	chain, err := h.hierarchy.GetAncestorChain(r.Context(), id, orgID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"ancestors": chain,
		"depth":     len(chain),
	})
}

func (h *Handler) getDepth(w http.ResponseWriter, r *http.Request) {
	orgID, ok := organization(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	depth, err := h.hierarchy.CalculateHierarchyDepth(r.Context(), id, orgID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"depth": depth})
}

func (h *Handler) reparent(w http.ResponseWriter, r *http.Request) {
	orgID, ok := organization(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req ReparentRequest
	if !h.decode(w, r, &req) {
		return
	}

	updated, result, err := h.hierarchy.Reparent(r.Context(), id, orgID, req.ParentRecipientID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !result.Valid() {
		writeValidationFailure(w, r, issueFields(result.Errors))
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{
		"recipient": updated,
		"warnings":  result.Warnings,
	})
}

func (h *Handler) validatePlacement(w http.ResponseWriter, r *http.Request) {
	orgID, ok := organization(w, r)
	if !ok {
		return
	}
	var req ValidatePlacementRequest
	if !h.decode(w, r, &req) {
		return
	}

	var candidate *recipient.Recipient
	if req.RecipientID != nil {
		existing, err := h.hierarchy.GetRecipient(r.Context(), *req.RecipientID, orgID)
		if err != nil {
			writeError(w, r, err)
			return
		}
		candidate = existing
	} else {
		candidate = recipient.NewRecipient(orgID, "candidate", recipient.Type(req.Type))
		candidate.ExternalOrgID = req.ExternalOrgID
		candidate.HierarchyType = recipient.HierarchyType(req.HierarchyType)
	}
	if candidate.HierarchyType == recipient.HierarchyNone && req.ParentRecipientID != nil {
		candidate.HierarchyType = recipient.DefaultHierarchyType(candidate)
	}

	result, err := h.hierarchy.ValidatePlacement(r.Context(), candidate, req.ParentRecipientID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

func (h *Handler) listOrphans(w http.ResponseWriter, r *http.Request) {
	orgID, ok := organization(w, r)
	if !ok {
		return
	}
	orphans, err := h.hierarchy.OrphanedRecipients(r.Context(), orgID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, orphans)
}

func (h *Handler) listThirdCountry(w http.ResponseWriter, r *http.Request) {
	orgID, ok := organization(w, r)
	if !ok {
		return
	}
	recipients, err := h.hierarchy.ThirdCountryRecipients(r.Context(), orgID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, recipients)
}

func (h *Handler) getStatistics(w http.ResponseWriter, r *http.Request) {
	orgID, ok := organization(w, r)
	if !ok {
		return
	}
	stats, err := h.hierarchy.GetStatistics(r.Context(), orgID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

func (h *Handler) getHealthReport(w http.ResponseWriter, r *http.Request) {
	orgID, ok := organization(w, r)
	if !ok {
		return
	}
	report, err := h.hierarchy.GetHealthReport(r.Context(), orgID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, report)
}

func (h *Handler) listDuplicateOrgs(w http.ResponseWriter, r *http.Request) {
	orgID, ok := organization(w, r)
	if !ok {
		return
	}
	groups, err := h.hierarchy.DuplicateExternalOrgs(r.Context(), orgID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, groups)
}

func (h *Handler) listExpiringAgreements(w http.ResponseWriter, r *http.Request) {
	orgID, ok := organization(w, r)
	if !ok {
		return
	}
	agreements, err := h.hierarchy.ExpiringAgreements(r.Context(), orgID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, agreements)
}

func issueFields(issues []recipient.Issue) map[string][]string {
	fields := make(map[string][]string, len(issues))
	for _, issue := range issues {
		fields[issue.Field] = append(fields[issue.Field], issue.Rule+": "+issue.Message)
	}
	return fields
}
