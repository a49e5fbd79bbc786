package handler

import (
	"encoding/json"
	"net/http"

	"github.com/brightops/be-ops-approvals/internal/platform/errors"
	"github.com/brightops/be-ops-approvals/internal/platform/logger"
	"github.com/brightops/be-ops-approvals/internal/repository"
	"github.com/brightops/be-ops-approvals/internal/service"
)

// HTTPHandler exposes the routing, numbering and threshold approval
// operations over HTTP.
type HTTPHandler struct {
	documents *service.DocumentService
	routing   *service.ApprovalRoutingService
	sequences *service.SequenceService
	threshold *service.ThresholdApprovalService
	rules     *repository.RoutingRuleRepository
	log       *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(
	documents *service.DocumentService,
	routing *service.ApprovalRoutingService,
	sequences *service.SequenceService,
	threshold *service.ThresholdApprovalService,
	rules *repository.RoutingRuleRepository,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		documents: documents,
		routing:   routing,
		sequences: sequences,
		threshold: threshold,
		rules:     rules,
		log:       log,
	}
}

// ── Sequences ────────────────────────────────────────────────────────────────

// AllocateSequence handles POST /api/v1/sequences/allocate.
func (h *HTTPHandler) AllocateSequence(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EntityType string `json:"entity_type"`
		ScopeID    string `json:"scope_id"`
		Prefix     string `json:"prefix"`
		PadLength  int    `json:"pad_length"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	number, err := h.sequences.Allocate(r.Context(), req.EntityType, req.ScopeID, req.Prefix, req.PadLength)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"number": number})
}

// AllocateMailNumber handles POST /api/v1/sequences/mail.
func (h *HTTPHandler) AllocateMailNumber(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScopeID     string `json:"scope_id"`
		CompanyCode string `json:"company_code"`
		TypeCode    string `json:"type_code"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	number, err := h.sequences.AllocateMailNumber(r.Context(), req.ScopeID, req.CompanyCode, req.TypeCode)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"number": number})
}

// ── Routing rules ────────────────────────────────────────────────────────────

// ListRules handles GET /api/v1/rules.
func (h *HTTPHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		http.Error(w, "tenant_id is required", http.StatusBadRequest)
		return
	}
	activeOnly := r.URL.Query().Get("active_only") == "true"

	rules, err := h.rules.List(r.Context(), tenantID, activeOnly)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rules)
}

// CreateRule handles POST /api/v1/rules.
func (h *HTTPHandler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule repository.RoutingRule
	if !h.decode(w, r, &rule) {
		return
	}

	if err := h.rules.Create(r.Context(), &rule); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, rule)
}

// UpdateRule handles POST /api/v1/rules/update.
func (h *HTTPHandler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	var rule repository.RoutingRule
	if !h.decode(w, r, &rule) {
		return
	}

	if err := h.rules.Update(r.Context(), &rule); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, rule)
}

// DeleteRule handles POST /api/v1/rules/delete.
func (h *HTTPHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID       string `json:"id"`
		TenantID string `json:"tenant_id"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.rules.Delete(r.Context(), req.ID, req.TenantID); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ── Documents & sequential chain ─────────────────────────────────────────────

// CreateDocument handles POST /api/v1/documents.
func (h *HTTPHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req service.CreateDocumentRequest
	if !h.decode(w, r, &req) {
		return
	}

	doc, result, err := h.documents.CreateDocument(r.Context(), &req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"document": doc,
		"routing":  result,
	})
}

// GetDocument handles GET /api/v1/documents/get.
func (h *HTTPHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	tenantID := r.URL.Query().Get("tenant_id")
	if id == "" || tenantID == "" {
		http.Error(w, "id and tenant_id are required", http.StatusBadRequest)
		return
	}

	doc, err := h.documents.GetDocument(r.Context(), id, tenantID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, doc)
}

// AssignDocument handles POST /api/v1/documents/assign.
func (h *HTTPHandler) AssignDocument(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentID string `json:"document_id"`
		TenantID   string `json:"tenant_id"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.routing.Assign(r.Context(), req.DocumentID, req.TenantID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// ReassignTenant handles POST /api/v1/routing/reassign.
func (h *HTTPHandler) ReassignTenant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID         string   `json:"tenant_id"`
		EligibleStatuses []string `json:"eligible_statuses"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	if len(req.EligibleStatuses) == 0 {
		req.EligibleStatuses = []string{repository.DocStatusDraft, repository.DocStatusPendingApproval}
	}

	matched, err := h.routing.ReassignForTenant(r.Context(), req.TenantID, req.EligibleStatuses)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"matched": matched})
}

// ApproveStep handles POST /api/v1/documents/approve-step.
func (h *HTTPHandler) ApproveStep(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentID string  `json:"document_id"`
		TenantID   string  `json:"tenant_id"`
		StepIndex  int     `json:"step_index"`
		ActedBy    string  `json:"acted_by"`
		Notes      *string `json:"notes,omitempty"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	complete, err := h.routing.ApproveStep(r.Context(), req.DocumentID, req.TenantID, req.StepIndex, req.ActedBy, req.Notes)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]bool{"chain_complete": complete})
}

// RejectStep handles POST /api/v1/documents/reject-step.
func (h *HTTPHandler) RejectStep(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DocumentID string `json:"document_id"`
		TenantID   string `json:"tenant_id"`
		StepIndex  int    `json:"step_index"`
		ActedBy    string `json:"acted_by"`
		Reason     string `json:"reason"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.routing.RejectStep(r.Context(), req.DocumentID, req.TenantID, req.StepIndex, req.ActedBy, req.Reason); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DocumentSteps handles GET /api/v1/documents/steps.
func (h *HTTPHandler) DocumentSteps(w http.ResponseWriter, r *http.Request) {
	documentID := r.URL.Query().Get("document_id")
	if documentID == "" {
		http.Error(w, "document_id is required", http.StatusBadRequest)
		return
	}

	steps, err := h.routing.StepsForDocument(r.Context(), documentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, steps)
}

// DocumentActivity handles GET /api/v1/documents/activity.
func (h *HTTPHandler) DocumentActivity(w http.ResponseWriter, r *http.Request) {
	documentID := r.URL.Query().Get("document_id")
	if documentID == "" {
		http.Error(w, "document_id is required", http.StatusBadRequest)
		return
	}

	entries, err := h.routing.ActivityForDocument(r.Context(), documentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, entries)
}

// PendingApprovals handles GET /api/v1/approvals/pending.
func (h *HTTPHandler) PendingApprovals(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	userID := r.URL.Query().Get("user_id")
	if tenantID == "" || userID == "" {
		http.Error(w, "tenant_id and user_id are required", http.StatusBadRequest)
		return
	}

	steps, err := h.routing.PendingStepsForUser(r.Context(), tenantID, userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, steps)
}

// ── Threshold approval (capex) ───────────────────────────────────────────────

// CreateCapex handles POST /api/v1/capex.
func (h *HTTPHandler) CreateCapex(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TenantID    string `json:"tenant_id"`
		Title       string `json:"title"`
		TotalAmount int64  `json:"total_amount"`
		CreatedBy   string `json:"created_by"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	capex, err := h.threshold.CreateDraft(r.Context(), req.TenantID, req.Title, req.TotalAmount, req.CreatedBy)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, capex)
}

// GetCapex handles GET /api/v1/capex/get.
func (h *HTTPHandler) GetCapex(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	tenantID := r.URL.Query().Get("tenant_id")
	if id == "" || tenantID == "" {
		http.Error(w, "id and tenant_id are required", http.StatusBadRequest)
		return
	}

	capex, err := h.threshold.Get(r.Context(), id, tenantID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, capex)
}

// SubmitCapex handles POST /api/v1/capex/submit.
func (h *HTTPHandler) SubmitCapex(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID          string `json:"id"`
		TenantID    string `json:"tenant_id"`
		SubmittedBy string `json:"submitted_by"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	capex, err := h.threshold.Submit(r.Context(), req.ID, req.TenantID, req.SubmittedBy)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, capex)
}

// ApproveCapex handles POST /api/v1/capex/approve.
func (h *HTTPHandler) ApproveCapex(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID       string  `json:"id"`
		TenantID string  `json:"tenant_id"`
		UserID   string  `json:"user_id"`
		UserName string  `json:"user_name"`
		Comments *string `json:"comments,omitempty"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	capex, fullyApproved, err := h.threshold.AddApproval(r.Context(), req.ID, req.TenantID, req.UserID, req.UserName, req.Comments)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"request":        capex,
		"fully_approved": fullyApproved,
	})
}

// RejectCapex handles POST /api/v1/capex/reject.
func (h *HTTPHandler) RejectCapex(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID       string `json:"id"`
		TenantID string `json:"tenant_id"`
		UserID   string `json:"user_id"`
		Reason   string `json:"reason"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	capex, err := h.threshold.Reject(r.Context(), req.ID, req.TenantID, req.UserID, req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, capex)
}

// WithdrawCapex handles POST /api/v1/capex/withdraw.
func (h *HTTPHandler) WithdrawCapex(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID       string `json:"id"`
		TenantID string `json:"tenant_id"`
		UserID   string `json:"user_id"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	capex, err := h.threshold.Withdraw(r.Context(), req.ID, req.TenantID, req.UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, capex)
}

// ── Helpers ──────────────────────────────────────────────────────────────────

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn().Err(err).Msg("Failed to encode response body")
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error": err.Error(),
		"code":  string(errors.CodeOf(err)),
	})
}
