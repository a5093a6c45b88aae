// Package handler exposes the approval engine over REST.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/bizcore/be-approvals/internal/apperr"
	"github.com/bizcore/be-approvals/internal/repository"
	"github.com/bizcore/be-approvals/internal/service"
)

// actorHeader carries the acting user's identity. The gateway authenticates
// the caller and injects this header; the engine never trusts ambient
// session state.
const actorHeader = "X-Actor-ID"

// HTTPHandler handles HTTP requests for the approvals API.
type HTTPHandler struct {
	svc *service.ApprovalService
	log zerolog.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(svc *service.ApprovalService, log zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{svc: svc, log: log}
}

// RegisterRoutes mounts the approvals API under /api/v1/approvals.
func (h *HTTPHandler) RegisterRoutes(r *mux.Router) {
	api := r.PathPrefix("/api/v1/approvals").Subrouter()

	api.HandleFunc("/submit", h.Submit).Methods(http.MethodPost)
	api.HandleFunc("/my-tasks", h.MyTasks).Methods(http.MethodGet)
	api.HandleFunc("/{id}/approve", h.Approve).Methods(http.MethodPost)
	api.HandleFunc("/{id}/reject", h.Reject).Methods(http.MethodPost)
	api.HandleFunc("/{id}/delegate", h.Delegate).Methods(http.MethodPost)
	api.HandleFunc("/{id}/withdraw", h.Withdraw).Methods(http.MethodPost)
	api.HandleFunc("/{id}/detail", h.Detail).Methods(http.MethodGet)
	api.HandleFunc("/{id}/history", h.History).Methods(http.MethodGet)
}

// ── Request / response payloads ───────────────────────────────────────────────

type submitRequest struct {
	EntityType string   `json:"entity_type"`
	EntityID   string   `json:"entity_id"`
	Title      string   `json:"title"`
	Summary    string   `json:"summary"`
	Urgency    string   `json:"urgency"`
	CCUserIDs  []string `json:"cc_user_ids"`
}

type decisionRequest struct {
	Comment      string `json:"comment"`
	DelegateToID string `json:"delegate_to_id"`
}

type instancePayload struct {
	InstanceID   string    `json:"instance_id"`
	EntityType   string    `json:"entity_type"`
	EntityID     string    `json:"entity_id"`
	Title        string    `json:"title"`
	Summary      string    `json:"summary"`
	Urgency      string    `json:"urgency"`
	Status       string    `json:"status"`
	CurrentLevel int       `json:"current_level"`
	TotalLevels  int       `json:"total_levels"`
	SubmitterID  string    `json:"submitter_id"`
	CCUserIDs    []string  `json:"cc_user_ids,omitempty"`
	Progress     int       `json:"progress"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type levelPayload struct {
	Ordinal    int     `json:"ordinal"`
	ApproverID string  `json:"approver_id"`
	DelegateID *string `json:"delegate_id,omitempty"`
}

type auditPayload struct {
	Level     int       `json:"level"`
	Action    string    `json:"action"`
	ActorID   string    `json:"actor_id"`
	Comment   string    `json:"comment,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func toInstancePayload(inst *repository.ApprovalInstance) instancePayload {
	return instancePayload{
		InstanceID:   inst.ID,
		EntityType:   string(inst.EntityType),
		EntityID:     inst.EntityID,
		Title:        inst.Title,
		Summary:      inst.Summary,
		Urgency:      string(inst.Urgency),
		Status:       string(inst.Status),
		CurrentLevel: inst.CurrentLevel,
		TotalLevels:  inst.TotalLevels,
		SubmitterID:  inst.SubmitterID,
		CCUserIDs:    inst.CCUserIDs,
		Progress:     service.Progress(inst.CurrentLevel, inst.TotalLevels),
		CreatedAt:    inst.CreatedAt,
		UpdatedAt:    inst.UpdatedAt,
	}
}

// ── Handlers ──────────────────────────────────────────────────────────────────

// Submit creates a new approval instance.
func (h *HTTPHandler) Submit(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, errorPayload{Code: string(apperr.CodeValidation), Message: "invalid request body"})
		return
	}

	inst, err := h.svc.Submit(r.Context(), &service.SubmitRequest{
		EntityType:  repository.EntityType(req.EntityType),
		EntityID:    req.EntityID,
		Title:       req.Title,
		Summary:     req.Summary,
		Urgency:     repository.Urgency(req.Urgency),
		CCUserIDs:   req.CCUserIDs,
		SubmitterID: actorID,
	})
	if err != nil {
		// Missing or malformed submission fields are a 422, per the API contract.
		h.writeError(w, err, http.StatusUnprocessableEntity)
		return
	}

	h.writeJSON(w, http.StatusCreated, toInstancePayload(inst))
}

// Approve records an approval at the current level.
func (h *HTTPHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(instanceID, actorID string, req decisionRequest) (*repository.ApprovalInstance, error) {
		return h.svc.Approve(r.Context(), instanceID, actorID, req.Comment)
	})
}

// Reject resolves the instance REJECTED.
func (h *HTTPHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(instanceID, actorID string, req decisionRequest) (*repository.ApprovalInstance, error) {
		return h.svc.Reject(r.Context(), instanceID, actorID, req.Comment)
	})
}

// Delegate reassigns the current level's authority.
func (h *HTTPHandler) Delegate(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(instanceID, actorID string, req decisionRequest) (*repository.ApprovalInstance, error) {
		return h.svc.Delegate(r.Context(), instanceID, actorID, req.DelegateToID, req.Comment)
	})
}

// Withdraw lets the submitter retire a non-terminal instance.
func (h *HTTPHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, func(instanceID, actorID string, req decisionRequest) (*repository.ApprovalInstance, error) {
		return h.svc.Withdraw(r.Context(), instanceID, actorID, req.Comment)
	})
}

// Detail returns the full instance snapshot and chain.
func (h *HTTPHandler) Detail(w http.ResponseWriter, r *http.Request) {
	detail, err := h.svc.GetDetail(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err, http.StatusBadRequest)
		return
	}

	chain := make([]levelPayload, 0, len(detail.Chain))
	for _, level := range detail.Chain {
		chain = append(chain, levelPayload{
			Ordinal:    level.Ordinal,
			ApproverID: level.ApproverID,
			DelegateID: level.DelegateID,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"instance": toInstancePayload(detail.Instance),
		"chain":    chain,
	})
}

// History returns the audit trail, oldest first.
func (h *HTTPHandler) History(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.GetHistory(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, err, http.StatusBadRequest)
		return
	}

	history := make([]auditPayload, 0, len(entries))
	for _, entry := range entries {
		history = append(history, auditPayload{
			Level:     entry.Level,
			Action:    string(entry.Action),
			ActorID:   entry.ActorID,
			Comment:   entry.Comment,
			Timestamp: entry.CreatedAt,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"history": history})
}

// MyTasks returns the calling actor's pending queue.
func (h *HTTPHandler) MyTasks(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	tasks, err := h.svc.GetMyTasks(r.Context(), actorID)
	if err != nil {
		h.writeError(w, err, http.StatusBadRequest)
		return
	}

	payload := make([]instancePayload, 0, len(tasks))
	for _, task := range tasks {
		payload = append(payload, toInstancePayload(task.Instance))
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"tasks": payload})
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// decide is the shared shape of the four decision endpoints.
func (h *HTTPHandler) decide(w http.ResponseWriter, r *http.Request, apply func(instanceID, actorID string, req decisionRequest) (*repository.ApprovalInstance, error)) {
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}

	var req decisionRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeJSON(w, http.StatusBadRequest, errorPayload{Code: string(apperr.CodeValidation), Message: "invalid request body"})
			return
		}
	}

	inst, err := apply(mux.Vars(r)["id"], actorID, req)
	if err != nil {
		h.writeError(w, err, http.StatusBadRequest)
		return
	}

	h.writeJSON(w, http.StatusOK, toInstancePayload(inst))
}

func (h *HTTPHandler) actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actorID := r.Header.Get(actorHeader)
	if actorID == "" {
		h.writeError(w, apperr.Unauthorized("actor identity required"), http.StatusBadRequest)
		return "", false
	}
	return actorID, true
}

// writeError maps apperr codes onto HTTP statuses. validationStatus lets
// endpoints pick 422 (submit) vs 400 (everything else) for validation
// failures; the rest of the mapping is fixed.
func (h *HTTPHandler) writeError(w http.ResponseWriter, err error, validationStatus int) {
	payload := errorPayload{Code: string(apperr.CodeInternal), Message: "internal error"}

	var ae *apperr.Error
	if errors.As(err, &ae) {
		payload.Code = string(ae.Code)
		payload.Message = ae.Message
		payload.Field = ae.Field
	}

	status := http.StatusInternalServerError
	switch apperr.Code(payload.Code) {
	case apperr.CodeValidation:
		status = validationStatus
	case apperr.CodeUnauthorized:
		status = http.StatusForbidden
	case apperr.CodeNotFound:
		status = http.StatusNotFound
	case apperr.CodeConflict:
		status = http.StatusConflict
	}

	if status >= 500 {
		h.log.Error().Err(err).Msg("request failed")
	}
	h.writeJSON(w, status, payload)
}

func (h *HTTPHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Warn().Err(err).Msg("failed to encode response")
	}
}
