package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizcore/be-approvals/internal/repository"
	"github.com/bizcore/be-approvals/internal/service"
)

type staticDirectory map[string]bool

func (d staticDirectory) Exists(ctx context.Context, userID string) (bool, error) {
	return d[userID], nil
}

func newTestRouter(t *testing.T) *mux.Router {
	t.Helper()

	store := repository.NewMemoryStore()
	resolver := service.NewStaticChainResolver(map[repository.EntityType][]string{
		repository.EntityQuote: {"alice", "bob"},
	})
	directory := staticDirectory{"alice": true, "bob": true, "erin": true}
	svc := service.NewApprovalService(store, store, resolver, directory, nil, zerolog.Nop())

	r := mux.NewRouter()
	NewHTTPHandler(svc, zerolog.Nop()).RegisterRoutes(r)
	return r
}

func doJSON(t *testing.T, r *mux.Router, method, path, actor string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if actor != "" {
		req.Header.Set(actorHeader, actor)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func submitQuote(t *testing.T, r *mux.Router) instancePayload {
	t.Helper()

	rec := doJSON(t, r, http.MethodPost, "/api/v1/approvals/submit", "submitter", submitRequest{
		EntityType: "QUOTE",
		EntityID:   "Q-2024-001",
		Title:      "Q1 pricing",
		Urgency:    "NORMAL",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var inst instancePayload
	decodeBody(t, rec, &inst)
	require.NotEmpty(t, inst.InstanceID)
	return inst
}

func TestSubmitReturnsCreatedInstance(t *testing.T) {
	r := newTestRouter(t)

	inst := submitQuote(t, r)
	assert.Equal(t, "QUOTE", inst.EntityType)
	assert.Equal(t, "PENDING", inst.Status)
	assert.Equal(t, "submitter", inst.SubmitterID)
	assert.Equal(t, 0, inst.CurrentLevel)
	assert.Equal(t, 2, inst.TotalLevels)
	assert.Equal(t, 0, inst.Progress)
}

func TestSubmitMissingFieldIsUnprocessable(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/approvals/submit", "submitter", submitRequest{
		EntityType: "QUOTE",
		Title:      "no entity id",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var payload errorPayload
	decodeBody(t, rec, &payload)
	assert.Equal(t, "VALIDATION", payload.Code)
	assert.Equal(t, "entity_id", payload.Field)
}

func TestSubmitMalformedBodyIsBadRequest(t *testing.T) {
	r := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/approvals/submit", bytes.NewBufferString("{not json"))
	req.Header.Set(actorHeader, "submitter")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMissingActorHeaderIsForbidden(t *testing.T) {
	r := newTestRouter(t)
	inst := submitQuote(t, r)

	for _, path := range []string{
		"/api/v1/approvals/submit",
		fmt.Sprintf("/api/v1/approvals/%s/approve", inst.InstanceID),
	} {
		rec := doJSON(t, r, http.MethodPost, path, "", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
	}
}

func TestApproveAdvancesAndResolves(t *testing.T) {
	r := newTestRouter(t)
	inst := submitQuote(t, r)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/approvals/"+inst.InstanceID+"/approve", "alice", decisionRequest{Comment: "ok"})
	require.Equal(t, http.StatusOK, rec.Code)

	var after instancePayload
	decodeBody(t, rec, &after)
	assert.Equal(t, "IN_PROGRESS", after.Status)
	assert.Equal(t, 1, after.CurrentLevel)
	assert.Equal(t, 50, after.Progress)

	rec = doJSON(t, r, http.MethodPost, "/api/v1/approvals/"+inst.InstanceID+"/approve", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &after)
	assert.Equal(t, "APPROVED", after.Status)
	assert.Equal(t, 100, after.Progress)
}

func TestDecisionByWrongActorIsForbidden(t *testing.T) {
	r := newTestRouter(t)
	inst := submitQuote(t, r)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/approvals/"+inst.InstanceID+"/approve", "bob", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	var payload errorPayload
	decodeBody(t, rec, &payload)
	assert.Equal(t, "UNAUTHORIZED", payload.Code)
}

func TestDecisionOnResolvedInstanceConflicts(t *testing.T) {
	r := newTestRouter(t)
	inst := submitQuote(t, r)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/approvals/"+inst.InstanceID+"/reject", "alice", decisionRequest{Comment: "over budget"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/api/v1/approvals/"+inst.InstanceID+"/approve", "alice", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	var payload errorPayload
	decodeBody(t, rec, &payload)
	assert.Equal(t, "CONFLICT", payload.Code)
}

func TestDelegateToUnknownUserIsBadRequest(t *testing.T) {
	r := newTestRouter(t)
	inst := submitQuote(t, r)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/approvals/"+inst.InstanceID+"/delegate", "alice", decisionRequest{DelegateToID: "ghost"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var payload errorPayload
	decodeBody(t, rec, &payload)
	assert.Equal(t, "VALIDATION", payload.Code)
	assert.Equal(t, "delegate_to_id", payload.Field)
}

func TestWithdrawBySubmitter(t *testing.T) {
	r := newTestRouter(t)
	inst := submitQuote(t, r)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/approvals/"+inst.InstanceID+"/withdraw", "submitter", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var after instancePayload
	decodeBody(t, rec, &after)
	assert.Equal(t, "WITHDRAWN", after.Status)

	// A withdrawn instance cannot be withdrawn again.
	rec = doJSON(t, r, http.MethodPost, "/api/v1/approvals/"+inst.InstanceID+"/withdraw", "submitter", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestUnknownInstanceIsNotFound(t *testing.T) {
	r := newTestRouter(t)

	rec := doJSON(t, r, http.MethodGet, "/api/v1/approvals/no-such-id/detail", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/api/v1/approvals/no-such-id/history", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, r, http.MethodPost, "/api/v1/approvals/no-such-id/approve", "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDetailIncludesChain(t *testing.T) {
	r := newTestRouter(t)
	inst := submitQuote(t, r)

	rec := doJSON(t, r, http.MethodGet, "/api/v1/approvals/"+inst.InstanceID+"/detail", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Instance instancePayload `json:"instance"`
		Chain    []levelPayload  `json:"chain"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, inst.InstanceID, body.Instance.InstanceID)
	require.Len(t, body.Chain, 2)
	assert.Equal(t, "alice", body.Chain[0].ApproverID)
	assert.Equal(t, "bob", body.Chain[1].ApproverID)
}

func TestHistoryListsActionsOldestFirst(t *testing.T) {
	r := newTestRouter(t)
	inst := submitQuote(t, r)

	rec := doJSON(t, r, http.MethodPost, "/api/v1/approvals/"+inst.InstanceID+"/approve", "alice", decisionRequest{Comment: "fine"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, r, http.MethodGet, "/api/v1/approvals/"+inst.InstanceID+"/history", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		History []auditPayload `json:"history"`
	}
	decodeBody(t, rec, &body)
	require.Len(t, body.History, 2)
	assert.Equal(t, "SUBMITTED", body.History[0].Action)
	assert.Equal(t, "APPROVED", body.History[1].Action)
	assert.Equal(t, "fine", body.History[1].Comment)
}

func TestMyTasksListsPendingForActor(t *testing.T) {
	r := newTestRouter(t)
	inst := submitQuote(t, r)

	rec := doJSON(t, r, http.MethodGet, "/api/v1/approvals/my-tasks", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Tasks []instancePayload `json:"tasks"`
	}
	decodeBody(t, rec, &body)
	require.Len(t, body.Tasks, 1)
	assert.Equal(t, inst.InstanceID, body.Tasks[0].InstanceID)

	// Level two's approver has nothing yet.
	rec = doJSON(t, r, http.MethodGet, "/api/v1/approvals/my-tasks", "bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decodeBody(t, rec, &body)
	assert.Empty(t, body.Tasks)
}
