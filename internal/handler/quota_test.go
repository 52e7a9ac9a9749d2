package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vectorlab/quotad/internal/models"
	"github.com/vectorlab/quotad/internal/quota"
)

func int64Ptr(v int64) *int64 { return &v }

type quotaFixture struct {
	store  *quota.MemoryStore
	router *gin.Engine
}

func newQuotaFixture(t *testing.T) *quotaFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := quota.NewMemoryStore()
	log := zap.NewNop()
	limiter := quota.NewLimiter(store, store, log)
	facade := quota.NewFacade(limiter, quota.NewGuard(store, log), store, log)

	h := NewQuotaHandler(facade)
	router := gin.New()
	router.POST("/v1/admit", h.Admit)
	router.POST("/v1/capacity/reserve", h.Reserve)
	router.POST("/v1/capacity/release", h.Release)
	router.POST("/v1/tenants/:id/buckets", h.EnsureBuckets)
	router.GET("/v1/projects/:id/usage", h.Usage)

	return &quotaFixture{store: store, router: router}
}

func (f *quotaFixture) post(t *testing.T, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAdmit_Admitted(t *testing.T) {
	f := newQuotaFixture(t)
	tenantID := uuid.New()
	f.store.SetPlan(tenantID, &models.Plan{Slug: "building", QueryQPSLimit: 10, IngestQPSLimit: 10})

	w := f.post(t, "/v1/admit", gin.H{"tenant_id": tenantID.String(), "kind": "query"})

	assert.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["admitted"])
	assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", w.Header().Get("X-RateLimit-Remaining"))
}

func TestAdmit_DeniedReturns429WithRetryAfter(t *testing.T) {
	f := newQuotaFixture(t)
	tenantID := uuid.New()
	f.store.SetPlan(tenantID, &models.Plan{Slug: "one", QueryQPSLimit: 1, IngestQPSLimit: 1})

	w := f.post(t, "/v1/admit", gin.H{"tenant_id": tenantID.String(), "kind": "query"})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.post(t, "/v1/admit", gin.H{"tenant_id": tenantID.String(), "kind": "query"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	body := decodeBody(t, w)
	assert.Equal(t, false, body["admitted"])
	assert.Greater(t, body["retry_after_seconds"], 0.0)
}

func TestAdmit_UnknownTenantReturns404(t *testing.T) {
	f := newQuotaFixture(t)

	w := f.post(t, "/v1/admit", gin.H{"tenant_id": uuid.NewString(), "kind": "query"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdmit_StoreFaultReturns503(t *testing.T) {
	f := newQuotaFixture(t)
	tenantID := uuid.New()
	f.store.SetPlan(tenantID, &models.Plan{Slug: "building", QueryQPSLimit: 10, IngestQPSLimit: 10})

	f.store.FailNext = fmt.Errorf("dial tcp: connection refused")
	w := f.post(t, "/v1/admit", gin.H{"tenant_id": tenantID.String(), "kind": "query"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAdmit_BadRequests(t *testing.T) {
	f := newQuotaFixture(t)

	w := f.post(t, "/v1/admit", gin.H{"tenant_id": "not-a-uuid", "kind": "query"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.post(t, "/v1/admit", gin.H{"tenant_id": uuid.NewString(), "kind": "delete"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.post(t, "/v1/admit", gin.H{"kind": "query"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReserve_RejectedReturns402(t *testing.T) {
	f := newQuotaFixture(t)
	projectID := uuid.New()
	f.store.AddProject(projectID, int64Ptr(100))

	w := f.post(t, "/v1/capacity/reserve", gin.H{"project_id": projectID.String(), "delta": 100})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.post(t, "/v1/capacity/reserve", gin.H{"project_id": projectID.String(), "delta": 1})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, false, body["reserved"])
	assert.Equal(t, 100.0, body["limit"])
	assert.Equal(t, 100.0, body["current"])
}

func TestReserve_UnknownProjectReturns404(t *testing.T) {
	f := newQuotaFixture(t)

	w := f.post(t, "/v1/capacity/reserve", gin.H{"project_id": uuid.NewString(), "delta": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRelease_DecrementsAndFloors(t *testing.T) {
	f := newQuotaFixture(t)
	projectID := uuid.New()
	f.store.AddProject(projectID, int64Ptr(100))

	w := f.post(t, "/v1/capacity/reserve", gin.H{"project_id": projectID.String(), "delta": 5})
	require.Equal(t, http.StatusOK, w.Code)

	w = f.post(t, "/v1/capacity/release", gin.H{"project_id": projectID.String(), "vectors": 10})
	assert.Equal(t, http.StatusOK, w.Code)

	body := decodeBody(t, w)
	assert.Equal(t, true, body["released"])
	assert.Equal(t, 0.0, body["current"])
}

func TestRelease_NegativeVectorsRejected(t *testing.T) {
	f := newQuotaFixture(t)
	projectID := uuid.New()
	f.store.AddProject(projectID, nil)

	w := f.post(t, "/v1/capacity/release", gin.H{"project_id": projectID.String(), "vectors": -3})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEnsureBuckets_ReturnsNoContent(t *testing.T) {
	f := newQuotaFixture(t)
	tenantID := uuid.New()
	f.store.SetPlan(tenantID, &models.Plan{Slug: "building", QueryQPSLimit: 10, IngestQPSLimit: 10})

	w := f.post(t, "/v1/tenants/"+tenantID.String()+"/buckets", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	_, ok := f.store.Bucket(tenantID, quota.KindQuery)
	assert.True(t, ok)
}

func TestUsage_ReturnsCounters(t *testing.T) {
	f := newQuotaFixture(t)
	tenantID := uuid.New()
	projectID := uuid.New()
	f.store.SetPlan(tenantID, &models.Plan{Slug: "building", QueryQPSLimit: 10, IngestQPSLimit: 10})
	f.store.AddProject(projectID, int64Ptr(100))

	w := f.post(t, "/v1/admit", gin.H{
		"tenant_id":  tenantID.String(),
		"project_id": projectID.String(),
		"kind":       "query",
	})
	require.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/projects/"+projectID.String()+"/usage", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var usage models.ProjectUsage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &usage))
	assert.Equal(t, int64(1), usage.TotalQueries)
}
