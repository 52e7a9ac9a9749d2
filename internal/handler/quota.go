package handler

import (
	"errors"
	"fmt"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vectorlab/quotad/internal/quota"
)

// QuotaHandler exposes the admission entry points to the rest of the
// platform and owns the outcome-to-status mapping: denied → 429,
// capacity rejected → 402, inconsistent state → 409, store fault → 503.
type QuotaHandler struct {
	facade *quota.Facade
}

func NewQuotaHandler(facade *quota.Facade) *QuotaHandler {
	return &QuotaHandler{facade: facade}
}

func (h *QuotaHandler) Admit(c *gin.Context) {
	var req struct {
		TenantID  string `json:"tenant_id" binding:"required"`
		Kind      string `json:"kind" binding:"required"`
		ProjectID string `json:"project_id"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tenant_id"})
		return
	}

	kind, err := quota.ParseKind(req.Kind)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	var decision quota.Decision
	if req.ProjectID != "" {
		projectID, err := uuid.Parse(req.ProjectID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project_id"})
			return
		}
		decision, err = h.facade.AdmitProject(ctx, tenantID, projectID, kind)
		if err != nil {
			respondQuotaError(c, err)
			return
		}
	} else {
		decision, err = h.facade.Admit(ctx, tenantID, kind)
		if err != nil {
			respondQuotaError(c, err)
			return
		}
	}

	if decision.Limit > 0 {
		c.Header("X-RateLimit-Limit", fmt.Sprintf("%g", decision.Limit))
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%g", decision.Remaining))
	}

	if !decision.Admitted {
		c.Header("Retry-After", fmt.Sprintf("%d", int(math.Ceil(decision.RetryAfter.Seconds()))))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"admitted":            false,
			"error":               "Rate limit exceeded. Upgrade your plan to increase throughput.",
			"retry_after_seconds": decision.RetryAfter.Seconds(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"admitted":  true,
		"remaining": decision.Remaining,
	})
}

func (h *QuotaHandler) Reserve(c *gin.Context) {
	var req struct {
		ProjectID string `json:"project_id" binding:"required"`
		Delta     int64  `json:"delta" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	projectID, err := uuid.Parse(req.ProjectID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project_id"})
		return
	}

	reservation, err := h.facade.ReserveCapacity(c.Request.Context(), projectID, req.Delta)
	if err != nil {
		respondQuotaError(c, err)
		return
	}

	if !reservation.Reserved {
		c.JSON(http.StatusPaymentRequired, gin.H{
			"reserved": false,
			"error":    "Project vector limit reached. Upgrade to a higher tier or delete vectors to continue.",
			"limit":    reservation.Limit,
			"current":  reservation.Current,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reserved": true,
		"current":  reservation.Current,
	})
}

func (h *QuotaHandler) Release(c *gin.Context) {
	var req struct {
		ProjectID string `json:"project_id" binding:"required"`
		Vectors   int64  `json:"vectors" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	projectID, err := uuid.Parse(req.ProjectID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project_id"})
		return
	}

	if req.Vectors < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "vectors must be positive"})
		return
	}

	reservation, err := h.facade.ReleaseCapacity(c.Request.Context(), projectID, req.Vectors)
	if err != nil {
		respondQuotaError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"released": true,
		"current":  reservation.Current,
	})
}

func (h *QuotaHandler) EnsureBuckets(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tenant id"})
		return
	}

	if err := h.facade.EnsureBuckets(c.Request.Context(), tenantID); err != nil {
		respondQuotaError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *QuotaHandler) Usage(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	usage, err := h.facade.UsageReport(c.Request.Context(), projectID)
	if err != nil {
		respondQuotaError(c, err)
		return
	}

	c.JSON(http.StatusOK, usage)
}

// respondQuotaError maps the quota error taxonomy onto status codes.
// Anything unmappable fails the request; admission is never implied.
func respondQuotaError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, quota.ErrTenantMissing):
		c.JSON(http.StatusNotFound, gin.H{"error": "Tenant not found"})
	case errors.Is(err, quota.ErrProjectMissing):
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
	case errors.Is(err, quota.ErrBucketMissing):
		c.JSON(http.StatusConflict, gin.H{"error": "Quota state inconsistent, request rejected"})
	case errors.Is(err, quota.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Quota store unavailable, retry later"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
