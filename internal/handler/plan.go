package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vectorlab/quotad/internal/quota"
	"github.com/vectorlab/quotad/internal/repository"
)

// PlanHandler serves the plan catalog and the billing workflow's hook for
// activating a plan on a tenant.
type PlanHandler struct {
	plans   *repository.PlanRepository
	tenants *repository.TenantRepository
	facade  *quota.Facade
}

func NewPlanHandler(plans *repository.PlanRepository, tenants *repository.TenantRepository, facade *quota.Facade) *PlanHandler {
	return &PlanHandler{
		plans:   plans,
		tenants: tenants,
		facade:  facade,
	}
}

func (h *PlanHandler) List(c *gin.Context) {
	plans, err := h.plans.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, plans)
}

// Apply re-points the tenant's plan and rewrites its bucket limits. Bucket
// tokens are clamped, never raised, so a downgrade takes effect instantly.
func (h *PlanHandler) Apply(c *gin.Context) {
	tenantID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid tenant id"})
		return
	}

	var req struct {
		Slug string `json:"slug" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	plan, err := h.plans.FindBySlug(ctx, req.Slug)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if plan == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Plan not found"})
		return
	}

	if err := h.tenants.SetPlan(ctx, tenantID, plan.ID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Tenant not found"})
		return
	}

	if err := h.facade.ApplyPlanLimits(ctx, tenantID, plan); err != nil {
		respondQuotaError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Plan applied",
		"plan":    plan.Slug,
	})
}
