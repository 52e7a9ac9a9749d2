package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vectorlab/quotad/internal/models"
	"github.com/vectorlab/quotad/internal/quota"
	"github.com/vectorlab/quotad/internal/repository"
)

type TenantHandler struct {
	tenants  *repository.TenantRepository
	projects *repository.ProjectRepository
	plans    *repository.PlanRepository
	facade   *quota.Facade
}

func NewTenantHandler(tenants *repository.TenantRepository, projects *repository.ProjectRepository, plans *repository.PlanRepository, facade *quota.Facade) *TenantHandler {
	return &TenantHandler{
		tenants:  tenants,
		projects: projects,
		plans:    plans,
		facade:   facade,
	}
}

// CreateTenant provisions the account and its buckets eagerly, so the first
// admission check never pays the self-heal round trip.
func (h *TenantHandler) CreateTenant(c *gin.Context) {
	var req struct {
		Name     string `json:"name" binding:"required"`
		PlanSlug string `json:"plan_slug" binding:"required"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	plan, err := h.plans.FindBySlug(ctx, req.PlanSlug)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if plan == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Plan not found"})
		return
	}

	tenant := models.Tenant{
		Name:   req.Name,
		PlanID: plan.ID,
	}
	if err := h.tenants.Create(ctx, &tenant); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if err := h.facade.EnsureBuckets(ctx, tenant.ID); err != nil {
		respondQuotaError(c, err)
		return
	}

	c.JSON(http.StatusCreated, tenant)
}

func (h *TenantHandler) CreateProject(c *gin.Context) {
	var req struct {
		TenantID string `json:"tenant_id" binding:"required"`
		Name     string `json:"name" binding:"required"`
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

	project := models.Project{
		TenantID: tenantID,
		Name:     req.Name,
		IsActive: true,
	}

	err = h.projects.Create(c.Request.Context(), &project)
	if errors.Is(err, repository.ErrProjectLimitReached) {
		c.JSON(http.StatusForbidden, gin.H{
			"error": "Project limit reached for your plan. Upgrade to add more projects.",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, project)
}

func (h *TenantHandler) DeleteProject(c *gin.Context) {
	projectID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid project id"})
		return
	}

	if err := h.projects.Delete(c.Request.Context(), projectID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Project deleted"})
}
