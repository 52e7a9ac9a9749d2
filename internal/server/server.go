package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vectorlab/quotad/internal/config"
	"github.com/vectorlab/quotad/internal/handler"
	"github.com/vectorlab/quotad/internal/logging"
	"github.com/vectorlab/quotad/internal/middleware"
	"github.com/vectorlab/quotad/internal/quota"
	"github.com/vectorlab/quotad/internal/repository"
	"github.com/vectorlab/quotad/internal/service"
	"github.com/vectorlab/quotad/internal/storage"
)

type Server struct {
	router     *gin.Engine
	config     *config.Config
	postgres   *storage.Postgres
	redis      *storage.RedisClient
	facade     *quota.Facade
	httpServer *http.Server

	quotaHandler      *handler.QuotaHandler
	planHandler       *handler.PlanHandler
	tenantHandler     *handler.TenantHandler
	serviceKeyHandler *handler.ServiceKeyHandler
	authHandler       *handler.AuthHandler

	serviceKeyService *service.ServiceKeyService
	authService       *service.AuthService
}

func New(cfg *config.Config, postgres *storage.Postgres, redis *storage.RedisClient) *Server {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	log := logging.Get()

	buckets := repository.NewBucketRepository(postgres)
	usage := repository.NewUsageRepository(postgres)
	plans := repository.NewPlanRepository(postgres)
	tenants := repository.NewTenantRepository(postgres)
	projects := repository.NewProjectRepository(postgres)

	limiter := quota.NewLimiter(buckets, plans, log)
	guard := quota.NewGuard(usage, log)
	facade := quota.NewFacade(limiter, guard, usage, log)

	serviceKeyRepo := repository.NewServiceKeyRepository(postgres)
	serviceKeyService := service.NewServiceKeyService(serviceKeyRepo, redis)

	adminRepo := repository.NewAdminUserRepository(postgres)
	authService := service.NewAuthService(adminRepo, cfg.Auth.JWTSecret, cfg.Auth.ExpiryHours)

	s := &Server{
		router:            gin.New(),
		config:            cfg,
		postgres:          postgres,
		redis:             redis,
		facade:            facade,
		quotaHandler:      handler.NewQuotaHandler(facade),
		planHandler:       handler.NewPlanHandler(plans, tenants, facade),
		tenantHandler:     handler.NewTenantHandler(tenants, projects, plans, facade),
		serviceKeyHandler: handler.NewServiceKeyHandler(serviceKeyService),
		authHandler:       handler.NewAuthHandler(authService),
		serviceKeyService: serviceKeyService,
		authService:       authService,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Facade exposes the quota entry points for the reconciler and tests.
func (s *Server) Facade() *quota.Facade {
	return s.facade
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery())
	s.router.Use(middleware.RequestID())
	s.router.Use(middleware.Logger())
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/v1")
	v1.Use(middleware.RequireServiceKey(s.serviceKeyService))
	{
		v1.POST("/admit", s.quotaHandler.Admit)
		v1.POST("/capacity/reserve", s.quotaHandler.Reserve)
		v1.POST("/capacity/release", s.quotaHandler.Release)
		v1.POST("/tenants", s.tenantHandler.CreateTenant)
		v1.POST("/tenants/:id/buckets", s.quotaHandler.EnsureBuckets)
		v1.POST("/projects", s.tenantHandler.CreateProject)
		v1.DELETE("/projects/:id", s.tenantHandler.DeleteProject)
		v1.GET("/projects/:id/usage", s.quotaHandler.Usage)
	}

	s.router.POST("/admin/login", s.authHandler.Login)

	admin := s.router.Group("/admin")
	admin.Use(middleware.RequireAuth(s.authService))
	{
		admin.GET("/plans", s.planHandler.List)
		admin.POST("/tenants/:id/plan", s.planHandler.Apply)
		admin.POST("/keys", s.serviceKeyHandler.Create)
		admin.GET("/keys", s.serviceKeyHandler.List)
		admin.DELETE("/keys/:id", s.serviceKeyHandler.Delete)
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	dbHealthy := true
	if err := s.postgres.Ping(c.Request.Context()); err != nil {
		dbHealthy = false
		logging.Get().Error("database health check failed", zap.Error(err))
	}

	redisHealthy := true
	if s.redis != nil {
		if err := s.redis.Ping(c.Request.Context()); err != nil {
			redisHealthy = false
			logging.Get().Error("redis health check failed", zap.Error(err))
		}
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !dbHealthy || !redisHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":    status,
		"service":   "quotad",
		"timestamp": time.Now().Unix(),
		"checks": gin.H{
			"database": dbHealthy,
			"redis":    redisHealthy,
		},
	})
}

func (s *Server) Run(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	logging.Get().Info("starting quotad",
		zap.String("addr", addr),
		zap.String("environment", s.config.Server.Environment),
	)

	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}

	return nil
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
