package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/bp-reports-api/api/swagger"
	"github.com/noah-isme/bp-reports-api/internal/handler"
	internalmiddleware "github.com/noah-isme/bp-reports-api/internal/middleware"
	"github.com/noah-isme/bp-reports-api/internal/service"
	"github.com/noah-isme/bp-reports-api/pkg/config"
	"github.com/noah-isme/bp-reports-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/bp-reports-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/bp-reports-api/pkg/middleware/requestid"
)

type routerDeps struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *service.MetricsService
	auth    internalmiddleware.TokenValidator
	reports *handler.ReportHandler
	health  *handler.MetricsHandler
}

func newRouter(deps routerDeps) *gin.Engine {
	cfg := deps.cfg
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(deps.logger))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(deps.metrics))

	r.GET("/health", deps.health.Health)
	r.GET("/metrics", deps.health.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	if cfg.RateLimit.Enabled {
		api.Use(internalmiddleware.RateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
	}
	api.Use(internalmiddleware.JWT(deps.auth))

	api.POST("/generate/report", deps.reports.Generate)
	api.POST("/bpreport/status", deps.reports.Status)
	api.GET("/bpreport/download/:orgId/:courseId/:batchId/:fileName", deps.reports.Download)

	return r
}
