package api

import (
	"github.com/RishiKendai/dupcheck/internal/config"

	"github.com/gin-gonic/gin"
)

func SetupRoutes(
	cfg *config.Config,
	scans ScanService,
	reports ReportService,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	handler := NewHandler(scans, reports)

	rateLimiter := NewRateLimiter(cfg.RateLimitRPS, int(cfg.RateLimitRPS*2))

	router.Use(RequestLogger())
	router.Use(MetricsMiddleware())
	router.Use(ErrorHandlerMiddleware())

	// Health endpoint (no auth)
	router.GET("/health", handler.Health)

	api := router.Group("/api/v1")
	api.Use(JWTAuthMiddleware(cfg.JWTSecret, cfg.JWTIssuer))
	api.Use(RateLimitMiddleware(rateLimiter))
	{
		problems := api.Group("/problems/:problemId")
		problems.POST("/scan", handler.Scan)
		problems.GET("/scan", handler.ScanStatus)

		findings := api.Group("/findings")
		findings.GET("", handler.ListFindings)
		findings.GET("/:id", handler.GetFinding)
		findings.GET("/:id/diff", handler.FindingDiff)
		findings.GET("/:id/download", handler.DownloadFinding)
		findings.POST("/:id/notify", handler.NotifyFinding)
	}

	return router
}
