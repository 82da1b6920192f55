package http

import (
	"github.com/dinodialabs/hub-platform/internal/agentsync"
	"github.com/dinodialabs/hub-platform/internal/api/http/handler"
	"github.com/dinodialabs/hub-platform/internal/api/http/middleware"
	"github.com/dinodialabs/hub-platform/internal/auth"
	"github.com/dinodialabs/hub-platform/internal/issuance"
	"github.com/dinodialabs/hub-platform/internal/provisioning"
	"github.com/dinodialabs/hub-platform/internal/rotation"
	"github.com/gin-gonic/gin"
)

type Services struct {
	AgentSync    *agentsync.Service
	Rotation     *rotation.Service
	Issuance     *issuance.Service
	Provisioning *provisioning.Service
	Auth         auth.Config
}

func SetupRoute(engine *gin.Engine, config Config, srvs *Services) {
	engine.Use(middleware.RequestLogger())

	healthHandler := handler.NewHealthHandler()
	engine.GET("/health", healthHandler.Check)

	v1 := engine.Group("/api/v1")

	// Hub agent protocol. Both endpoints authenticate inside the service
	// layer (bootstrap secret, HMAC signature).
	pollHandler := handler.NewPollHandler(srvs.AgentSync)
	provisionHandler := handler.NewProvisionHandler(srvs.Provisioning)
	v1.POST("/hub-agent/token-state", pollHandler.TokenState)
	v1.POST("/hub-agent/pair", provisionHandler.PairHub)

	// External rotation trigger (shared secret). GET kept for hosted cron
	// runners that can only issue GETs.
	rotationHandler := handler.NewRotationHandler(srvs.Rotation)
	cron := v1.Group("/cron", middleware.CronSecretAuth(config.CronSecret))
	cron.GET("/hub-token-rotation", rotationHandler.Trigger)
	cron.POST("/hub-token-rotation", rotationHandler.Trigger)

	// Trusted first-party credential read.
	credentialHandler := handler.NewCredentialHandler(srvs.Issuance)
	kiosk := v1.Group("/kiosk", middleware.ServiceJWTAuth(srvs.Auth.Secret))
	kiosk.GET("/remote-access/credentials", credentialHandler.Read)

	// Privileged operator surface.
	adminHandler := handler.NewAdminHandler(srvs.Auth)
	admin := v1.Group("", middleware.APIKeyAuth(config.AdminAPIKey))
	admin.POST("/installer/hubs/provision", provisionHandler.ProvisionHub)
	admin.POST("/admin/service-tokens", adminHandler.CreateServiceToken)
}
