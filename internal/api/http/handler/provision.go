package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dinodialabs/hub-platform/internal/api/http/dto"
	"github.com/dinodialabs/hub-platform/internal/provisioning"
	"github.com/gin-gonic/gin"
)

type ProvisionHandler struct {
	service *provisioning.Service
}

func NewProvisionHandler(service *provisioning.Service) *ProvisionHandler {
	return &ProvisionHandler{service: service}
}

// ProvisionHub creates a new install record and seeds its first staged
// token. The bootstrap secret in the response is shown exactly once.
func (h *ProvisionHandler) ProvisionHub(ctx *gin.Context) {
	var req dto.ProvisionHubRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "serial is required"})
		return
	}

	result, err := h.service.ProvisionInstall(ctx.Request.Context(), req.Serial)
	if err != nil {
		switch {
		case errors.Is(err, provisioning.ErrSerialRequired):
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, provisioning.ErrSerialTaken):
			ctx.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			slog.Error("Failed to provision hub", "serial", req.Serial, "error", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to provision hub"})
		}
		return
	}

	ctx.JSON(http.StatusOK, dto.ProvisionHubResponse{
		OK:              true,
		Serial:          result.Serial,
		BootstrapSecret: result.BootstrapSecret,
	})
}

// PairHub redeems a bootstrap secret and hands the hub its sync secret.
func (h *ProvisionHandler) PairHub(ctx *gin.Context) {
	var req dto.PairHubRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "serial, bootstrapSecret and baseUrl are required"})
		return
	}

	result, err := h.service.PairInstall(ctx.Request.Context(), req.Serial, req.BootstrapSecret, req.BaseURL)
	if err != nil {
		switch {
		case errors.Is(err, provisioning.ErrInvalidBaseURL):
			ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, provisioning.ErrNotProvisioned):
			ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, provisioning.ErrBadBootstrapSecret):
			ctx.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		case errors.Is(err, provisioning.ErrAlreadyPaired):
			ctx.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			slog.Error("Failed to pair hub", "serial", req.Serial, "error", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to pair hub"})
		}
		return
	}

	ctx.JSON(http.StatusOK, dto.PairHubResponse{
		OK:                          true,
		Serial:                      result.Serial,
		SyncSecret:                  result.SyncSecret,
		PlatformSyncIntervalMinutes: result.SyncIntervalMinutes,
	})
}
