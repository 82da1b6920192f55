package handler

import (
	"log/slog"
	"net/http"

	"github.com/dinodialabs/hub-platform/internal/api/http/dto"
	"github.com/dinodialabs/hub-platform/internal/auth"
	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	authConfig auth.Config
}

func NewAdminHandler(authConfig auth.Config) *AdminHandler {
	return &AdminHandler{authConfig: authConfig}
}

// CreateServiceToken mints a service token binding a trusted first-party
// service to one install, for use against the credential read endpoint.
func (h *AdminHandler) CreateServiceToken(ctx *gin.Context) {
	var req dto.CreateServiceTokenRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "install_id and service are required"})
		return
	}

	token, err := auth.GenerateServiceToken(h.authConfig, req.InstallID, req.Service)
	if err != nil {
		slog.Error("Failed to mint service token", "install_id", req.InstallID, "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mint service token"})
		return
	}

	ctx.JSON(http.StatusCreated, dto.CreateServiceTokenResponse{Token: token})
}
