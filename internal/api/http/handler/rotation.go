package handler

import (
	"log/slog"
	"net/http"

	"github.com/dinodialabs/hub-platform/internal/api/http/dto"
	"github.com/dinodialabs/hub-platform/internal/rotation"
	"github.com/gin-gonic/gin"
)

type RotationHandler struct {
	service *rotation.Service
}

func NewRotationHandler(service *rotation.Service) *RotationHandler {
	return &RotationHandler{service: service}
}

// Trigger runs one rotation pass across all sync-enabled installs.
func (h *RotationHandler) Trigger(ctx *gin.Context) {
	result, err := h.service.RunPass(ctx.Request.Context())
	if err != nil {
		slog.Error("Rotation pass failed", "error", err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Rotation pass failed"})
		return
	}

	ctx.JSON(http.StatusOK, dto.RotationResponse{
		OK:      true,
		Created: result.Created,
		Expired: result.Expired,
	})
}
