package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dinodialabs/hub-platform/internal/agentsync"
	"github.com/dinodialabs/hub-platform/internal/api/http/dto"
	"github.com/gin-gonic/gin"
)

type PollHandler struct {
	service *agentsync.Service
}

func NewPollHandler(service *agentsync.Service) *PollHandler {
	return &PollHandler{service: service}
}

// TokenState handles the hub agent's periodic check-in.
func (h *PollHandler) TokenState(ctx *gin.Context) {
	var req dto.PollRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "serial, ts, nonce, sig are required"})
		return
	}

	result, err := h.service.Poll(ctx.Request.Context(), agentsync.PollRequest{
		Serial:           req.Serial,
		TS:               req.TS,
		Nonce:            req.Nonce,
		Sig:              req.Sig,
		AgentSeenVersion: req.AgentSeenVersion,
	})
	if err != nil {
		switch {
		case errors.Is(err, agentsync.ErrUnknownSerial):
			ctx.JSON(http.StatusNotFound, gin.H{"error": "Unknown hub serial"})
		case errors.Is(err, agentsync.ErrNotPaired):
			ctx.JSON(http.StatusUnauthorized, gin.H{"error": "Hub not paired yet"})
		case errors.Is(err, agentsync.ErrBadSignature),
			errors.Is(err, agentsync.ErrClockSkew),
			errors.Is(err, agentsync.ErrReplayedNonce):
			ctx.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		default:
			slog.Error("Poll failed", "serial", req.Serial, "error", err)
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		}
		return
	}

	ctx.JSON(http.StatusOK, dto.PollResponse{
		OK:                          true,
		PlatformSyncEnabled:         result.PlatformSyncEnabled,
		PlatformSyncIntervalMinutes: result.PlatformSyncIntervalMinutes,
		PublishedVersion:            result.PublishedVersion,
		LatestVersion:               result.LatestVersion,
		HubTokenHashes:              result.HubTokenHashes,
	})
}
