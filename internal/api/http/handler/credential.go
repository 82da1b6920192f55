package handler

import (
	"errors"
	"net/http"

	"github.com/dinodialabs/hub-platform/internal/api/http/dto"
	"github.com/dinodialabs/hub-platform/internal/api/http/middleware"
	"github.com/dinodialabs/hub-platform/internal/issuance"
	"github.com/gin-gonic/gin"
)

type CredentialHandler struct {
	service *issuance.Service
}

func NewCredentialHandler(service *issuance.Service) *CredentialHandler {
	return &CredentialHandler{service: service}
}

// Read returns the currently published hub credential for the install the
// caller's service token is bound to.
func (h *CredentialHandler) Read(ctx *gin.Context) {
	installID := ctx.GetString(middleware.ContextInstallID)
	if installID == "" {
		ctx.JSON(http.StatusUnauthorized, gin.H{"error": "missing install binding"})
		return
	}

	credential, err := h.service.Read(ctx.Request.Context(), installID)
	if err != nil {
		switch {
		case errors.Is(err, issuance.ErrNotConfigured):
			ctx.JSON(http.StatusPreconditionFailed, gin.H{"error": "No hub credential published yet"})
		default:
			// Inconsistencies are already logged loudly by the service.
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
		}
		return
	}

	ctx.JSON(http.StatusOK, dto.CredentialResponse{
		BaseURL:        credential.BaseURL,
		LongLivedToken: credential.LongLivedToken,
	})
}
