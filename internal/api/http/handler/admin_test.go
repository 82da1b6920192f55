package handler

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/dinodialabs/hub-platform/internal/api/http/dto"
	"github.com/dinodialabs/hub-platform/internal/auth"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupAdminRouter() *gin.Engine {
	r := gin.New()
	r.POST("/api/v1/admin/service-tokens", NewAdminHandler(testAuthConfig).CreateServiceToken)
	return r
}

func TestCreateServiceToken(t *testing.T) {
	r := setupAdminRouter()

	body := dto.CreateServiceTokenRequest{InstallID: "install-1", Service: "kiosk-proxy"}
	w := postJSON(r, "/api/v1/admin/service-tokens", body)
	assert.Equal(t, http.StatusCreated, w.Code)

	var resp dto.CreateServiceTokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)

	claims, err := auth.ValidateServiceToken(testAuthConfig.Secret, resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "install-1", claims.InstallID)
	assert.Equal(t, "kiosk-proxy", claims.Service)
}

func TestCreateServiceTokenMissingFields(t *testing.T) {
	r := setupAdminRouter()

	w := postJSON(r, "/api/v1/admin/service-tokens", dto.CreateServiceTokenRequest{Service: "kiosk-proxy"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
