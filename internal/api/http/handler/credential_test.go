package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dinodialabs/hub-platform/internal/api/http/dto"
	"github.com/dinodialabs/hub-platform/internal/api/http/middleware"
	"github.com/dinodialabs/hub-platform/internal/auth"
	"github.com/dinodialabs/hub-platform/internal/hubs"
	"github.com/dinodialabs/hub-platform/internal/issuance"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAuthConfig = auth.Config{Secret: "test-jwt-secret", Issuer: "hub-platform", TTLMinutes: 10}

func setupCredentialRouter(t *testing.T) (*gin.Engine, *hubs.MemStore) {
	t.Helper()
	store := hubs.NewMemStore()
	svc := issuance.NewService(store, newTestCipher(t))

	r := gin.New()
	kiosk := r.Group("/api/v1/kiosk", middleware.ServiceJWTAuth(testAuthConfig.Secret))
	kiosk.GET("/remote-access/credentials", NewCredentialHandler(svc).Read)
	return r, store
}

func getCredentials(r *gin.Engine, bearer string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("GET", "/api/v1/kiosk/remote-access/credentials", nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestReadCredentialsMissingToken(t *testing.T) {
	r, _ := setupCredentialRouter(t)
	w := getCredentials(r, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestReadCredentialsInvalidToken(t *testing.T) {
	r, _ := setupCredentialRouter(t)
	w := getCredentials(r, "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestReadCredentialsNothingPublished(t *testing.T) {
	r, store := setupCredentialRouter(t)

	install := &hubs.HubInstall{Serial: "HUB-001", BaseURL: "https://hub-001.example.com"}
	require.NoError(t, store.CreateInstall(context.Background(), install))

	token, err := auth.GenerateServiceToken(testAuthConfig, install.ID, "kiosk-proxy")
	require.NoError(t, err)

	w := getCredentials(r, token)
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
}

func TestReadCredentialsPublished(t *testing.T) {
	r, store := setupCredentialRouter(t)
	cipher := newTestCipher(t)

	install := &hubs.HubInstall{
		Serial:                   "HUB-001",
		BaseURL:                  "https://hub-001.example.com",
		PublishedHubTokenVersion: 1,
	}
	require.NoError(t, store.CreateInstall(context.Background(), install))

	material, err := hubs.NewTokenMaterial(cipher)
	require.NoError(t, err)

	publishedAt := time.Now()
	err = store.WithInstall(context.Background(), install.ID, func(tx hubs.InstallTx) error {
		return tx.CreateToken(&hubs.HubToken{
			Version:         1,
			Status:          hubs.TokenActive,
			TokenHash:       material.Hash,
			TokenCiphertext: material.Ciphertext,
			PublishedAt:     &publishedAt,
		})
	})
	require.NoError(t, err)

	token, err := auth.GenerateServiceToken(testAuthConfig, install.ID, "kiosk-proxy")
	require.NoError(t, err)

	w := getCredentials(r, token)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.CredentialResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "https://hub-001.example.com", resp.BaseURL)
	assert.Equal(t, material.Plaintext, resp.LongLivedToken)
}
