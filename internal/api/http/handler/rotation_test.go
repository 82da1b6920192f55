package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/dinodialabs/hub-platform/internal/api/http/dto"
	"github.com/dinodialabs/hub-platform/internal/hubs"
	"github.com/dinodialabs/hub-platform/internal/rotation"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotationTrigger(t *testing.T) {
	store := hubs.NewMemStore()
	install := &hubs.HubInstall{
		Serial:              "HUB-001",
		PlatformSyncEnabled: true,
		RotateEveryDays:     14,
		GraceMinutes:        10080,
	}
	require.NoError(t, store.CreateInstall(context.Background(), install))

	r := gin.New()
	r.POST("/api/v1/cron/hub-token-rotation", NewRotationHandler(rotation.NewService(store, newTestCipher(t))).Trigger)

	w := postJSON(r, "/api/v1/cron/hub-token-rotation", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp dto.RotationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.OK)
	assert.Equal(t, 1, resp.Created)
	assert.Equal(t, 0, resp.Expired)
}
