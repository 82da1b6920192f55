package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dinodialabs/hub-platform/internal/api/http/dto"
	"github.com/dinodialabs/hub-platform/internal/hubcrypto"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubProvisioning(t *testing.T, router *gin.Engine, adminKey string) {
	t.Run("success", func(t *testing.T) {
		body := dto.ProvisionHubRequest{Serial: "HUB-PROV-001"}
		rr := doJSON(router, "POST", "/api/v1/installer/hubs/provision", body, adminHeaders(adminKey))

		assert.Equal(t, http.StatusOK, rr.Code)

		var resp dto.ProvisionHubResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.True(t, resp.OK)
		assert.Equal(t, "HUB-PROV-001", resp.Serial)
		assert.NotEmpty(t, resp.BootstrapSecret)
	})

	t.Run("duplicate serial", func(t *testing.T) {
		body := dto.ProvisionHubRequest{Serial: "HUB-PROV-002"}
		rr := doJSON(router, "POST", "/api/v1/installer/hubs/provision", body, adminHeaders(adminKey))
		require.Equal(t, http.StatusOK, rr.Code)

		rr = doJSON(router, "POST", "/api/v1/installer/hubs/provision", body, adminHeaders(adminKey))
		assert.Equal(t, http.StatusConflict, rr.Code)
	})

	t.Run("missing serial", func(t *testing.T) {
		rr := doJSON(router, "POST", "/api/v1/installer/hubs/provision", dto.ProvisionHubRequest{}, adminHeaders(adminKey))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("missing API key", func(t *testing.T) {
		body := dto.ProvisionHubRequest{Serial: "HUB-PROV-003"}
		rr := doJSON(router, "POST", "/api/v1/installer/hubs/provision", body, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("wrong API key", func(t *testing.T) {
		body := dto.ProvisionHubRequest{Serial: "HUB-PROV-003"}
		rr := doJSON(router, "POST", "/api/v1/installer/hubs/provision", body, adminHeaders("not-the-key"))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func TestRotationTrigger(t *testing.T, router *gin.Engine, cronSecret string) {
	t.Run("missing secret", func(t *testing.T) {
		rr := doJSON(router, "POST", "/api/v1/cron/hub-token-rotation", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		rr := doJSON(router, "POST", "/api/v1/cron/hub-token-rotation?secret=nope", nil, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("bearer secret", func(t *testing.T) {
		rr := doJSON(router, "POST", "/api/v1/cron/hub-token-rotation", nil,
			map[string]string{"Authorization": "Bearer " + cronSecret})
		assert.Equal(t, http.StatusOK, rr.Code)

		var resp dto.RotationResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		assert.True(t, resp.OK)
	})

	t.Run("query secret on GET", func(t *testing.T) {
		rr := doJSON(router, "GET", "/api/v1/cron/hub-token-rotation?secret="+cronSecret, nil, nil)
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

// TestHubLifecycle walks one install through the whole protocol:
// provision, pair, first promotion, scheduled rotation, grace expiry.
func TestHubLifecycle(t *testing.T, router *gin.Engine, pool *pgxpool.Pool, adminKey, cronSecret string) {
	ctx := context.Background()
	const serial = "HUB-LIFE-001"
	const baseURL = "https://hub-life-001.example.com"

	// Provision.
	rr := doJSON(router, "POST", "/api/v1/installer/hubs/provision",
		dto.ProvisionHubRequest{Serial: serial}, adminHeaders(adminKey))
	require.Equal(t, http.StatusOK, rr.Code)
	var provisioned dto.ProvisionHubResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &provisioned))

	var installID string
	require.NoError(t, pool.QueryRow(ctx,
		"SELECT id FROM hub_installs WHERE serial = $1", serial).Scan(&installID))

	// Polling before pairing is rejected.
	rr = pollSigned(router, serial, "whatever", 0)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	// Pairing with the wrong bootstrap secret is rejected.
	rr = doJSON(router, "POST", "/api/v1/hub-agent/pair",
		dto.PairHubRequest{Serial: serial, BootstrapSecret: "wrong", BaseURL: baseURL}, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	// Pair.
	rr = doJSON(router, "POST", "/api/v1/hub-agent/pair",
		dto.PairHubRequest{Serial: serial, BootstrapSecret: provisioned.BootstrapSecret, BaseURL: baseURL}, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var paired dto.PairHubResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &paired))
	require.NotEmpty(t, paired.SyncSecret)
	assert.Equal(t, 5, paired.PlatformSyncIntervalMinutes)

	// Pairing twice is rejected.
	rr = doJSON(router, "POST", "/api/v1/hub-agent/pair",
		dto.PairHubRequest{Serial: serial, BootstrapSecret: provisioned.BootstrapSecret, BaseURL: baseURL}, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)

	syncSecret := paired.SyncSecret

	// First poll: the seeded version 1 is still staged because the agent
	// has not reported holding it yet.
	poll := pollOK(t, router, serial, syncSecret, 0)
	assert.Equal(t, 0, poll.PublishedVersion)
	assert.Equal(t, 1, poll.LatestVersion)
	require.Len(t, poll.HubTokenHashes, 1)
	v1Hash := poll.HubTokenHashes[0]

	// No credential is readable before the first promotion.
	serviceToken := mintServiceToken(t, router, adminKey, installID)
	rr = doJSON(router, "GET", "/api/v1/kiosk/remote-access/credentials", nil, bearerHeaders(serviceToken))
	assert.Equal(t, http.StatusPreconditionFailed, rr.Code)

	// The agent reports it holds version 1; the poll promotes it.
	poll = pollOK(t, router, serial, syncSecret, 1)
	assert.Equal(t, 1, poll.PublishedVersion)
	assert.Equal(t, 1, poll.LatestVersion)
	require.Len(t, poll.HubTokenHashes, 1)

	// Credential read now returns the version 1 plaintext.
	rr = doJSON(router, "GET", "/api/v1/kiosk/remote-access/credentials", nil, bearerHeaders(serviceToken))
	require.Equal(t, http.StatusOK, rr.Code)
	var cred dto.CredentialResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &cred))
	assert.Equal(t, baseURL, cred.BaseURL)
	assert.Equal(t, v1Hash, hubcrypto.HashSHA256(cred.LongLivedToken))

	rr = doJSON(router, "GET", "/api/v1/kiosk/remote-access/credentials", nil, bearerHeaders("garbage"))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	// Age version 1 past its rotation window and run a scheduler pass.
	_, err := pool.Exec(ctx,
		"UPDATE hub_tokens SET published_at = now() - interval '20 days' WHERE hub_install_id = $1 AND version = 1",
		installID)
	require.NoError(t, err)

	rr = doJSON(router, "POST", "/api/v1/cron/hub-token-rotation", nil,
		map[string]string{"Authorization": "Bearer " + cronSecret})
	require.Equal(t, http.StatusOK, rr.Code)
	var rotated dto.RotationResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rotated))
	assert.GreaterOrEqual(t, rotated.Created, 1)

	// The agent sees both hashes but version 1 stays published until it
	// acknowledges version 2.
	poll = pollOK(t, router, serial, syncSecret, 1)
	assert.Equal(t, 1, poll.PublishedVersion)
	assert.Equal(t, 2, poll.LatestVersion)
	assert.Len(t, poll.HubTokenHashes, 2)

	// The staged version 2 is never issued: the credential read still
	// serves version 1 until the agent acknowledges its successor.
	rr = doJSON(router, "GET", "/api/v1/kiosk/remote-access/credentials", nil, bearerHeaders(serviceToken))
	require.Equal(t, http.StatusOK, rr.Code)
	var credStaged dto.CredentialResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &credStaged))
	assert.Equal(t, v1Hash, hubcrypto.HashSHA256(credStaged.LongLivedToken))

	// Acknowledge version 2: it becomes active, version 1 enters grace.
	poll = pollOK(t, router, serial, syncSecret, 2)
	assert.Equal(t, 2, poll.PublishedVersion)
	assert.Equal(t, 2, poll.LatestVersion)
	assert.Len(t, poll.HubTokenHashes, 2)

	var v1Status string
	require.NoError(t, pool.QueryRow(ctx,
		"SELECT status FROM hub_tokens WHERE hub_install_id = $1 AND version = 1", installID).Scan(&v1Status))
	assert.Equal(t, "GRACE", v1Status)

	// Credential read follows the promotion.
	rr = doJSON(router, "GET", "/api/v1/kiosk/remote-access/credentials", nil, bearerHeaders(serviceToken))
	require.Equal(t, http.StatusOK, rr.Code)
	var cred2 dto.CredentialResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &cred2))
	assert.NotEqual(t, cred.LongLivedToken, cred2.LongLivedToken)
	assert.NotEqual(t, v1Hash, hubcrypto.HashSHA256(cred2.LongLivedToken))

	// Expire the grace window; the next pass revokes version 1 and its
	// hash drops out of the accepted set.
	_, err = pool.Exec(ctx,
		"UPDATE hub_tokens SET grace_until = now() - interval '1 minute' WHERE hub_install_id = $1 AND version = 1",
		installID)
	require.NoError(t, err)

	rr = doJSON(router, "POST", "/api/v1/cron/hub-token-rotation", nil,
		map[string]string{"Authorization": "Bearer " + cronSecret})
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rotated))
	assert.GreaterOrEqual(t, rotated.Expired, 1)

	poll = pollOK(t, router, serial, syncSecret, 2)
	assert.Len(t, poll.HubTokenHashes, 1)

	require.NoError(t, pool.QueryRow(ctx,
		"SELECT status FROM hub_tokens WHERE hub_install_id = $1 AND version = 1", installID).Scan(&v1Status))
	assert.Equal(t, "REVOKED", v1Status)
}

func TestPollAuth(t *testing.T, router *gin.Engine, adminKey string) {
	const serial = "HUB-AUTH-001"

	rr := doJSON(router, "POST", "/api/v1/installer/hubs/provision",
		dto.ProvisionHubRequest{Serial: serial}, adminHeaders(adminKey))
	require.Equal(t, http.StatusOK, rr.Code)
	var provisioned dto.ProvisionHubResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &provisioned))

	rr = doJSON(router, "POST", "/api/v1/hub-agent/pair",
		dto.PairHubRequest{Serial: serial, BootstrapSecret: provisioned.BootstrapSecret, BaseURL: "https://hub-auth-001.example.com"}, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var paired dto.PairHubResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &paired))

	t.Run("unknown serial", func(t *testing.T) {
		rr := pollSigned(router, "HUB-DOES-NOT-EXIST", paired.SyncSecret, 0)
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("bad signature", func(t *testing.T) {
		body := dto.PollRequest{
			Serial: serial,
			TS:     time.Now().Unix(),
			Nonce:  uuid.NewString(),
			Sig:    "deadbeef",
		}
		rr := doJSON(router, "POST", "/api/v1/hub-agent/token-state", body, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("stale timestamp", func(t *testing.T) {
		ts := time.Now().Add(-time.Hour).Unix()
		nonce := uuid.NewString()
		body := dto.PollRequest{
			Serial: serial,
			TS:     ts,
			Nonce:  nonce,
			Sig:    hubcrypto.ComputeSignature(paired.SyncSecret, serial, ts, nonce),
		}
		rr := doJSON(router, "POST", "/api/v1/hub-agent/token-state", body, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("replayed nonce", func(t *testing.T) {
		ts := time.Now().Unix()
		nonce := uuid.NewString()
		body := dto.PollRequest{
			Serial: serial,
			TS:     ts,
			Nonce:  nonce,
			Sig:    hubcrypto.ComputeSignature(paired.SyncSecret, serial, ts, nonce),
		}
		rr := doJSON(router, "POST", "/api/v1/hub-agent/token-state", body, nil)
		require.Equal(t, http.StatusOK, rr.Code)

		rr = doJSON(router, "POST", "/api/v1/hub-agent/token-state", body, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func mintServiceToken(t *testing.T, router *gin.Engine, adminKey, installID string) string {
	body := dto.CreateServiceTokenRequest{InstallID: installID, Service: "kiosk-proxy"}
	rr := doJSON(router, "POST", "/api/v1/admin/service-tokens", body, adminHeaders(adminKey))
	require.Equal(t, http.StatusCreated, rr.Code)

	var resp dto.CreateServiceTokenResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func pollOK(t *testing.T, router *gin.Engine, serial, syncSecret string, seen int) dto.PollResponse {
	rr := pollSigned(router, serial, syncSecret, seen)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp dto.PollResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.True(t, resp.OK)
	return resp
}

func pollSigned(router *gin.Engine, serial, syncSecret string, seen int) *httptest.ResponseRecorder {
	ts := time.Now().Unix()
	nonce := uuid.NewString()
	body := dto.PollRequest{
		Serial:           serial,
		TS:               ts,
		Nonce:            nonce,
		Sig:              hubcrypto.ComputeSignature(syncSecret, serial, ts, nonce),
		AgentSeenVersion: seen,
	}
	return doJSON(router, "POST", "/api/v1/hub-agent/token-state", body, nil)
}

func adminHeaders(adminKey string) map[string]string {
	return map[string]string{"X-API-Key": adminKey}
}

func bearerHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func doJSON(router *gin.Engine, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}
