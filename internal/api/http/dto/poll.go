package dto

// Field names follow the wire format the deployed hub agents already
// speak, hence camelCase rather than snake_case.

type PollRequest struct {
	Serial           string `json:"serial" binding:"required"`
	TS               int64  `json:"ts" binding:"required"`
	Nonce            string `json:"nonce" binding:"required"`
	Sig              string `json:"sig" binding:"required"`
	AgentSeenVersion int    `json:"agentSeenVersion"`
}

type PollResponse struct {
	OK                          bool     `json:"ok"`
	PlatformSyncEnabled         bool     `json:"platformSyncEnabled"`
	PlatformSyncIntervalMinutes int      `json:"platformSyncIntervalMinutes"`
	PublishedVersion            int      `json:"publishedVersion"`
	LatestVersion               int      `json:"latestVersion"`
	HubTokenHashes              []string `json:"hubTokenHashes"`
}
