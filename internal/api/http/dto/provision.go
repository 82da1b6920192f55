package dto

type ProvisionHubRequest struct {
	Serial string `json:"serial" binding:"required"`
}

type ProvisionHubResponse struct {
	OK              bool   `json:"ok"`
	Serial          string `json:"serial"`
	BootstrapSecret string `json:"bootstrapSecret"`
}

type PairHubRequest struct {
	Serial          string `json:"serial" binding:"required"`
	BootstrapSecret string `json:"bootstrapSecret" binding:"required"`
	BaseURL         string `json:"baseUrl" binding:"required"`
}

type PairHubResponse struct {
	OK                          bool   `json:"ok"`
	Serial                      string `json:"serial"`
	SyncSecret                  string `json:"syncSecret"`
	PlatformSyncIntervalMinutes int    `json:"platformSyncIntervalMinutes"`
}
