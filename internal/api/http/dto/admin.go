package dto

type CreateServiceTokenRequest struct {
	InstallID string `json:"install_id" binding:"required"`
	Service   string `json:"service" binding:"required"`
}

type CreateServiceTokenResponse struct {
	Token string `json:"token"`
}
