package dto

type CredentialResponse struct {
	BaseURL        string `json:"baseUrl"`
	LongLivedToken string `json:"longLivedToken"`
}
