package dto

type RotationResponse struct {
	OK      bool `json:"ok"`
	Created int  `json:"created"`
	Expired int  `json:"expired"`
}
