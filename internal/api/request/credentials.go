package request

// SetCredentialRequest stores the API credentials for one exchange location.
type SetCredentialRequest struct {
	APIKey    string `json:"apiKey"`
	APISecret string `json:"apiSecret"`
}
