package validation

import (
	"testing"

	"github.com/coinfolio/taxledger-backend/internal/api/request"
)

func TestValidateLocation(t *testing.T) {
	for _, location := range []string{"poloniex", "bitmex", "bittrex"} {
		if err := ValidateLocation(location); err != nil {
			t.Errorf("Expected %s accepted, got %v", location, err)
		}
	}
	for _, location := range []string{"mtgox", "Poloniex", ""} {
		if err := ValidateLocation(location); err == nil {
			t.Errorf("Expected %q rejected", location)
		}
	}
}

func TestValidateSetCredential(t *testing.T) {
	req := request.SetCredentialRequest{APIKey: "k", APISecret: "s"}
	if err := ValidateSetCredential(req); err != nil {
		t.Errorf("Expected valid request, got %v", err)
	}

	fieldError(t, ValidateSetCredential(request.SetCredentialRequest{APISecret: "s"}), "apiKey")
	fieldError(t, ValidateSetCredential(request.SetCredentialRequest{APIKey: "k"}), "apiSecret")
	fieldError(t, ValidateSetCredential(request.SetCredentialRequest{APIKey: " ", APISecret: "s"}), "apiKey")
}
