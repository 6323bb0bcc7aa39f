package validation

import (
	"fmt"
	"strings"

	"github.com/coinfolio/taxledger-backend/internal/api/request"
)

// ValidLocation contains the exchange locations credentials can be stored for.
var ValidLocation = map[string]bool{
	"poloniex": true, "bitmex": true, "bittrex": true,
}

// ValidateLocation checks that a location path parameter names a supported exchange.
func ValidateLocation(location string) error {
	if !ValidLocation[location] {
		return &Error{Fields: map[string]string{
			"location": fmt.Sprintf("unsupported location: %s", location),
		}}
	}
	return nil
}

// ValidateSetCredential validates a credential storage request.
// Both the API key and secret must be non-empty.
func ValidateSetCredential(req request.SetCredentialRequest) error {
	errors := make(map[string]string)

	if strings.TrimSpace(req.APIKey) == "" {
		errors["apiKey"] = "apiKey is required"
	}
	if strings.TrimSpace(req.APISecret) == "" {
		errors["apiSecret"] = "apiSecret is required"
	}

	if len(errors) > 0 {
		return &Error{Fields: errors}
	}

	return nil
}
