package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coinfolio/taxledger-backend/internal/api/request"
	"github.com/coinfolio/taxledger-backend/internal/api/response"
	"github.com/coinfolio/taxledger-backend/internal/apperrors"
	"github.com/coinfolio/taxledger-backend/internal/credentials"
	"github.com/coinfolio/taxledger-backend/internal/validation"
)

// CredentialHandler handles HTTP requests for exchange credential endpoints.
// Credentials are encrypted at rest; the API never returns stored secrets,
// only the locations they are stored for.
type CredentialHandler struct {
	vault *credentials.Vault
}

// NewCredentialHandler creates a new CredentialHandler backed by the vault.
func NewCredentialHandler(vault *credentials.Vault) *CredentialHandler {
	return &CredentialHandler{
		vault: vault,
	}
}

// LocationsResponse lists the exchange locations with stored credentials.
type LocationsResponse struct {
	Locations []string `json:"locations"`
}

// Locations handles GET requests to list locations with stored credentials.
//
// Endpoint: GET /api/credentials
// Response: 200 OK with LocationsResponse
// Error: 500 Internal Server Error if retrieval fails
func (h *CredentialHandler) Locations(w http.ResponseWriter, _ *http.Request) {
	locations, err := h.vault.Locations()
	if err != nil {
		response.RespondError(w, http.StatusInternalServerError, apperrors.ErrFailedToRetrieveCredentials.Error(), err.Error())
		return
	}

	response.RespondJSON(w, http.StatusOK, LocationsResponse{Locations: locations})
}

// SetCredential handles PUT requests to store credentials for a location.
// Existing credentials for the location are replaced.
//
// Endpoint: PUT /api/credentials/{location}
// Request Body: SetCredentialRequest (apiKey, apiSecret)
// Response: 204 No Content
// Error: 400 Bad Request if the location is unsupported or validation fails
// Error: 500 Internal Server Error if storage fails
func (h *CredentialHandler) SetCredential(w http.ResponseWriter, r *http.Request) {
	location := chi.URLParam(r, "location")

	if err := validation.ValidateLocation(location); err != nil {
		response.RespondError(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	req, err := parseJSON[request.SetCredentialRequest](r)
	if err != nil {
		response.RespondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	if err := validation.ValidateSetCredential(req); err != nil {
		response.RespondError(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	if err := h.vault.Store(location, req.APIKey, req.APISecret); err != nil {
		response.RespondError(w, http.StatusInternalServerError, apperrors.ErrFailedToStoreCredentials.Error(), err.Error())
		return
	}

	response.RespondJSON(w, http.StatusNoContent, nil)
}

// DeleteCredential handles DELETE requests to remove stored credentials.
//
// Endpoint: DELETE /api/credentials/{location}
// Response: 204 No Content
// Error: 400 Bad Request if the location is unsupported
// Error: 404 Not Found if no credentials are stored for the location
// Error: 500 Internal Server Error if deletion fails
func (h *CredentialHandler) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	location := chi.URLParam(r, "location")

	if err := validation.ValidateLocation(location); err != nil {
		response.RespondError(w, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	if err := h.vault.Remove(location); err != nil {
		if errors.Is(err, apperrors.ErrCredentialNotFound) {
			response.RespondError(w, http.StatusNotFound, apperrors.ErrCredentialNotFound.Error(), "")
			return
		}
		response.RespondError(w, http.StatusInternalServerError, apperrors.ErrFailedToDeleteCredentials.Error(), err.Error())
		return
	}

	response.RespondJSON(w, http.StatusNoContent, nil)
}
