package api

import (
	"errors"
	"net/http"

	"github.com/localzure/localzure/pkg/keyvault"
)

// keyVaultError is the Azure data-plane error body shape
type keyVaultError struct {
	Error keyVaultErrorBody `json:"error"`
}

type keyVaultErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeKeyVaultError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, keyVaultError{Error: keyVaultErrorBody{Code: code, Message: message}})
}

// writeEngineError maps the engine's typed errors onto statuses and error
// codes: 400 invalid name, 403 disabled, 404 not found, 409 conflict, 500
// otherwise
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	var (
		notFound *keyvault.SecretNotFoundError
		disabled *keyvault.SecretDisabledError
		invalid  *keyvault.InvalidSecretNameError
		conflict *keyvault.SecretConflictError
	)

	switch {
	case errors.As(err, &notFound):
		writeKeyVaultError(w, http.StatusNotFound, "SecretNotFound", notFound.Error())
	case errors.As(err, &disabled):
		writeKeyVaultError(w, http.StatusForbidden, "SecretDisabled", disabled.Error())
	case errors.As(err, &invalid):
		writeKeyVaultError(w, http.StatusBadRequest, "BadParameter", invalid.Error())
	case errors.As(err, &conflict):
		writeKeyVaultError(w, http.StatusConflict, "Conflict", conflict.Error())
	default:
		s.logger.Error().Err(err).Msg("Unhandled engine error")
		writeKeyVaultError(w, http.StatusInternalServerError, "InternalError", "internal server error")
	}
}

// oauthError is the RFC 6749 error body shape used by the token endpoint
type oauthError struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func writeOAuthError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, oauthError{Error: code, Description: description})
}
