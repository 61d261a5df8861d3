package api

import (
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/localzure/localzure/pkg/events"
	"github.com/localzure/localzure/pkg/metrics"
	"github.com/localzure/localzure/pkg/oauth"
)

// handleToken implements the RFC 6749 token endpoint for the
// client_credentials grant
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, http.StatusBadRequest, "invalid_request", "request body is not valid form data")
		return
	}

	resp, err := s.opts.Issuer.IssueToken(oauth.TokenRequest{
		GrantType: r.PostFormValue("grant_type"),
		Scope:     r.PostFormValue("scope"),
		Resource:  r.PostFormValue("resource"),
		ClientID:  r.PostFormValue("client_id"),
	})
	if err != nil {
		var (
			grantErr *oauth.InvalidGrantError
			scopeErr *oauth.InvalidScopeError
		)
		switch {
		case errors.As(err, &grantErr):
			writeOAuthError(w, http.StatusBadRequest, "unsupported_grant_type", grantErr.Error())
		case errors.As(err, &scopeErr):
			writeOAuthError(w, http.StatusBadRequest, "invalid_scope", scopeErr.Error())
		default:
			s.logger.Error().Err(err).Msg("Token issuance failed")
			writeOAuthError(w, http.StatusInternalServerError, "server_error", "token issuance failed")
		}
		return
	}

	metrics.TokensIssuedTotal.Inc()
	if s.opts.Broker != nil {
		s.opts.Broker.Publish(&events.Event{
			ID:      uuid.New().String(),
			Type:    events.EventTokenIssued,
			Message: "access token issued",
			Metadata: map[string]string{
				"scope": resp.Scope,
			},
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleJWKS(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Issuer.JWKSDocument())
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Issuer.DiscoveryDocument())
}
