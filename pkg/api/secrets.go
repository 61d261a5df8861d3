package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/localzure/localzure/pkg/keyvault"
)

// listResponse is the Azure paging envelope. LocalZure returns everything
// in one page, so nextLink is always null.
type listResponse struct {
	Value    any     `json:"value"`
	NextLink *string `json:"nextLink"`
}

// maxResults reads the ?maxresults query parameter; zero means unbounded
func maxResults(r *http.Request) int {
	raw := r.URL.Query().Get("maxresults")
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func (s *Server) handleSetSecret(w http.ResponseWriter, r *http.Request) {
	vault := r.PathValue("vault")
	name := r.PathValue("name")

	var req keyvault.SetSecretRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeKeyVaultError(w, http.StatusBadRequest, "BadParameter", "request body is not valid JSON")
		return
	}

	bundle, err := s.opts.Engine.SetSecret(r.Context(), vault, name, req)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (s *Server) handleGetSecret(w http.ResponseWriter, r *http.Request) {
	vault := r.PathValue("vault")
	name := r.PathValue("name")
	version := r.PathValue("version")

	bundle, err := s.opts.Engine.GetSecret(r.Context(), vault, name, version)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (s *Server) handleListSecrets(w http.ResponseWriter, r *http.Request) {
	vault := r.PathValue("vault")

	items, err := s.opts.Engine.ListSecrets(r.Context(), vault, maxResults(r))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Value: items})
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	vault := r.PathValue("vault")
	name := r.PathValue("name")

	items, err := s.opts.Engine.ListSecretVersions(r.Context(), vault, name, maxResults(r))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Value: items})
}

func (s *Server) handleUpdateSecret(w http.ResponseWriter, r *http.Request) {
	vault := r.PathValue("vault")
	name := r.PathValue("name")
	version := r.PathValue("version")

	var req keyvault.UpdateSecretRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeKeyVaultError(w, http.StatusBadRequest, "BadParameter", "request body is not valid JSON")
		return
	}

	bundle, err := s.opts.Engine.UpdateSecretProperties(r.Context(), vault, name, version, req)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (s *Server) handleDeleteSecret(w http.ResponseWriter, r *http.Request) {
	vault := r.PathValue("vault")
	name := r.PathValue("name")

	deleted, err := s.opts.Engine.DeleteSecret(r.Context(), vault, name)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deleted)
}

func (s *Server) handleListDeleted(w http.ResponseWriter, r *http.Request) {
	vault := r.PathValue("vault")

	items, err := s.opts.Engine.ListDeletedSecrets(r.Context(), vault, maxResults(r))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Value: items})
}

func (s *Server) handleGetDeleted(w http.ResponseWriter, r *http.Request) {
	vault := r.PathValue("vault")
	name := r.PathValue("name")

	deleted, err := s.opts.Engine.GetDeletedSecret(r.Context(), vault, name)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deleted)
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	vault := r.PathValue("vault")
	name := r.PathValue("name")

	bundle, err := s.opts.Engine.RecoverDeletedSecret(r.Context(), vault, name)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

func (s *Server) handlePurge(w http.ResponseWriter, r *http.Request) {
	vault := r.PathValue("vault")
	name := r.PathValue("name")

	if err := s.opts.Engine.PurgeDeletedSecret(r.Context(), vault, name); err != nil {
		s.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
