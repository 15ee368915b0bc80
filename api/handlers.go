package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// maxCredentialBodySize bounds request bodies. A value is at most 1000
// characters, which is at most 4000 bytes of UTF-8 before JSON escaping.
const maxCredentialBodySize = 32 << 10

// decodeJSON reads a size-limited JSON body into T, writing a 400 on failure.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request, limit int64) (T, bool) {
	var v T
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return v, false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return v, false
	}
	return v, true
}

// ListCredentials handles GET /credentials.
func (a *API) ListCredentials(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())

	list, err := a.credentials.List(r.Context(), id)
	a.metrics.observe("list", err)
	if err != nil {
		mapError(w, err)
		return
	}

	resp := ListCredentialsResponse{Credentials: make([]CredentialSummary, 0, len(list))}
	for _, s := range list {
		resp.Credentials = append(resp.Credentials, toSummary(s))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateCredential handles POST /credentials.
func (a *API) CreateCredential(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())

	req, ok := decodeJSON[CreateCredentialRequest](w, r, maxCredentialBodySize)
	if !ok {
		return
	}

	summary, err := a.credentials.Create(r.Context(), id, req.Name, req.Value)
	a.metrics.observe("create", err)
	if err != nil {
		mapError(w, err)
		return
	}

	a.audit.logEvent(AuditCredentialCreated, r, id.UserID, slog.String("name", summary.Name))
	writeJSON(w, http.StatusCreated, toSummary(*summary))
}

// GetCredential handles GET /credentials/{name} and returns the decrypted value.
func (a *API) GetCredential(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	name := chi.URLParam(r, "name")

	secret, err := a.credentials.Reveal(r.Context(), id, name)
	a.metrics.observe("reveal", err)
	if err != nil {
		if outcome(err) == "error" {
			a.audit.logEvent(AuditCredentialRevealFailed, r, id.UserID, slog.String("name", name))
		}
		mapError(w, err)
		return
	}

	a.audit.logEvent(AuditCredentialRevealed, r, id.UserID, slog.String("name", name))
	writeJSON(w, http.StatusOK, GetCredentialResponse{
		CredentialSummary: toSummary(secret.Summary),
		Value:             secret.Value,
	})
}

// UpdateCredential handles PUT /credentials/{name}. The value is re-encrypted
// under a fresh salt and IV.
func (a *API) UpdateCredential(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	name := chi.URLParam(r, "name")

	req, ok := decodeJSON[UpdateCredentialRequest](w, r, maxCredentialBodySize)
	if !ok {
		return
	}

	summary, err := a.credentials.Rotate(r.Context(), id, name, req.Value)
	a.metrics.observe("rotate", err)
	if err != nil {
		mapError(w, err)
		return
	}

	a.audit.logEvent(AuditCredentialRotated, r, id.UserID,
		slog.String("name", name),
		slog.Uint64("version", summary.Version))
	writeJSON(w, http.StatusOK, toSummary(*summary))
}

// DeleteCredential handles DELETE /credentials/{name}.
func (a *API) DeleteCredential(w http.ResponseWriter, r *http.Request) {
	id := identityFromContext(r.Context())
	name := chi.URLParam(r, "name")

	err := a.credentials.Delete(r.Context(), id, name)
	a.metrics.observe("delete", err)
	if err != nil {
		mapError(w, err)
		return
	}

	a.audit.logEvent(AuditCredentialDeleted, r, id.UserID, slog.String("name", name))
	w.WriteHeader(http.StatusNoContent)
}
