package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ledgerkeep/ledgerkeep/credentials"
	"github.com/ledgerkeep/ledgerkeep/storage"
	"github.com/ledgerkeep/ledgerkeep/vault"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// mapError writes the response for err. Only validation messages are passed
// through verbatim; everything else gets a fixed message.
func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, credentials.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, vault.ErrInvalidIdentity):
		writeError(w, http.StatusUnauthorized, "invalid identity")
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "credential not found")
	case errors.Is(err, storage.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "credential already exists")
	case errors.Is(err, storage.ErrCASFailed):
		writeError(w, http.StatusConflict, "credential was modified concurrently")
	case errors.Is(err, credentials.ErrRetrieveFailed):
		writeError(w, http.StatusInternalServerError, credentials.ErrRetrieveFailed.Error())
	case errors.Is(err, credentials.ErrStoreFailed):
		writeError(w, http.StatusInternalServerError, credentials.ErrStoreFailed.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// outcome classifies err for metrics labels.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, credentials.ErrValidation):
		return "invalid"
	case errors.Is(err, storage.ErrNotFound):
		return "not_found"
	case errors.Is(err, storage.ErrAlreadyExists), errors.Is(err, storage.ErrCASFailed):
		return "conflict"
	default:
		return "error"
	}
}
