package api

import (
	"time"

	"github.com/ledgerkeep/ledgerkeep/credentials"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// CreateCredentialRequest is the JSON body for POST /credentials.
type CreateCredentialRequest struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// UpdateCredentialRequest is the JSON body for PUT /credentials/{name}.
type UpdateCredentialRequest struct {
	Value string `json:"value"`
}

// CredentialSummary describes a stored credential without its value.
type CredentialSummary struct {
	Name      string    `json:"name"`
	Version   uint64    `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListCredentialsResponse is returned from GET /credentials.
type ListCredentialsResponse struct {
	Credentials []CredentialSummary `json:"credentials"`
}

// GetCredentialResponse is returned from GET /credentials/{name}.
type GetCredentialResponse struct {
	CredentialSummary
	Value string `json:"value"`
}

func toSummary(s credentials.Summary) CredentialSummary {
	return CredentialSummary{
		Name:      s.Name,
		Version:   s.Version,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}
