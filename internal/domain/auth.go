package domain

import "context"

// Identity is the verified caller behind a bearer credential.
type Identity struct {
	Subject string `json:"sub"`
	Name    string `json:"name,omitempty"`
}

// Verifier checks a bearer credential and returns the caller identity.
// Any rejection must wrap ErrAuthInvalid.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}
