// Package oauth is the protocol facade: it orchestrates the grant
// flows over the code, token, tenant and user collaborators and owns
// the wire-level error taxonomy.
package oauth

import (
	"errors"
	"net/http"
)

// Error is a protocol-level failure carried to the wire as
// {error, error_description}.
type Error struct {
	Code        string
	Description string
	Status      int
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ": " + e.Description
}

func newError(code, description string, status int) *Error {
	return &Error{Code: code, Description: description, Status: status}
}

// OAuth2 error codes (RFC 6749 §5.2) plus the rate-limit rejection.
func ErrInvalidRequest(description string) *Error {
	return newError("invalid_request", description, http.StatusBadRequest)
}

func ErrInvalidClient() *Error {
	return newError("invalid_client", "client authentication failed", http.StatusUnauthorized)
}

func ErrInvalidGrant() *Error {
	return newError("invalid_grant", "the provided grant is invalid, expired, or revoked", http.StatusBadRequest)
}

func ErrUnsupportedGrantType(grantType string) *Error {
	return newError("unsupported_grant_type", "grant type "+grantType+" is not supported", http.StatusBadRequest)
}

func ErrAccessDenied() *Error {
	return newError("access_denied", "the resource owner denied the request", http.StatusForbidden)
}

func ErrServerError() *Error {
	return newError("server_error", "the authorization server encountered an unexpected condition", http.StatusInternalServerError)
}

// AsError maps any failure to its wire form. Unrecognized errors become
// server_error so internals never leak.
func AsError(err error) *Error {
	var oautherr *Error
	if errors.As(err, &oautherr) {
		return oautherr
	}
	return ErrServerError()
}
