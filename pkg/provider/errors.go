// SPDX-FileCopyrightText: Copyright 2025 Steamgate Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"encoding/json"
	"net/http"

	"github.com/steamgate/steamgate/pkg/logger"
)

// Error is a protocol-level error serialized as the standard OAuth 2.0 /
// OIDC error body {"error": ..., "error_description": ...}.
type Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`

	// Status is the HTTP status the error is written with. Not serialized.
	Status int `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Code + ": " + e.Description
}

func invalidRequest(description string) *Error {
	return &Error{Code: "invalid_request", Description: description, Status: http.StatusBadRequest}
}

func invalidClient(description string) *Error {
	return &Error{Code: "invalid_client", Description: description, Status: http.StatusUnauthorized}
}

func invalidGrant(description string) *Error {
	return &Error{Code: "invalid_grant", Description: description, Status: http.StatusBadRequest}
}

func unsupportedResponseType(description string) *Error {
	return &Error{Code: "unsupported_response_type", Description: description, Status: http.StatusBadRequest}
}

func unsupportedGrantType(description string) *Error {
	return &Error{Code: "unsupported_grant_type", Description: description, Status: http.StatusBadRequest}
}

func invalidToken(description string) *Error {
	return &Error{Code: "invalid_token", Description: description, Status: http.StatusUnauthorized}
}

func serverError(description string) *Error {
	return &Error{Code: "server_error", Description: description, Status: http.StatusInternalServerError}
}

// writeError writes a protocol error response. invalid_client and
// invalid_token additionally carry the WWW-Authenticate challenge their
// specs require.
func writeError(w http.ResponseWriter, err *Error) {
	switch err.Code {
	case "invalid_client":
		w.Header().Set("WWW-Authenticate", `Basic realm="token"`)
	case "invalid_token":
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status)
	if encodeErr := json.NewEncoder(w).Encode(err); encodeErr != nil {
		logger.Errorw("failed to write error response", "error", encodeErr)
	}
}

// writeJSON writes a successful JSON response.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Errorw("failed to write response", "error", err)
	}
}
