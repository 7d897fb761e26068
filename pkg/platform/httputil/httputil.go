// Package httputil writes JSON responses and maps domain error codes to HTTP
// statuses so every handler answers failures in the same shape.
package httputil

import (
	"encoding/json"
	"net/http"

	dErrors "corridor/pkg/domain-errors"
)

// ErrorResponse is the JSON body returned for failed requests.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	RequestID        string `json:"request_id,omitempty"`
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError translates err into a status and body. Internal errors never
// leak their message.
func WriteError(w http.ResponseWriter, err error) {
	WriteErrorWithRequestID(w, err, "")
}

// WriteErrorWithRequestID is WriteError with the request ID echoed in the body.
func WriteErrorWithRequestID(w http.ResponseWriter, err error, requestID string) {
	code := dErrors.CodeOf(err)
	resp := ErrorResponse{Error: string(code), RequestID: requestID}
	if code != dErrors.CodeInternal {
		resp.ErrorDescription = dErrors.MessageOf(err)
	}
	WriteJSON(w, StatusFor(code), resp)
}

// StatusFor maps a domain error code to an HTTP status.
func StatusFor(code dErrors.Code) int {
	switch code {
	case dErrors.CodeUnauthenticated, dErrors.CodeTokenExpired,
		dErrors.CodeInvalidIssuer, dErrors.CodeInvalidAudience:
		return http.StatusUnauthorized
	case dErrors.CodeForbidden:
		return http.StatusForbidden
	case dErrors.CodeQuotaExceeded:
		return http.StatusTooManyRequests
	case dErrors.CodeBadRequest:
		return http.StatusBadRequest
	case dErrors.CodeNotFound:
		return http.StatusNotFound
	case dErrors.CodeBusUnavailable, dErrors.CodeTopologyDeclarationFailed, dErrors.CodeAuditDeliveryFailed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSON reads a JSON body into v, reporting malformed input as bad_request.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "invalid JSON body")
	}
	return nil
}
