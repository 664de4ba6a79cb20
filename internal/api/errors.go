package api

import (
	"errors"
	"net/http"

	"github.com/ryhazerus/hitcount"
)

// apiError is the JSON error body, shaped after Stripe-style API errors.
type apiError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
	Status  int    `json:"-"`
}

type errorResponse struct {
	Error *apiError `json:"error"`
}

func (e *apiError) Error() string {
	return e.Message
}

func (e *apiError) with(message, param string) *apiError {
	dup := *e
	dup.Message = message
	dup.Param = param
	return &dup
}

var (
	errBadRequest  = &apiError{Type: "request_error", Code: "bad_request", Message: "Bad request", Status: http.StatusBadRequest}
	errInvalidName = &apiError{Type: "request_error", Code: "invalid_counter_name", Message: "Invalid counter name", Param: "name", Status: http.StatusBadRequest}
	errInvalidTime = &apiError{Type: "request_error", Code: "invalid_timestamp", Message: "Invalid timestamp", Status: http.StatusBadRequest}
	errInvalidSpan = &apiError{Type: "request_error", Code: "invalid_span", Message: "Invalid span", Status: http.StatusBadRequest}
	errNotFound    = &apiError{Type: "not_found", Code: "resource_not_found", Message: "Resource not found", Status: http.StatusNotFound}
	errUnavailable = &apiError{Type: "api_error", Code: "store_unavailable", Message: "Counter store unavailable", Status: http.StatusServiceUnavailable}
	errInternal    = &apiError{Type: "api_error", Code: "internal_error", Message: "Internal server error", Status: http.StatusInternalServerError}
)

// toAPIError maps counter errors onto HTTP errors.
func toAPIError(err error) *apiError {
	var ae *apiError
	switch {
	case errors.As(err, &ae):
		return ae
	case errors.Is(err, hitcount.ErrInvalidIdentity):
		return errInvalidName.with(err.Error(), "name")
	case errors.Is(err, hitcount.ErrInvalidTimestamp):
		return errInvalidTime.with(err.Error(), "")
	case errors.Is(err, hitcount.ErrInvalidSpan):
		return errInvalidSpan.with(err.Error(), "")
	case errors.Is(err, hitcount.ErrStoreUnavailable):
		return errUnavailable
	default:
		return errInternal
	}
}
