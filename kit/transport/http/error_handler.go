package http

import (
	"context"
	"encoding/json"
	"net/http"

	icontext "github.com/tenantdb/tenantdb/context"
	"github.com/tenantdb/tenantdb/kit/platform/errors"
)

// PlatformErrorCodeHeader shows the error code of platform error.
const PlatformErrorCodeHeader = "X-Platform-Error-Code"

// ErrorHandler is the error handler in http package.
type ErrorHandler int

var _ errors.HTTPErrorHandler = ErrorHandler(0)

// ErrorBody is the JSON body of every failed response.
type ErrorBody struct {
	Success bool        `json:"success"`
	Status  int         `json:"status"`
	Error   ErrorDetail `json:"error"`
}

// ErrorDetail describes the failure. Details carries the full error chain and is
// only filled when the request asked for debug output.
type ErrorDetail struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// HandleHTTPError encodes err with the appropriate status code and format,
// sets the X-Platform-Error-Code headers on the response.
func (h ErrorHandler) HandleHTTPError(ctx context.Context, err error, w http.ResponseWriter) {
	if err == nil {
		return
	}

	body := NewErrorBody(ctx, err)
	w.Header().Set(PlatformErrorCodeHeader, body.Error.Code)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(body.Status)
	b, _ := json.Marshal(body)
	_, _ = w.Write(b)
}

// NewErrorBody builds the response body of err.
func NewErrorBody(ctx context.Context, err error) ErrorBody {
	code := errors.ErrorCode(err)
	debug := icontext.IsDebug(ctx)

	e := ErrorDetail{Code: code}
	if code == errors.EInternal && !debug {
		e.Message = "An internal error has occurred."
	} else {
		e.Message = errors.ErrorMessage(err)
	}
	if debug {
		e.Details = err.Error()
		if op := errors.ErrorOp(err); op != "" {
			e.Details = op + ": " + e.Details
		}
	}

	return ErrorBody{
		Success: false,
		Status:  StatusCode(err),
		Error:   e,
	}
}

// StatusCode returns the HTTP status matching the code of err.
func StatusCode(err error) int {
	code, ok := statusCodePlatformError[errors.ErrorCode(err)]
	if !ok {
		return http.StatusBadRequest
	}
	return code
}

// statusCodePlatformError is the map convert platform.Error to error
var statusCodePlatformError = map[string]int{
	errors.EInternal:              http.StatusInternalServerError,
	errors.ENotImplemented:        http.StatusNotImplemented,
	errors.EInvalid:               http.StatusBadRequest,
	errors.EUnprocessableEntity:   http.StatusUnprocessableEntity,
	errors.EEmptyValue:            http.StatusBadRequest,
	errors.EConflict:              http.StatusConflict,
	errors.ENotFound:              http.StatusNotFound,
	errors.EUnavailable:           http.StatusServiceUnavailable,
	errors.EForbidden:             http.StatusForbidden,
	errors.ETooManyRequests:       http.StatusTooManyRequests,
	errors.EUnauthorized:          http.StatusUnauthorized,
	errors.EMethodNotAllowed:      http.StatusMethodNotAllowed,
	errors.ETooLarge:              http.StatusRequestEntityTooLarge,
	errors.ETenantResolution:      http.StatusBadRequest,
	errors.EDisabled:              http.StatusForbidden,
	errors.EInsufficientPrivilege: http.StatusForbidden,
	errors.EVersionConflict:       http.StatusConflict,
	errors.EInvalidSchema:         http.StatusBadRequest,
	errors.EBatchLimitExceeded:    http.StatusBadRequest,
}
