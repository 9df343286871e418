package httputil

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	dErrors "warden/pkg/domain-errors"
)

// storeRetryAfter is advertised on 503s so callers back off while a durable
// store recovers.
const storeRetryAfter = 5

type errorMapping struct {
	status int
	code   string
}

var errorMappings = map[dErrors.Code]errorMapping{
	dErrors.CodeNotFound:           {http.StatusNotFound, "not_found"},
	dErrors.CodeBadRequest:         {http.StatusBadRequest, "bad_request"},
	dErrors.CodeInvalidInput:       {http.StatusBadRequest, "bad_request"},
	dErrors.CodeValidation:         {http.StatusBadRequest, "validation_error"},
	dErrors.CodeInvariantViolation: {http.StatusBadRequest, "validation_error"},
	dErrors.CodeConflict:           {http.StatusConflict, "conflict"},
	dErrors.CodeUnauthorized:       {http.StatusUnauthorized, "unauthorized"},
	dErrors.CodeForbidden:          {http.StatusForbidden, "forbidden"},
	dErrors.CodeTimeout:            {http.StatusGatewayTimeout, "timeout"},
	dErrors.CodeStoreUnavailable:   {http.StatusServiceUnavailable, "store_unavailable"},
	dErrors.CodeSignalComputation:  {http.StatusServiceUnavailable, "signal_unavailable"},
	dErrors.CodeConfiguration:      {http.StatusInternalServerError, "configuration_error"},
}

var internalError = errorMapping{http.StatusInternalServerError, "internal_error"}

func WriteJSON(w http.ResponseWriter, status int, response any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Headers are already sent; an encode failure cannot change the status.
	_ = json.NewEncoder(w).Encode(response)
}

// WriteError translates domain errors into HTTP status codes and a JSON body.
// Server-side failures never echo their message: it may name a backend.
func WriteError(w http.ResponseWriter, err error) {
	var domainErr *dErrors.Error
	if !errors.As(err, &domainErr) {
		WriteJSON(w, internalError.status, map[string]string{"error": internalError.code})
		return
	}

	m := mappingFor(domainErr.Code)
	response := map[string]string{"error": m.code}
	if domainErr.Message != "" && m.status < http.StatusInternalServerError {
		response["error_description"] = domainErr.Message
	}
	if m.status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", strconv.Itoa(storeRetryAfter))
	}
	WriteJSON(w, m.status, response)
}

// DomainCodeToHTTPStatus translates domain error codes to HTTP status codes.
func DomainCodeToHTTPStatus(code dErrors.Code) int {
	return mappingFor(code).status
}

// DomainCodeToHTTPCode translates domain error codes to the JSON "error" field.
func DomainCodeToHTTPCode(code dErrors.Code) string {
	return mappingFor(code).code
}

func mappingFor(code dErrors.Code) errorMapping {
	if m, ok := errorMappings[code]; ok {
		return m
	}
	return internalError
}
