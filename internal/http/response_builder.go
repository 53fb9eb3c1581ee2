// Package http is the JSON and server-sent events adapter over the
// transaction service and the aggregate engine.
//
// This file provides a small fluent builder so every handler writes status,
// headers and JSON bodies the same way.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"expensetracker/internal/core"
)

// ResponseBuilder accumulates a JSON response before writing it.
type ResponseBuilder struct {
	statusCode int
	headers    map[string]string
	payload    any
}

// NewJSONResponse creates a builder with a 200 status and no body.
func NewJSONResponse() *ResponseBuilder {
	return &ResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *ResponseBuilder) Status(code int) *ResponseBuilder {
	b.statusCode = code
	return b
}

func (b *ResponseBuilder) Header(name, value string) *ResponseBuilder {
	b.headers[name] = value
	return b
}

// JSON sets the value encoded as the response body.
func (b *ResponseBuilder) JSON(v any) *ResponseBuilder {
	b.payload = v
	return b
}

// Write sends the built response. Encoding failures can only be logged by
// the caller's middleware since the status is already committed.
func (b *ResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.payload == nil {
		w.WriteHeader(b.statusCode)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_ = json.NewEncoder(w).Encode(b.payload)
}

// errorBody is the shape of every error response.
type errorBody struct {
	Error string `json:"error"`
}

// ErrorResponse creates an error response with the given message.
func ErrorResponse(statusCode int, message string) *ResponseBuilder {
	return NewJSONResponse().Status(statusCode).JSON(errorBody{Error: message})
}

func BadRequestError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func NotFoundError(message string) *ResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func InternalServerError() *ResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, "internal server error")
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ServiceError builds the response for an error returned by the service or
// engine. Only client errors echo the message back.
func ServiceError(err error) *ResponseBuilder {
	code := statusFor(err)
	switch code {
	case http.StatusBadRequest, http.StatusNotFound:
		return ErrorResponse(code, err.Error())
	case http.StatusServiceUnavailable:
		return ErrorResponse(code, "storage unavailable").Header("Retry-After", "5")
	case http.StatusGatewayTimeout:
		return ErrorResponse(code, "request timed out")
	default:
		return InternalServerError()
	}
}
