package services

import (
	"context"
	"net/http"

	goahttp "goa.design/goa/v3/http"
	"goa.design/goa/v3/middleware"

	"dartcam/internal/logger"
)

// ServiceError is an error with an HTTP status and a stable name.
type ServiceError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
	status  int
}

func (e *ServiceError) Error() string { return e.Message }

// StatusCode implements goahttp.Statuser.
func (e *ServiceError) StatusCode() int { return e.status }

func badRequest(msg string) *ServiceError {
	return &ServiceError{Name: "bad_request", Message: msg, status: http.StatusBadRequest}
}

func unauthorized(msg string) *ServiceError {
	return &ServiceError{Name: "unauthorized", Message: msg, status: http.StatusUnauthorized}
}

func conflict(msg string) *ServiceError {
	return &ServiceError{Name: "conflict", Message: msg, status: http.StatusConflict}
}

func unavailable(msg string) *ServiceError {
	return &ServiceError{Name: "unavailable", Message: msg, status: http.StatusServiceUnavailable}
}

func internal(msg string) *ServiceError {
	return &ServiceError{Name: "internal", Message: msg, status: http.StatusInternalServerError}
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(middleware.RequestIDKey).(string)
	return id
}

// writeError encodes err and logs it with the request ID so the two can be
// correlated.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	se, ok := err.(*ServiceError)
	if !ok {
		se = internal(err.Error())
	}
	se.ID = requestID(ctx)

	fields := logger.Fields{"request_id": se.ID, "status": se.status, "error": se.Message}
	if se.status >= http.StatusInternalServerError {
		logger.Error(fields, "[API] request failed")
	} else {
		logger.Debug(fields, "[API] request rejected")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(se.status)
	if err := goahttp.ResponseEncoder(ctx, w).Encode(se); err != nil {
		logger.Error(logger.Fields{"request_id": se.ID, "error": err.Error()}, "[API] failed to encode error")
	}
}

func writeJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := goahttp.ResponseEncoder(ctx, w).Encode(v); err != nil {
		logger.Error(logger.Fields{"request_id": requestID(ctx), "error": err.Error()}, "[API] failed to encode response")
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := goahttp.RequestDecoder(r).Decode(v); err != nil {
		return badRequest("invalid request body: " + err.Error())
	}
	return nil
}
