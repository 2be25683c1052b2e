package common

import (
	"encoding/json"
	"net/http"
)

// ErrorBody represents a consistent error payload returned by the API.
type ErrorBody struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details any      `json:"details,omitempty"`
	Notices []Notice `json:"notices,omitempty"`
}

// JSON writes the provided value to the response writer as JSON.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JSONError renders an error response using the canonical error shape.
func JSONError(w http.ResponseWriter, status int, code, message string, details any) {
	JSON(w, status, map[string]any{
		"error": ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// WriteError renders err, using the AppError code and status when present.
func WriteError(w http.ResponseWriter, err error, notices ...Notice) {
	status := http.StatusInternalServerError
	body := ErrorBody{Code: CodeInternal, Message: "internal error", Notices: notices}
	if appErr, ok := AsAppError(err); ok {
		if appErr.HTTPStatus != 0 {
			status = appErr.HTTPStatus
		}
		body.Code = appErr.Code
		body.Message = appErr.Message
		body.Details = appErr.Details
	}
	JSON(w, status, map[string]any{"error": body})
}

// Data wraps v in the canonical {"data": ...} envelope, adding notices when present.
func Data(v any, notices []Notice) map[string]any {
	out := map[string]any{"data": v}
	if len(notices) > 0 {
		out["notices"] = notices
	}
	return out
}
