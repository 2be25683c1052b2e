package common

import (
	"encoding/json"
	"net/http"
)

// Decode reads a JSON body into dst and validates it, writing the error response on failure.
func Decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		JSONError(w, http.StatusBadRequest, CodeBadRequest, "invalid request payload", nil)
		return false
	}
	if err := ValidateStruct(dst); err != nil {
		WriteError(w, err)
		return false
	}
	return true
}
