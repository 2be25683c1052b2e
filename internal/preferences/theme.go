// Package preferences stores per-client display preferences.
package preferences

import (
	"context"
	"net/http"

	"github.com/noah-isme/bundlehub/internal/common"
	"github.com/noah-isme/bundlehub/internal/state"
)

// DefaultTheme applies when a client never chose one.
const DefaultTheme = "light"

// Theme returns the stored theme for scope.
func Theme(ctx context.Context, scope state.Scope) (string, error) {
	theme, ok, err := scope.GetString(ctx, state.KeyTheme)
	if err != nil {
		return "", err
	}
	if !ok || (theme != "light" && theme != "dark") {
		return DefaultTheme, nil
	}
	return theme, nil
}

type themeRequest struct {
	Theme string `json:"theme" validate:"required,oneof=light dark"`
}

// Handler exposes /api/v1/preferences.
type Handler struct{}

// GetTheme handles GET /preferences/theme.
func (Handler) GetTheme(w http.ResponseWriter, r *http.Request) {
	scope, ok := state.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "client id missing", nil)
		return
	}
	theme, err := Theme(r.Context(), scope)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, common.Data(map[string]string{"theme": theme}, nil))
}

// PutTheme handles PUT /preferences/theme.
func (Handler) PutTheme(w http.ResponseWriter, r *http.Request) {
	scope, ok := state.FromContext(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "client id missing", nil)
		return
	}
	var req themeRequest
	if !common.Decode(w, r, &req) {
		return
	}
	if err := scope.SetString(r.Context(), state.KeyTheme, req.Theme); err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, common.Data(map[string]string{"theme": req.Theme}, nil))
}
