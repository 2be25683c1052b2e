package auth

import (
	"net/http"

	"github.com/noah-isme/bundlehub/internal/common"
	"github.com/noah-isme/bundlehub/internal/state"
)

// Handler exposes the account endpoints.
type Handler struct {
	Service *Service
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type signupRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type googleRequest struct {
	Token string `json:"token" validate:"required"`
}

func sessionView(res LoginResult) map[string]any {
	return common.Data(map[string]any{
		"user":     res.Session.User,
		"redirect": res.Redirect,
	}, res.Notices)
}

// Login handles POST /api/v1/auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !common.Decode(w, r, &req) {
		return
	}
	scope, _ := state.FromContext(r.Context())
	res, err := h.Service.Login(r.Context(), scope, req.Email, req.Password)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, sessionView(res))
}

// Google handles POST /api/v1/auth/google.
func (h *Handler) Google(w http.ResponseWriter, r *http.Request) {
	var req googleRequest
	if !common.Decode(w, r, &req) {
		return
	}
	scope, _ := state.FromContext(r.Context())
	res, err := h.Service.Google(r.Context(), scope, req.Token)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, sessionView(res))
}

// Signup handles POST /api/v1/auth/signup.
func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !common.Decode(w, r, &req) {
		return
	}
	if err := h.Service.Signup(r.Context(), req.Name, req.Email, req.Password); err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, common.Data(map[string]any{"redirect": LoginPath},
		[]common.Notice{{Level: common.NoticeSuccess, Message: "Signup successful! Please login."}}))
}

// Logout handles POST /api/v1/auth/logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	scope, _ := state.FromContext(r.Context())
	if err := h.Service.Logout(r.Context(), scope); err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, common.Data(map[string]any{"redirect": HomePath}, nil))
}

// Me handles GET /api/v1/auth/me. The profile is refreshed from the backend first.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	scope, _ := state.FromContext(r.Context())
	sess := h.Service.Refresh(r.Context(), scope, FromContext(r.Context()))
	if sess == nil {
		common.JSONError(w, http.StatusUnauthorized, common.CodeUnauthorized, "Please log in to continue", nil)
		return
	}
	common.JSON(w, http.StatusOK, common.Data(map[string]any{
		"user":    sess.User,
		"landing": LandingPath(sess.User.Role),
	}, nil))
}
