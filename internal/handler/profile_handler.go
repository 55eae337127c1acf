package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/hitoshi/taskboard/internal/auth"
	"github.com/hitoshi/taskboard/internal/model"
)

// UserServiceInterface はプロフィール・管理者ハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetProfile(ctx context.Context, claims *auth.Claims) (*model.User, error)
	UpdateProfile(ctx context.Context, claims *auth.Claims, update model.ProfileUpdate) (*model.User, error)
	ListUsers(ctx context.Context) ([]*model.User, error)
	DeleteUser(ctx context.Context, id string) (*model.User, error)
	Stats(ctx context.Context) (*model.Stats, error)
}

// ProfileHandler は認証済みユーザー自身の情報を扱うHTTPハンドラー。
type ProfileHandler struct {
	service UserServiceInterface
	now     func() time.Time
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service UserServiceInterface) *ProfileHandler {
	return &ProfileHandler{service: service, now: time.Now}
}

// updateProfileRequest はプロフィール更新リクエストのボディ。
type updateProfileRequest struct {
	FirstName   *string           `json:"firstName"`
	LastName    *string           `json:"lastName"`
	Preferences map[string]string `json:"preferences"`
}

// Secure は検証済みのClaimsをそのまま返す。
// GET /api/secure
func (h *ProfileHandler) Secure(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "This is a protected endpoint - authentication successful!",
		"user":      claims,
		"timestamp": timestamp(h.now()),
	})
}

// GetProfile はClaimsとアプリケーション側のプロフィールを返す。
// GET /api/secure/profile
func (h *ProfileHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	profile, err := h.service.GetProfile(r.Context(), claims)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"keycloakInfo": claims,
		"dbProfile":    profile,
	})
}

// UpdateProfile はプロフィールを部分更新する。
// PUT /api/secure/profile
func (h *ProfileHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	var req updateProfileRequest
	if apiErr := decodeJSON(w, r, &req); apiErr != nil {
		handleServiceError(w, r, apiErr)
		return
	}

	profile, err := h.service.UpdateProfile(r.Context(), claims, model.ProfileUpdate{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Preferences: req.Preferences,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Profile updated successfully",
		"profile": profile,
	})
}
