package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hitoshi/studyapp/internal/model"
	"github.com/hitoshi/studyapp/internal/user"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	GetProfile(ctx context.Context, userID string) (*user.Profile, error)
	GetPreferences(ctx context.Context, userID string) (model.Preferences, error)
	UpdatePreferences(ctx context.Context, userID string, prefs model.Preferences) error
	// Withdraw はセッションとユーザーを削除する。ノート・ドキュメント・履歴はカスケード削除される。
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler はプロフィール・設定・退会のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
	cookies AuthHandlerConfig
}

// NewUserHandler はUserHandlerを生成する。
// 退会時にセッションCookieを消すためCookie設定を受け取る。
func NewUserHandler(service UserServiceInterface, cookies AuthHandlerConfig) *UserHandler {
	return &UserHandler{
		service: service,
		cookies: cookies,
	}
}

type profileResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Points    int    `json:"points"`
	TimeSpent int    `json:"time_spent"`
}

// GetProfile はログイン中のユーザー情報を返す。
// GET /api/user
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	p, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{
		ID:        p.ID,
		Username:  p.Username,
		Email:     p.Email,
		Points:    p.Points,
		TimeSpent: p.TimeSpent,
	})
}

// Withdraw はユーザーの退会処理を実行する。
// DELETE /api/user
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	h.cookies.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// GetPreferences は保存済みの設定をそのまま返す。未設定なら {}。
// GET /api/preferences
func (h *UserHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	prefs, err := h.service.GetPreferences(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if prefs == nil {
		prefs = model.Preferences{}
	}

	writeJSON(w, http.StatusOK, prefs)
}

// UpdatePreferences は設定全体を置き換える。ボディはJSONオブジェクトに限る。
// PUT /api/preferences
func (h *UserHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	prefs, err := decodePreferences(w, r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.service.UpdatePreferences(r.Context(), userID, prefs); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "設定を更新しました"})
}

func decodePreferences(w http.ResponseWriter, r *http.Request) (model.Preferences, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	var raw any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, model.NewPayloadTooLargeError(maxErr.Limit)
		}
		return nil, model.NewValidationError("body", "JSON形式が不正です")
	}

	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, model.NewValidationError("body", "JSONオブジェクトである必要があります")
	}
	return model.Preferences(obj), nil
}
