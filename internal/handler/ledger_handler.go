package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/studyapp/internal/leaderboard"
	"github.com/hitoshi/studyapp/internal/ledger"
	"github.com/hitoshi/studyapp/internal/model"
)

// LedgerServiceInterface はポイント・学習時間ハンドラーが必要とするサービスインターフェース。
type LedgerServiceInterface interface {
	AwardPoints(ctx context.Context, userID string, points int, activityType model.ActivityType) (*model.Totals, error)
	RecordTimeSpent(ctx context.Context, userID string, minutes int) (*ledger.TimeReport, error)
	ListActivities(ctx context.Context, userID string, limit int) ([]*model.UserActivity, error)
}

// LeaderboardServiceInterface はランキングハンドラーが必要とするサービスインターフェース。
type LeaderboardServiceInterface interface {
	TopUsers(ctx context.Context, limit int) ([]leaderboard.Entry, error)
}

// LedgerHandler はポイント付与・学習時間報告・ランキングのHTTPハンドラー。
type LedgerHandler struct {
	ledger      LedgerServiceInterface
	leaderboard LeaderboardServiceInterface
}

// NewLedgerHandler はLedgerHandlerを生成する。
func NewLedgerHandler(ledgerService LedgerServiceInterface, board LeaderboardServiceInterface) *LedgerHandler {
	return &LedgerHandler{
		ledger:      ledgerService,
		leaderboard: board,
	}
}

// 上限はmodel.MaxPointsPerAward、model.MaxMinutesPerReportと一致させる。
type addPointsRequest struct {
	Points       int    `json:"points" validate:"min=0,max=100000"`
	ActivityType string `json:"activity_type"`
}

type addPointsResponse struct {
	Points    int    `json:"points"`
	TimeSpent int    `json:"time_spent"`
	Message   string `json:"message"`
}

type timeSpentRequest struct {
	Minutes int `json:"minutes" validate:"min=0,max=1440"`
}

type timeSpentResponse struct {
	TimeSpent    int `json:"time_spent"`
	Points       int `json:"points"`
	PointsEarned int `json:"points_earned"`
}

type activityResponse struct {
	ID           string    `json:"id"`
	ActivityType string    `json:"activity_type"`
	PointsEarned int       `json:"points_earned"`
	CreatedAt    time.Time `json:"created_at"`
}

type leaderboardEntryResponse struct {
	Rank      int    `json:"rank"`
	Username  string `json:"username"`
	Points    int    `json:"points"`
	TimeSpent int    `json:"time_spent"`
}

// AddPoints はポイントを付与し、履歴を1件追加する。
// POST /api/points/add
func (h *LedgerHandler) AddPoints(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req addPointsRequest
	if err := decodeRequest(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	activityType, err := model.ParseClientActivityType(req.ActivityType)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	totals, err := h.ledger.AwardPoints(r.Context(), userID, req.Points, activityType)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, addPointsResponse{
		Points:    totals.Points,
		TimeSpent: totals.TimeSpent,
		Message:   "ポイントを付与しました",
	})
}

// RecordTimeSpent は学習時間を加算し、5分ごとに1ポイントを付与する。
// POST /api/time-spent
func (h *LedgerHandler) RecordTimeSpent(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req timeSpentRequest
	if err := decodeRequest(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	report, err := h.ledger.RecordTimeSpent(r.Context(), userID, req.Minutes)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, timeSpentResponse{
		TimeSpent:    report.TimeSpent,
		Points:       report.Points,
		PointsEarned: report.PointsEarned,
	})
}

// ListActivities はポイント獲得履歴を新しい順に返す。
// GET /api/activities?limit=N
func (h *LedgerHandler) ListActivities(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	activities, err := h.ledger.ListActivities(r.Context(), userID, limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]activityResponse, 0, len(activities))
	for _, a := range activities {
		resp = append(resp, activityResponse{
			ID:           a.ID,
			ActivityType: string(a.ActivityType),
			PointsEarned: a.PointsEarned,
			CreatedAt:    a.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Leaderboard はポイント上位のユーザーを返す。認証不要。
// GET /api/leaderboard?limit=N
func (h *LedgerHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	entries, err := h.leaderboard.TopUsers(r.Context(), limit)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]leaderboardEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, leaderboardEntryResponse{
			Rank:      e.Rank,
			Username:  e.Username,
			Points:    e.Points,
			TimeSpent: e.TimeSpent,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseLimit は ?limit= を読む。省略時は0（サービス側の既定値）を返す。
func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, model.NewValidationError("limit", "整数で指定してください")
	}
	return n, nil
}
