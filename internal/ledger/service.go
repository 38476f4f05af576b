// Package ledger はポイントと学習時間の台帳を管理する。
//
// ユーザーのポイント残高は user_activities の合計と常に一致する。
// 残高の更新とアクティビティの追記はLedgerRepository.Applyにより
// 単一トランザクションで行われる。
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/studyapp/internal/metrics"
	"github.com/hitoshi/studyapp/internal/model"
	"github.com/hitoshi/studyapp/internal/repository"
)

// MinutesPerPoint は1ポイント獲得に必要な学習時間（分）。
const MinutesPerPoint = 5

// 活動履歴の取得件数
const (
	DefaultActivityLimit = 50
	MaxActivityLimit     = 200
)

// TimeReport は学習時間報告の結果。
type TimeReport struct {
	TimeSpent    int
	Points       int
	PointsEarned int
}

// Verification は集計値と台帳合計の照合結果。
type Verification struct {
	CachedPoints int
	LedgerPoints int
}

// Consistent は集計値と台帳合計が一致しているかを返す。
func (v Verification) Consistent() bool {
	return v.CachedPoints == v.LedgerPoints
}

// Service はポイント付与と学習時間記録のサービス層。
type Service struct {
	ledgerRepo repository.LedgerRepository
	userRepo   repository.UserRepository
	metrics    metrics.MetricsCollector
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	ledgerRepo repository.LedgerRepository,
	userRepo repository.UserRepository,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		ledgerRepo: ledgerRepo,
		userRepo:   userRepo,
		metrics:    collector,
	}
}

// AwardPoints はポイントを付与し、同じ値のアクティビティを1件記録する。
// 0ポイントも記録される。範囲外の値と内部専用の種類は検証エラーとなる。
func (s *Service) AwardPoints(ctx context.Context, userID string, points int, activityType model.ActivityType) (*model.Totals, error) {
	if points < 0 || points > model.MaxPointsPerAward {
		return nil, model.NewValidationError("points", fmt.Sprintf("0以上%d以下の整数を指定してください", model.MaxPointsPerAward))
	}
	if activityType == "" {
		activityType = model.ActivityOther
	}
	if activityType.Reserved() {
		return nil, model.NewValidationError("activity_type", "この種類は指定できません")
	}

	totals, err := s.ledgerRepo.Apply(ctx, userID, 0, newActivity(userID, activityType, points))
	if err != nil {
		if repository.OutOfRange(err) {
			return nil, model.NewValidationError("points", "累計ポイントが上限を超えます")
		}
		return nil, fmt.Errorf("ポイントの付与に失敗しました: %w", err)
	}
	if totals == nil {
		return nil, model.NewUserNotFoundError()
	}

	s.metrics.RecordPointsAwarded(string(activityType), points)
	slog.Info("ポイントを付与しました",
		slog.String("user_id", userID),
		slog.String("activity_type", string(activityType)),
		slog.Int("points", points),
		slog.Int("total_points", totals.Points),
	)
	return totals, nil
}

// RecordTimeSpent は学習時間を加算し、MinutesPerPoint分ごとに1ポイントを付与する。
// 獲得ポイントが0の場合はアクティビティを記録せず、ポイントも変化しない。
// 端数は報告ごとに切り捨てられ、次回へ繰り越さない。
func (s *Service) RecordTimeSpent(ctx context.Context, userID string, minutes int) (*TimeReport, error) {
	if minutes < 0 || minutes > model.MaxMinutesPerReport {
		return nil, model.NewValidationError("minutes", fmt.Sprintf("0以上%d以下の整数を指定してください", model.MaxMinutesPerReport))
	}

	earned := minutes / MinutesPerPoint
	var activity *model.UserActivity
	if earned > 0 {
		activity = newActivity(userID, model.ActivityTimeSpent, earned)
	}

	totals, err := s.ledgerRepo.Apply(ctx, userID, minutes, activity)
	if err != nil {
		if repository.OutOfRange(err) {
			return nil, model.NewValidationError("minutes", "累計学習時間が上限を超えます")
		}
		return nil, fmt.Errorf("学習時間の記録に失敗しました: %w", err)
	}
	if totals == nil {
		return nil, model.NewUserNotFoundError()
	}

	s.metrics.RecordMinutesRecorded(minutes)
	if earned > 0 {
		s.metrics.RecordPointsAwarded(string(model.ActivityTimeSpent), earned)
	}
	slog.Info("学習時間を記録しました",
		slog.String("user_id", userID),
		slog.Int("minutes", minutes),
		slog.Int("points_earned", earned),
	)

	return &TimeReport{
		TimeSpent:    totals.TimeSpent,
		Points:       totals.Points,
		PointsEarned: earned,
	}, nil
}

// ListActivities はユーザーのアクティビティを新しい順に返す。
// limitが0以下の場合はDefaultActivityLimit、上限はMaxActivityLimit。
func (s *Service) ListActivities(ctx context.Context, userID string, limit int) ([]*model.UserActivity, error) {
	switch {
	case limit <= 0:
		limit = DefaultActivityLimit
	case limit > MaxActivityLimit:
		limit = MaxActivityLimit
	}

	activities, err := s.ledgerRepo.ListByUserID(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("アクティビティ一覧の取得に失敗しました: %w", err)
	}
	if activities == nil {
		activities = []*model.UserActivity{}
	}
	return activities, nil
}

// VerifyTotals はユーザーの集計値と台帳合計を照合する。
func (s *Service) VerifyTotals(ctx context.Context, userID string) (*Verification, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}

	sum, err := s.ledgerRepo.SumPoints(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("台帳合計の取得に失敗しました: %w", err)
	}

	v := &Verification{CachedPoints: user.Points, LedgerPoints: sum}
	if !v.Consistent() {
		slog.Warn("ポイント集計値が台帳と一致しません",
			slog.String("user_id", userID),
			slog.Int("cached_points", v.CachedPoints),
			slog.Int("ledger_points", v.LedgerPoints),
		)
	}
	return v, nil
}

// VerifyAll は全ユーザーの集計値を照合し、不一致のユーザーを返す。
func (s *Service) VerifyAll(ctx context.Context) ([]repository.TotalsMismatch, error) {
	mismatches, err := s.ledgerRepo.ListMismatches(ctx)
	if err != nil {
		return nil, fmt.Errorf("台帳の照合に失敗しました: %w", err)
	}
	return mismatches, nil
}

// Seed は初期残高を台帳経由で設定する。管理ユーザー作成時に使用する。
// ポイントは1件のアクティビティとして記録されるため、台帳との整合性が保たれる。
func (s *Service) Seed(ctx context.Context, userID string, points, minutes int, activityType model.ActivityType) (*model.Totals, error) {
	if points < 0 || minutes < 0 {
		return nil, model.NewValidationError("seed", "0以上の整数を指定してください")
	}
	var activity *model.UserActivity
	if points > 0 {
		activity = newActivity(userID, activityType, points)
	}
	totals, err := s.ledgerRepo.Apply(ctx, userID, minutes, activity)
	if err != nil {
		return nil, fmt.Errorf("初期残高の設定に失敗しました: %w", err)
	}
	if totals == nil {
		return nil, model.NewUserNotFoundError()
	}
	return totals, nil
}

func newActivity(userID string, activityType model.ActivityType, points int) *model.UserActivity {
	return &model.UserActivity{
		ID:           uuid.New().String(),
		UserID:       userID,
		ActivityType: activityType,
		PointsEarned: points,
		CreatedAt:    time.Now(),
	}
}
