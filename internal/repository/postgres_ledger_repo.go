package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/studyapp/internal/model"
)

// PostgresLedgerRepo はPostgreSQLを使用したポイント台帳リポジトリ。
// users.points は user_activities.points_earned の合計と常に一致させる。
type PostgresLedgerRepo struct {
	db *sql.DB
}

// NewPostgresLedgerRepo はPostgresLedgerRepoを生成する。
func NewPostgresLedgerRepo(db *sql.DB) *PostgresLedgerRepo {
	return &PostgresLedgerRepo{db: db}
}

// Apply は集計値の更新とアクティビティの追記を同一トランザクションで行う。
// いずれかが失敗した場合は全体がロールバックされる。
func (r *PostgresLedgerRepo) Apply(ctx context.Context, userID string, minutes int, activity *model.UserActivity) (*model.Totals, error) {
	points := 0
	if activity != nil {
		points = activity.PointsEarned
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	totals := &model.Totals{}
	err = tx.QueryRowContext(ctx,
		`UPDATE users
		 SET points = points + $2, time_spent = time_spent + $3, updated_at = now()
		 WHERE id = $1
		 RETURNING points, time_spent`,
		userID, points, minutes,
	).Scan(&totals.Points, &totals.TimeSpent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user totals: %w", err)
	}

	if activity != nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO user_activities (id, user_id, activity_type, points_earned, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			activity.ID, userID, string(activity.ActivityType), activity.PointsEarned, activity.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to insert activity: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return totals, nil
}

// ListByUserID はユーザーのアクティビティを新しい順に最大limit件返す。
func (r *PostgresLedgerRepo) ListByUserID(ctx context.Context, userID string, limit int) ([]*model.UserActivity, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, activity_type, points_earned, created_at
		 FROM user_activities
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id DESC
		 LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	activities := []*model.UserActivity{}
	for rows.Next() {
		a := &model.UserActivity{}
		var activityType string
		if err := rows.Scan(&a.ID, &a.UserID, &activityType, &a.PointsEarned, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		a.ActivityType = model.ActivityType(activityType)
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activities: %w", err)
	}
	return activities, nil
}

// SumPoints はユーザーの台帳上のポイント合計を返す。
func (r *PostgresLedgerRepo) SumPoints(ctx context.Context, userID string) (int, error) {
	var sum int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(points_earned), 0) FROM user_activities WHERE user_id = $1`,
		userID,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("failed to sum points: %w", err)
	}
	return sum, nil
}

// ListMismatches は users.points と台帳合計が一致しないユーザーを返す。
func (r *PostgresLedgerRepo) ListMismatches(ctx context.Context) ([]TotalsMismatch, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT u.id, u.username, u.points, COALESCE(SUM(a.points_earned), 0) AS ledger_points
		 FROM users u
		 LEFT JOIN user_activities a ON a.user_id = u.id
		 GROUP BY u.id, u.username, u.points
		 HAVING u.points <> COALESCE(SUM(a.points_earned), 0)
		 ORDER BY u.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to verify ledger: %w", err)
	}
	defer rows.Close()

	var mismatches []TotalsMismatch
	for rows.Next() {
		var m TotalsMismatch
		if err := rows.Scan(&m.UserID, &m.Username, &m.CachedPoints, &m.LedgerPoints); err != nil {
			return nil, fmt.Errorf("failed to scan mismatch: %w", err)
		}
		mismatches = append(mismatches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate mismatches: %w", err)
	}
	return mismatches, nil
}

// compile-time interface check
var _ LedgerRepository = (*PostgresLedgerRepo)(nil)
