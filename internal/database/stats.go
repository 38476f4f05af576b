package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Stats は各テーブルの行数。
type Stats struct {
	Users      int
	Notes      int
	Documents  int
	Pages      int
	Activities int
}

// statsQuery は1往復で全テーブルの件数を取得する。
const statsQuery = `SELECT
	(SELECT count(*) FROM users),
	(SELECT count(*) FROM notes),
	(SELECT count(*) FROM documents),
	(SELECT count(*) FROM document_pages),
	(SELECT count(*) FROM user_activities)`

// CollectStats はデータベースの行数を集計する。
func CollectStats(ctx context.Context, db *sql.DB) (*Stats, error) {
	s := &Stats{}
	err := db.QueryRowContext(ctx, statsQuery).Scan(&s.Users, &s.Notes, &s.Documents, &s.Pages, &s.Activities)
	if err != nil {
		return nil, fmt.Errorf("failed to collect stats: %w", err)
	}
	return s, nil
}
