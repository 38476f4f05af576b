// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/studyapp/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
// ポイントと学習時間の更新はLedgerRepositoryが担当する。
type UserRepository interface {
	// Create はユーザーを作成する。username/emailの重複時はpq.Error(23505)を返す。
	Create(ctx context.Context, user *model.User) error

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByUsername はユーザー名でユーザーを検索する。見つからない場合はnilを返す。
	FindByUsername(ctx context.Context, username string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// UpdatePreferences はユーザー設定を丸ごと置き換える。
	// 対象ユーザーが存在しない場合はfalseを返す。
	UpdatePreferences(ctx context.Context, id string, prefs model.Preferences) (bool, error)

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するnotes、documents、user_activities、sessionsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error

	// ListTopByPoints はポイント降順（同点はID昇順）で上位limit件を返す。
	ListTopByPoints(ctx context.Context, limit int) ([]*model.User, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// NoteRepository はノートの永続化インターフェース。
// 単一ノートの操作はすべて (id, user_id) の組で絞り込む。
type NoteRepository interface {
	// Create はノートを作成する。
	Create(ctx context.Context, note *model.Note) error

	// ListByUserID はユーザーのノートを section, sort_order, created_at, id の昇順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Note, error)

	// Update はpatchの非nilフィールドのみ更新し、更新後のノートを返す。
	// 該当ノートがない場合はnilを返す。
	Update(ctx context.Context, noteID, userID string, patch model.NotePatch) (*model.Note, error)

	// DeleteByIDAndUser はノートを削除する。該当ノートがない場合はfalseを返す。
	DeleteByIDAndUser(ctx context.Context, noteID, userID string) (bool, error)
}

// DocumentRepository はPDFドキュメントとページの永続化インターフェース。
type DocumentRepository interface {
	// Save はドキュメントと全ページを同一トランザクションで保存する。
	Save(ctx context.Context, doc *model.PDFDocument) error

	// ListByUserID はユーザーの全ドキュメントをページ付きで返す。
	// ページはページ番号順。ドキュメント間の順序は作成日時の降順。
	ListByUserID(ctx context.Context, userID string) ([]*model.PDFDocument, error)

	// FindByIDAndUser はドキュメントをページ付きで取得する。見つからない場合はnilを返す。
	FindByIDAndUser(ctx context.Context, documentID, userID string) (*model.PDFDocument, error)

	// DeleteByIDAndUser はドキュメントを削除し、削除したドキュメント（ページなし）を返す。
	// 見つからない場合はnilを返す。
	DeleteByIDAndUser(ctx context.Context, documentID, userID string) (*model.PDFDocument, error)

	// ListFilenamesByUserID はユーザーの全ドキュメントの保存ファイル名を返す。
	ListFilenamesByUserID(ctx context.Context, userID string) ([]string, error)
}

// LedgerRepository はポイント台帳の永続化インターフェース。
type LedgerRepository interface {
	// Apply は学習時間の加算とアクティビティの追記を同一トランザクションで行う。
	// users.points には activity.PointsEarned（activityがnilなら0）が加算される。
	// ユーザーが存在しない場合はnilを返す。
	Apply(ctx context.Context, userID string, minutes int, activity *model.UserActivity) (*model.Totals, error)

	// ListByUserID はユーザーのアクティビティを新しい順に最大limit件返す。
	ListByUserID(ctx context.Context, userID string, limit int) ([]*model.UserActivity, error)

	// SumPoints はユーザーの台帳上のポイント合計を返す。
	SumPoints(ctx context.Context, userID string) (int, error)

	// ListMismatches は users.points と台帳合計が一致しないユーザーを返す。
	ListMismatches(ctx context.Context) ([]TotalsMismatch, error)
}

// TotalsMismatch は集計値と台帳合計の不一致を表す。
type TotalsMismatch struct {
	UserID       string
	Username     string
	CachedPoints int
	LedgerPoints int
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
