package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hitoshi/studyapp/internal/model"
)

// PostgresNoteRepo はPostgreSQLを使用したノートリポジトリ。
type PostgresNoteRepo struct {
	db *sql.DB
}

// NewPostgresNoteRepo はPostgresNoteRepoを生成する。
func NewPostgresNoteRepo(db *sql.DB) *PostgresNoteRepo {
	return &PostgresNoteRepo{db: db}
}

const noteColumns = `id, user_id, title, content, section, sort_order, created_at, updated_at`

// Create はノートを作成する。
func (r *PostgresNoteRepo) Create(ctx context.Context, note *model.Note) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO notes (id, user_id, title, content, section, sort_order, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		note.ID, note.UserID, note.Title, note.Content, string(note.Section),
		note.Order, note.CreatedAt, note.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}
	return nil
}

// ListByUserID はユーザーのノートを section, sort_order, created_at, id の昇順で返す。
func (r *PostgresNoteRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Note, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+noteColumns+`
		 FROM notes
		 WHERE user_id = $1
		 ORDER BY section ASC, sort_order ASC, created_at ASC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	notes := []*model.Note{}
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notes: %w", err)
	}
	return notes, nil
}

// Update はpatchの非nilフィールドのみ更新し、更新後のノートを返す。
// NULLのパラメータはCOALESCEで既存値が維持される。
func (r *PostgresNoteRepo) Update(ctx context.Context, noteID, userID string, patch model.NotePatch) (*model.Note, error) {
	var section *string
	if patch.Section != nil {
		s := string(*patch.Section)
		section = &s
	}

	note, err := scanNote(r.db.QueryRowContext(ctx,
		`UPDATE notes SET
			title = COALESCE($3, title),
			content = COALESCE($4, content),
			section = COALESCE($5, section),
			sort_order = COALESCE($6, sort_order),
			updated_at = now()
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+noteColumns,
		noteID, userID, patch.Title, patch.Content, section, patch.Order,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update note: %w", err)
	}
	return note, nil
}

// DeleteByIDAndUser はノートを削除する。該当ノートがない場合はfalseを返す。
func (r *PostgresNoteRepo) DeleteByIDAndUser(ctx context.Context, noteID, userID string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM notes WHERE id = $1 AND user_id = $2`,
		noteID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete note: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

func scanNote(s rowScanner) (*model.Note, error) {
	note := &model.Note{}
	var section string
	if err := s.Scan(
		&note.ID, &note.UserID, &note.Title, &note.Content, &section,
		&note.Order, &note.CreatedAt, &note.UpdatedAt,
	); err != nil {
		return nil, err
	}
	note.Section = model.Section(section)
	return note, nil
}

// compile-time interface check
var _ NoteRepository = (*PostgresNoteRepo)(nil)
