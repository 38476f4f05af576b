// Package note はセクション付きノートのドメインロジックを提供する。
package note

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/studyapp/internal/metrics"
	"github.com/hitoshi/studyapp/internal/model"
	"github.com/hitoshi/studyapp/internal/repository"
)

// NoteInput はノート作成時の入力値。
type NoteInput struct {
	Title   string
	Content string
	Section model.Section
}

// Service はノート管理のサービス層。
// すべての操作は所有者のユーザーIDで絞り込まれる。
// 本文は入力されたまま保存し、HTMLとしての無害化は表示側で行う。
type Service struct {
	noteRepo repository.NoteRepository
	metrics  metrics.MetricsCollector
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(noteRepo repository.NoteRepository, collector metrics.MetricsCollector) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		noteRepo: noteRepo,
		metrics:  collector,
	}
}

// CreateNote はノートを作成する。表示順は0で作成される。
func (s *Service) CreateNote(ctx context.Context, userID string, in NoteInput) (*model.Note, error) {
	title, err := validateTitle(in.Title)
	if err != nil {
		return nil, err
	}
	section, err := validateSection(in.Section)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	note := &model.Note{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     title,
		Content:   in.Content,
		Section:   section,
		Order:     0,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.noteRepo.Create(ctx, note); err != nil {
		return nil, fmt.Errorf("ノートの作成に失敗しました: %w", err)
	}

	s.metrics.RecordNoteCreated()
	slog.Info("ノートを作成しました",
		slog.String("user_id", userID),
		slog.String("note_id", note.ID),
		slog.String("section", string(section)),
	)

	return note, nil
}

// ListNotes はユーザーのノートをセクション順、表示順で返す。
// ノートが無い場合は空のスライスを返す。
func (s *Service) ListNotes(ctx context.Context, userID string) ([]*model.Note, error) {
	notes, err := s.noteRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ノート一覧の取得に失敗しました: %w", err)
	}
	if notes == nil {
		notes = []*model.Note{}
	}
	return notes, nil
}

// UpdateNote はpatchで指定されたフィールドのみ更新する。
// 他ユーザーのノートや存在しないノートはNOT_FOUNDとなる。
func (s *Service) UpdateNote(ctx context.Context, userID, noteID string, patch model.NotePatch) (*model.Note, error) {
	if patch.Title != nil {
		title, err := validateTitle(*patch.Title)
		if err != nil {
			return nil, err
		}
		patch.Title = &title
	}
	if patch.Section != nil {
		section, err := validateSection(*patch.Section)
		if err != nil {
			return nil, err
		}
		patch.Section = &section
	}
	if patch.Order != nil {
		if err := validateOrder(*patch.Order); err != nil {
			return nil, err
		}
	}

	if !isUUID(noteID) {
		return nil, model.NewNoteNotFoundError(noteID)
	}

	note, err := s.noteRepo.Update(ctx, noteID, userID, patch)
	if err != nil {
		if repository.OutOfRange(err) {
			return nil, model.NewValidationError("order", "値が範囲外です")
		}
		return nil, fmt.Errorf("ノートの更新に失敗しました: %w", err)
	}
	if note == nil {
		return nil, model.NewNoteNotFoundError(noteID)
	}

	return note, nil
}

// DeleteNote はノートを削除する。
func (s *Service) DeleteNote(ctx context.Context, userID, noteID string) error {
	if !isUUID(noteID) {
		return model.NewNoteNotFoundError(noteID)
	}

	deleted, err := s.noteRepo.DeleteByIDAndUser(ctx, noteID, userID)
	if err != nil {
		return fmt.Errorf("ノートの削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewNoteNotFoundError(noteID)
	}

	slog.Info("ノートを削除しました",
		slog.String("user_id", userID),
		slog.String("note_id", noteID),
	)
	return nil
}

func validateTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", model.NewValidationError("title", "必須項目です")
	}
	if utf8.RuneCountInString(title) > model.MaxNoteTitleLength {
		return "", model.NewValidationError("title", fmt.Sprintf("%d文字以内で入力してください", model.MaxNoteTitleLength))
	}
	return title, nil
}

func validateSection(section model.Section) (model.Section, error) {
	if !section.Valid() {
		return "", model.NewValidationError("section", "必須項目です")
	}
	trimmed := model.Section(strings.TrimSpace(string(section)))
	if utf8.RuneCountInString(string(trimmed)) > model.MaxSectionLength {
		return "", model.NewValidationError("section", fmt.Sprintf("%d文字以内で入力してください", model.MaxSectionLength))
	}
	return trimmed, nil
}

func validateOrder(order int) error {
	if order < -model.MaxNoteOrder || order > model.MaxNoteOrder {
		return model.NewValidationError("order", fmt.Sprintf("-%dから%dの範囲で指定してください", model.MaxNoteOrder, model.MaxNoteOrder))
	}
	return nil
}

// isUUID はIDがハイフン区切りのUUID形式かを返す。
// 形式外のIDはDBに問い合わせず未検出として扱う。
func isUUID(id string) bool {
	return len(id) == 36 && uuid.Validate(id) == nil
}
