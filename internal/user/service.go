// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/studyapp/internal/model"
	"github.com/hitoshi/studyapp/internal/repository"
)

// BlobRemover はユーザーのアップロード原本を一括削除するインターフェース。
// DBの行はCASCADEで消えるため、外部ストレージ側の後始末のみを担う。
type BlobRemover interface {
	RemoveUserBlobs(ctx context.Context, userID string)
}

// Profile はユーザー自身に返す公開情報。
type Profile struct {
	ID        string
	Username  string
	Email     string
	Points    int
	TimeSpent int
}

// Service はユーザー管理のサービス層。
// プロフィール参照、設定の読み書き、退会処理を提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	blobs       BlobRemover
}

// NewService はServiceの新しいインスタンスを生成する。blobsはnil可。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	blobs BlobRemover,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		blobs:       blobs,
	}
}

// GetProfile はユーザーのプロフィールを返す。
func (s *Service) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Profile{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Points:    user.Points,
		TimeSpent: user.TimeSpent,
	}, nil
}

// GetPreferences は保存された設定を返す。未設定の場合は空のオブジェクト。
func (s *Service) GetPreferences(ctx context.Context, userID string) (model.Preferences, error) {
	user, err := s.findUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.Preferences == nil {
		return model.Preferences{}, nil
	}
	return user.Preferences, nil
}

// UpdatePreferences は設定を丸ごと置き換える。部分更新はしない。
func (s *Service) UpdatePreferences(ctx context.Context, userID string, prefs model.Preferences) error {
	if prefs == nil {
		prefs = model.Preferences{}
	}
	ok, err := s.userRepo.UpdatePreferences(ctx, userID, prefs)
	if err != nil {
		return fmt.Errorf("設定の更新に失敗しました: %w", err)
	}
	if !ok {
		return model.NewUserNotFoundError()
	}
	slog.Info("設定を更新しました", slog.String("user_id", userID))
	return nil
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: sessions → user（+ CASCADE: notes, documents, document_pages, user_activities）
// 保存済みのPDF原本はユーザー削除前にベストエフォートで削除する。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	if _, err := s.findUser(ctx, userID); err != nil {
		return err
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	// 1. PDF原本を削除（ファイル名の一覧がDBにあるうちに行う）
	if s.blobs != nil {
		s.blobs.RemoveUserBlobs(ctx, userID)
	}

	// 2. セッションを削除
	if s.sessionRepo != nil {
		if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}
	}

	// 3. ユーザーを削除
	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)

	return nil
}

func (s *Service) findUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}
