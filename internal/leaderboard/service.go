// Package leaderboard はポイント順のユーザーランキングを提供する。
package leaderboard

import (
	"context"
	"fmt"

	"github.com/hitoshi/studyapp/internal/repository"
)

// 取得件数
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Entry はランキングの1行。
type Entry struct {
	Rank      int
	Username  string
	Points    int
	TimeSpent int
}

// Service はランキングの読み取り専用ビュー。
type Service struct {
	userRepo repository.UserRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository) *Service {
	return &Service{userRepo: userRepo}
}

// TopUsers はポイント降順で上位limit件を返す。
// 同点の場合はユーザーID昇順。順位は1始まりの連番で、同点でも別の順位になる。
func (s *Service) TopUsers(ctx context.Context, limit int) ([]Entry, error) {
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	users, err := s.userRepo.ListTopByPoints(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("ランキングの取得に失敗しました: %w", err)
	}

	entries := make([]Entry, 0, len(users))
	for i, u := range users {
		entries = append(entries, Entry{
			Rank:      i + 1,
			Username:  u.Username,
			Points:    u.Points,
			TimeSpent: u.TimeSpent,
		})
	}
	return entries, nil
}
