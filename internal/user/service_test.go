package user

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/hitoshi/studyapp/internal/model"
	"github.com/hitoshi/studyapp/internal/repository"
)

// --- モック ---

type mockUserRepo struct {
	findByIDFn          func(ctx context.Context, id string) (*model.User, error)
	updatePreferencesFn func(ctx context.Context, id string, prefs model.Preferences) (bool, error)
	deleteByIDFn        func(ctx context.Context, id string) error
}

func (m *mockUserRepo) Create(ctx context.Context, user *model.User) error {
	return nil
}
func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (m *mockUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return nil, nil
}
func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return nil, nil
}
func (m *mockUserRepo) UpdatePreferences(ctx context.Context, id string, prefs model.Preferences) (bool, error) {
	if m.updatePreferencesFn != nil {
		return m.updatePreferencesFn(ctx, id, prefs)
	}
	return true, nil
}
func (m *mockUserRepo) DeleteByID(ctx context.Context, id string) error {
	if m.deleteByIDFn != nil {
		return m.deleteByIDFn(ctx, id)
	}
	return nil
}
func (m *mockUserRepo) ListTopByPoints(ctx context.Context, limit int) ([]*model.User, error) {
	return nil, nil
}

type mockSessionRepo struct {
	deleteByUserIDFn func(ctx context.Context, userID string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	return nil
}
func (m *mockSessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	return nil, nil
}
func (m *mockSessionRepo) DeleteByID(ctx context.Context, id string) error {
	return nil
}
func (m *mockSessionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	return m.deleteByUserIDFn(ctx, userID)
}
func (m *mockSessionRepo) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

type mockBlobRemover struct {
	removed []string
}

func (m *mockBlobRemover) RemoveUserBlobs(ctx context.Context, userID string) {
	m.removed = append(m.removed, userID)
}

var _ repository.UserRepository = (*mockUserRepo)(nil)
var _ repository.SessionRepository = (*mockSessionRepo)(nil)

func existingUser(prefs model.Preferences) *mockUserRepo {
	return &mockUserRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return &model.User{
				ID:           id,
				Username:     "alice",
				Email:        "alice@example.com",
				PasswordHash: "secret-hash",
				Points:       12,
				TimeSpent:    61,
				Preferences:  prefs,
			}, nil
		},
	}
}

// --- テスト ---

func TestService_GetProfile(t *testing.T) {
	svc := NewService(existingUser(nil), nil, nil)

	p, err := svc.GetProfile(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetProfile returned error: %v", err)
	}
	want := Profile{ID: "user-1", Username: "alice", Email: "alice@example.com", Points: 12, TimeSpent: 61}
	if *p != want {
		t.Errorf("GetProfile = %+v, want %+v", *p, want)
	}
}

func TestService_GetProfile_NotFound(t *testing.T) {
	svc := NewService(&mockUserRepo{}, nil, nil)

	if _, err := svc.GetProfile(context.Background(), "ghost"); !model.HasCode(err, model.ErrCodeUserNotFound) {
		t.Errorf("expected USER_NOT_FOUND, got %v", err)
	}
}

func TestService_GetPreferences(t *testing.T) {
	t.Run("stored", func(t *testing.T) {
		stored := model.Preferences{"theme": "dark", "font_size": float64(14)}
		svc := NewService(existingUser(stored), nil, nil)

		prefs, err := svc.GetPreferences(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("GetPreferences returned error: %v", err)
		}
		if !reflect.DeepEqual(prefs, stored) {
			t.Errorf("GetPreferences = %v, want %v", prefs, stored)
		}
	})

	t.Run("empty", func(t *testing.T) {
		svc := NewService(existingUser(nil), nil, nil)

		prefs, err := svc.GetPreferences(context.Background(), "user-1")
		if err != nil {
			t.Fatalf("GetPreferences returned error: %v", err)
		}
		if prefs == nil || len(prefs) != 0 {
			t.Errorf("expected empty object, got %#v", prefs)
		}
	})
}

func TestService_UpdatePreferences_ReplacesWholeDocument(t *testing.T) {
	var saved model.Preferences
	repo := &mockUserRepo{
		updatePreferencesFn: func(ctx context.Context, id string, prefs model.Preferences) (bool, error) {
			saved = prefs
			return true, nil
		},
	}
	svc := NewService(repo, nil, nil)

	next := model.Preferences{"language": "ja"}
	if err := svc.UpdatePreferences(context.Background(), "user-1", next); err != nil {
		t.Fatalf("UpdatePreferences returned error: %v", err)
	}
	if !reflect.DeepEqual(saved, next) {
		t.Errorf("saved = %v, want %v", saved, next)
	}

	if err := svc.UpdatePreferences(context.Background(), "user-1", nil); err != nil {
		t.Fatalf("UpdatePreferences(nil) returned error: %v", err)
	}
	if saved == nil || len(saved) != 0 {
		t.Errorf("nil must be stored as empty object, got %#v", saved)
	}
}

func TestService_UpdatePreferences_Errors(t *testing.T) {
	missing := &mockUserRepo{
		updatePreferencesFn: func(ctx context.Context, id string, prefs model.Preferences) (bool, error) {
			return false, nil
		},
	}
	if err := NewService(missing, nil, nil).UpdatePreferences(context.Background(), "ghost", model.Preferences{}); !model.HasCode(err, model.ErrCodeUserNotFound) {
		t.Errorf("expected USER_NOT_FOUND, got %v", err)
	}

	broken := &mockUserRepo{
		updatePreferencesFn: func(ctx context.Context, id string, prefs model.Preferences) (bool, error) {
			return false, errors.New("db down")
		},
	}
	if err := NewService(broken, nil, nil).UpdatePreferences(context.Background(), "user-1", model.Preferences{}); err == nil {
		t.Error("expected error, got nil")
	}
}

// TestService_Withdraw は退会処理が全関連データを削除することを検証する。
func TestService_Withdraw(t *testing.T) {
	var order []string

	userRepo := existingUser(nil)
	userRepo.deleteByIDFn = func(ctx context.Context, id string) error {
		order = append(order, "user")
		return nil
	}
	sessionRepo := &mockSessionRepo{
		deleteByUserIDFn: func(ctx context.Context, userID string) error {
			order = append(order, "sessions")
			return nil
		},
	}
	blobs := &mockBlobRemover{}

	svc := NewService(userRepo, sessionRepo, blobs)

	if err := svc.Withdraw(context.Background(), "user-1"); err != nil {
		t.Fatalf("Withdraw returned error: %v", err)
	}
	if len(blobs.removed) != 1 || blobs.removed[0] != "user-1" {
		t.Errorf("expected blobs of user-1 to be removed, got %v", blobs.removed)
	}
	if !reflect.DeepEqual(order, []string{"sessions", "user"}) {
		t.Errorf("deletion order = %v, want [sessions user]", order)
	}
}

// TestService_Withdraw_UserNotFound は存在しないユーザーの退会がエラーになることを検証する。
func TestService_Withdraw_UserNotFound(t *testing.T) {
	blobs := &mockBlobRemover{}
	svc := NewService(&mockUserRepo{}, nil, blobs)

	err := svc.Withdraw(context.Background(), "nonexistent-user")
	if !model.HasCode(err, model.ErrCodeUserNotFound) {
		t.Fatalf("expected USER_NOT_FOUND, got %v", err)
	}
	if len(blobs.removed) != 0 {
		t.Error("blobs must not be touched for a missing user")
	}
}

func TestService_Withdraw_SessionDeleteFails(t *testing.T) {
	userDeleted := false
	userRepo := existingUser(nil)
	userRepo.deleteByIDFn = func(ctx context.Context, id string) error {
		userDeleted = true
		return nil
	}
	sessionRepo := &mockSessionRepo{
		deleteByUserIDFn: func(ctx context.Context, userID string) error {
			return errors.New("db down")
		},
	}

	svc := NewService(userRepo, sessionRepo, nil)
	if err := svc.Withdraw(context.Background(), "user-1"); err == nil {
		t.Fatal("expected error, got nil")
	}
	if userDeleted {
		t.Error("user must not be deleted when session deletion fails")
	}
}
