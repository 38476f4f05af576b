package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/hitoshi/studyapp/internal/model"
)

// newMockDB はsqlmockを使用したテスト用DBを生成する。
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet sqlmock expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

var userRowColumns = []string{"id", "username", "email", "password_hash", "points", "time_spent", "preferences", "created_at", "updated_at"}

func TestPostgresUserRepo_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)
	now := time.Now()

	mock.ExpectExec(`INSERT INTO users`).
		WithArgs("user-1", "alice", "alice@example.com", "hash", 0, 0, []byte("{}"), now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Create(context.Background(), &model.User{
		ID: "user-1", Username: "alice", Email: "alice@example.com", PasswordHash: "hash",
		CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
}

func TestPostgresUserRepo_FindByUsername(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM users WHERE username = \$1`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("user-1", "alice", "alice@example.com", "hash", 12, 60, []byte(`{"theme":"dark"}`), now, now))

	user, err := repo.FindByUsername(context.Background(), "alice")
	if err != nil {
		t.Fatalf("FindByUsername returned error: %v", err)
	}
	if user == nil {
		t.Fatal("expected user, got nil")
	}
	if user.Points != 12 || user.TimeSpent != 60 {
		t.Errorf("totals = (%d, %d), want (12, 60)", user.Points, user.TimeSpent)
	}
	if user.Preferences["theme"] != "dark" {
		t.Errorf("preferences = %v, want theme=dark", user.Preferences)
	}
}

func TestPostgresUserRepo_FindByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	user, err := repo.FindByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("FindByID returned error: %v", err)
	}
	if user != nil {
		t.Errorf("expected nil user, got %+v", user)
	}
}

func TestPostgresUserRepo_FindByEmail_DBError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectQuery(`SELECT .+ FROM users WHERE email = \$1`).
		WithArgs("a@example.com").
		WillReturnError(errors.New("db down"))

	if _, err := repo.FindByEmail(context.Background(), "a@example.com"); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestPostgresUserRepo_UpdatePreferences(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectExec(`UPDATE users SET preferences = \$2`).
		WithArgs("user-1", []byte(`{"lang":"ar"}`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE users SET preferences = \$2`).
		WithArgs("ghost", []byte(`{}`)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.UpdatePreferences(context.Background(), "user-1", model.Preferences{"lang": "ar"})
	if err != nil || !ok {
		t.Fatalf("UpdatePreferences = (%v, %v), want (true, nil)", ok, err)
	}
	ok, err = repo.UpdatePreferences(context.Background(), "ghost", nil)
	if err != nil || ok {
		t.Fatalf("UpdatePreferences(ghost) = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestPostgresUserRepo_DeleteByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)

	mock.ExpectExec(`DELETE FROM users WHERE id = \$1`).
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.DeleteByID(context.Background(), "ghost"); err == nil {
		t.Fatal("expected error for missing user")
	}
}

func TestPostgresUserRepo_ListTopByPoints(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewPostgresUserRepo(db)
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM users ORDER BY points DESC, id ASC LIMIT \$1`).
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows(userRowColumns).
			AddRow("u3", "carol", "c@example.com", "h", 90, 10, []byte("{}"), now, now).
			AddRow("u1", "alice", "a@example.com", "h", 50, 20, []byte("{}"), now, now).
			AddRow("u2", "bob", "b@example.com", "h", 10, 30, []byte("{}"), now, now))

	users, err := repo.ListTopByPoints(context.Background(), 3)
	if err != nil {
		t.Fatalf("ListTopByPoints returned error: %v", err)
	}
	if len(users) != 3 {
		t.Fatalf("len(users) = %d, want 3", len(users))
	}
	if users[0].Username != "carol" || users[2].Username != "bob" {
		t.Errorf("unexpected order: %s, %s, %s", users[0].Username, users[1].Username, users[2].Username)
	}
}
