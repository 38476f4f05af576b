package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/studyapp/internal/model"
)

type mockSessionRepository struct {
	findByIDFn func(ctx context.Context, id string) (*model.Session, error)
}

func (m *mockSessionRepository) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

// ノート一覧へのアクセスでセッションの所有者とセッションIDが後続に渡る
func TestSessionMiddleware_InjectsOwnerForNotes(t *testing.T) {
	repo := &mockSessionRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			if id != "sess-alice" {
				return nil, nil
			}
			return &model.Session{ID: id, UserID: "alice", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}

	var gotUser, gotSession string
	handler := NewSessionMiddleware(repo)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := UserIDFromContext(r.Context())
		if err != nil {
			t.Errorf("UserIDFromContext: %v", err)
		}
		gotUser = userID
		gotSession = SessionIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "sess-alice"})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotUser != "alice" || gotSession != "sess-alice" {
		t.Errorf("context = (%q, %q), want (alice, sess-alice)", gotUser, gotSession)
	}
}

func TestSessionMiddleware_RejectsWithoutValidSession(t *testing.T) {
	lookupErr := errors.New("connection reset by peer")

	tests := []struct {
		name   string
		method string
		path   string
		cookie *http.Cookie
		find   func(ctx context.Context, id string) (*model.Session, error)
	}{
		{
			name:   "Cookieなしのノート取得",
			method: http.MethodGet, path: "/api/notes",
		},
		{
			name:   "空のCookieでPDFアップロード",
			method: http.MethodPost, path: "/api/upload-pdf",
			cookie: &http.Cookie{Name: SessionCookieName, Value: ""},
		},
		{
			name:   "期限切れセッションで学習時間報告",
			method: http.MethodPost, path: "/api/time-spent",
			cookie: &http.Cookie{Name: SessionCookieName, Value: "sess-expired"},
			find: func(ctx context.Context, id string) (*model.Session, error) {
				return nil, nil
			},
		},
		{
			name:   "セッション検索の失敗",
			method: http.MethodGet, path: "/api/documents",
			cookie: &http.Cookie{Name: SessionCookieName, Value: "sess-any"},
			find: func(ctx context.Context, id string) (*model.Session, error) {
				return nil, lookupErr
			},
		},
		{
			name:   "別名のCookieは無視する",
			method: http.MethodGet, path: "/api/user",
			cookie: &http.Cookie{Name: "session", Value: "sess-alice"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewSessionMiddleware(&mockSessionRepository{findByIDFn: tt.find})(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					t.Fatal("handler should not be called")
				}))

			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.cookie != nil {
				req.AddCookie(tt.cookie)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
			var body ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if body.Code != model.ErrCodeUnauthenticated {
				t.Errorf("code = %q, want %q", body.Code, model.ErrCodeUnauthenticated)
			}
		})
	}
}

func TestUserIDFromContext(t *testing.T) {
	if _, err := UserIDFromContext(context.Background()); err == nil {
		t.Error("expected error for missing user ID")
	}
	if _, err := UserIDFromContext(ContextWithUserID(context.Background(), "")); err == nil {
		t.Error("expected error for empty user ID")
	}

	userID, err := UserIDFromContext(ContextWithUserID(context.Background(), "bob"))
	if err != nil || userID != "bob" {
		t.Errorf("got (%q, %v), want bob", userID, err)
	}
}

func TestSessionIDFromContext(t *testing.T) {
	if got := SessionIDFromContext(context.Background()); got != "" {
		t.Errorf("SessionIDFromContext() = %q, want empty", got)
	}
	if got := SessionIDFromContext(ContextWithSessionID(context.Background(), "sess-9")); got != "sess-9" {
		t.Errorf("SessionIDFromContext() = %q, want sess-9", got)
	}
}
