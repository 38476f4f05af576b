package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/studyapp/internal/model"
)

// sessionsByID はセッションIDからユーザーIDを引くモックリポジトリを返す。
func sessionsByID(users map[string]string) *mockSessionRepository {
	return &mockSessionRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			userID, ok := users[id]
			if !ok {
				return nil, nil
			}
			return &model.Session{ID: id, UserID: userID, ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
	}
}

// newAuthenticatedChain は認証済みルートと同じ順序（Session → General → Heavy）で組み立てる。
func newAuthenticatedChain(t *testing.T, cfg RateLimiterConfig, heavy bool) (http.Handler, *RateLimiter) {
	t.Helper()
	rl := NewRateLimiter(cfg)
	t.Cleanup(rl.Stop)

	sessions := sessionsByID(map[string]string{"s-alice": "alice", "s-bob": "bob"})
	var h http.Handler = okHandler()
	if heavy {
		h = rl.HeavyMiddleware()(h)
	}
	h = rl.GeneralMiddleware()(h)
	return NewSessionMiddleware(sessions)(h), rl
}

func requestWithSession(handler http.Handler, sessionID string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/time-spent", nil)
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: sessionID})
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w.Code
}

func TestMiddlewareChain_UnauthenticatedRequestsDoNotCreateLimiters(t *testing.T) {
	chain, rl := newAuthenticatedChain(t, testLimiterConfig(1, 1), false)

	for i := 0; i < 5; i++ {
		if code := requestWithSession(chain, "unknown-session"); code != http.StatusUnauthorized {
			t.Fatalf("request %d: status = %d, want %d", i, code, http.StatusUnauthorized)
		}
	}
	if n := rl.GeneralLimiterCount(); n != 0 {
		t.Errorf("GeneralLimiterCount = %d, want 0", n)
	}
}

func TestMiddlewareChain_LimitsBySessionUser(t *testing.T) {
	chain, rl := newAuthenticatedChain(t, testLimiterConfig(1, 1), false)

	if code := requestWithSession(chain, "s-alice"); code != http.StatusOK {
		t.Fatalf("alice first: status = %d, want %d", code, http.StatusOK)
	}
	if code := requestWithSession(chain, "s-alice"); code != http.StatusTooManyRequests {
		t.Errorf("alice second: status = %d, want %d", code, http.StatusTooManyRequests)
	}
	// 別ユーザーのバケットは独立している
	if code := requestWithSession(chain, "s-bob"); code != http.StatusOK {
		t.Errorf("bob first: status = %d, want %d", code, http.StatusOK)
	}
	if n := rl.GeneralLimiterCount(); n != 2 {
		t.Errorf("GeneralLimiterCount = %d, want 2", n)
	}
}

func TestMiddlewareChain_HeavyRouteConsumesBothLimiters(t *testing.T) {
	chain, rl := newAuthenticatedChain(t, testLimiterConfig(5, 1), true)

	if code := requestWithSession(chain, "s-alice"); code != http.StatusOK {
		t.Fatalf("first heavy request: status = %d, want %d", code, http.StatusOK)
	}
	if code := requestWithSession(chain, "s-alice"); code != http.StatusTooManyRequests {
		t.Errorf("second heavy request: status = %d, want %d", code, http.StatusTooManyRequests)
	}
	if rl.GeneralLimiterCount() != 1 || rl.HeavyLimiterCount() != 1 {
		t.Errorf("limiter counts = general %d / heavy %d, want 1 / 1",
			rl.GeneralLimiterCount(), rl.HeavyLimiterCount())
	}
}
