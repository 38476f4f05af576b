package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/studyapp/internal/auth"
	"github.com/hitoshi/studyapp/internal/leaderboard"
	"github.com/hitoshi/studyapp/internal/ledger"
	"github.com/hitoshi/studyapp/internal/middleware"
	"github.com/hitoshi/studyapp/internal/model"
	"github.com/hitoshi/studyapp/internal/note"
	"github.com/hitoshi/studyapp/internal/textmodel"
	"github.com/hitoshi/studyapp/internal/user"
)

// --- モック定義 ---

type mockAuthService struct {
	registerFn func(ctx context.Context, in auth.RegisterInput) (*model.User, error)
	loginFn    func(ctx context.Context, username, password string) (*model.Session, error)
	logoutFn   func(ctx context.Context, sessionID string) error
}

func (m *mockAuthService) Register(ctx context.Context, in auth.RegisterInput) (*model.User, error) {
	if m.registerFn != nil {
		return m.registerFn(ctx, in)
	}
	return &model.User{ID: "user-1", Username: in.Username}, nil
}

func (m *mockAuthService) Login(ctx context.Context, username, password string) (*model.Session, error) {
	if m.loginFn != nil {
		return m.loginFn(ctx, username, password)
	}
	return nil, model.NewInvalidCredentialsError()
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

type mockUserService struct {
	getProfileFn        func(ctx context.Context, userID string) (*user.Profile, error)
	getPreferencesFn    func(ctx context.Context, userID string) (model.Preferences, error)
	updatePreferencesFn func(ctx context.Context, userID string, prefs model.Preferences) error
	withdrawFn          func(ctx context.Context, userID string) error
}

func (m *mockUserService) GetProfile(ctx context.Context, userID string) (*user.Profile, error) {
	if m.getProfileFn != nil {
		return m.getProfileFn(ctx, userID)
	}
	return &user.Profile{ID: userID}, nil
}

func (m *mockUserService) GetPreferences(ctx context.Context, userID string) (model.Preferences, error) {
	if m.getPreferencesFn != nil {
		return m.getPreferencesFn(ctx, userID)
	}
	return model.Preferences{}, nil
}

func (m *mockUserService) UpdatePreferences(ctx context.Context, userID string, prefs model.Preferences) error {
	if m.updatePreferencesFn != nil {
		return m.updatePreferencesFn(ctx, userID, prefs)
	}
	return nil
}

func (m *mockUserService) Withdraw(ctx context.Context, userID string) error {
	if m.withdrawFn != nil {
		return m.withdrawFn(ctx, userID)
	}
	return nil
}

type mockNoteService struct {
	createFn func(ctx context.Context, userID string, in note.NoteInput) (*model.Note, error)
	listFn   func(ctx context.Context, userID string) ([]*model.Note, error)
	updateFn func(ctx context.Context, userID, noteID string, patch model.NotePatch) (*model.Note, error)
	deleteFn func(ctx context.Context, userID, noteID string) error
}

func (m *mockNoteService) CreateNote(ctx context.Context, userID string, in note.NoteInput) (*model.Note, error) {
	if m.createFn != nil {
		return m.createFn(ctx, userID, in)
	}
	return &model.Note{ID: "note-1", UserID: userID, Title: in.Title, Section: in.Section}, nil
}

func (m *mockNoteService) ListNotes(ctx context.Context, userID string) ([]*model.Note, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return []*model.Note{}, nil
}

func (m *mockNoteService) UpdateNote(ctx context.Context, userID, noteID string, patch model.NotePatch) (*model.Note, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, userID, noteID, patch)
	}
	return nil, model.NewNoteNotFoundError(noteID)
}

func (m *mockNoteService) DeleteNote(ctx context.Context, userID, noteID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, noteID)
	}
	return nil
}

type mockDocumentService struct {
	ingestFn func(ctx context.Context, userID, filename string, data []byte) (*model.PDFDocument, error)
	listFn   func(ctx context.Context, userID string) ([]*model.PDFDocument, error)
	getFn    func(ctx context.Context, userID, documentID string) (*model.PDFDocument, error)
	deleteFn func(ctx context.Context, userID, documentID string) error
}

func (m *mockDocumentService) Ingest(ctx context.Context, userID, filename string, data []byte) (*model.PDFDocument, error) {
	if m.ingestFn != nil {
		return m.ingestFn(ctx, userID, filename, data)
	}
	return &model.PDFDocument{ID: "doc-1", UserID: userID, OriginalFilename: filename}, nil
}

func (m *mockDocumentService) ListDocuments(ctx context.Context, userID string) ([]*model.PDFDocument, error) {
	if m.listFn != nil {
		return m.listFn(ctx, userID)
	}
	return []*model.PDFDocument{}, nil
}

func (m *mockDocumentService) GetDocument(ctx context.Context, userID, documentID string) (*model.PDFDocument, error) {
	if m.getFn != nil {
		return m.getFn(ctx, userID, documentID)
	}
	return nil, model.NewDocumentNotFoundError(documentID)
}

func (m *mockDocumentService) DeleteDocument(ctx context.Context, userID, documentID string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, userID, documentID)
	}
	return nil
}

type mockLedgerService struct {
	awardFn      func(ctx context.Context, userID string, points int, activityType model.ActivityType) (*model.Totals, error)
	recordFn     func(ctx context.Context, userID string, minutes int) (*ledger.TimeReport, error)
	activitiesFn func(ctx context.Context, userID string, limit int) ([]*model.UserActivity, error)
}

func (m *mockLedgerService) AwardPoints(ctx context.Context, userID string, points int, activityType model.ActivityType) (*model.Totals, error) {
	if m.awardFn != nil {
		return m.awardFn(ctx, userID, points, activityType)
	}
	return &model.Totals{Points: points}, nil
}

func (m *mockLedgerService) RecordTimeSpent(ctx context.Context, userID string, minutes int) (*ledger.TimeReport, error) {
	if m.recordFn != nil {
		return m.recordFn(ctx, userID, minutes)
	}
	return &ledger.TimeReport{TimeSpent: minutes, Points: minutes / 5, PointsEarned: minutes / 5}, nil
}

func (m *mockLedgerService) ListActivities(ctx context.Context, userID string, limit int) ([]*model.UserActivity, error) {
	if m.activitiesFn != nil {
		return m.activitiesFn(ctx, userID, limit)
	}
	return []*model.UserActivity{}, nil
}

type mockLeaderboardService struct {
	topUsersFn func(ctx context.Context, limit int) ([]leaderboard.Entry, error)
}

func (m *mockLeaderboardService) TopUsers(ctx context.Context, limit int) ([]leaderboard.Entry, error) {
	if m.topUsersFn != nil {
		return m.topUsersFn(ctx, limit)
	}
	return []leaderboard.Entry{}, nil
}

type mockTextModelService struct {
	translateFn func(ctx context.Context, text, dest string) (string, error)
	summarizeFn func(ctx context.Context, text string) (*textmodel.Summary, error)
	chatFn      func(ctx context.Context, message string) (string, error)
}

func (m *mockTextModelService) Translate(ctx context.Context, text, dest string) (string, error) {
	if m.translateFn != nil {
		return m.translateFn(ctx, text, dest)
	}
	return "", model.NewModelNotConfiguredError()
}

func (m *mockTextModelService) Summarize(ctx context.Context, text string) (*textmodel.Summary, error) {
	if m.summarizeFn != nil {
		return m.summarizeFn(ctx, text)
	}
	return nil, model.NewModelNotConfiguredError()
}

func (m *mockTextModelService) Chat(ctx context.Context, message string) (string, error) {
	if m.chatFn != nil {
		return m.chatFn(ctx, message)
	}
	return "", model.NewModelNotConfiguredError()
}

// --- テストヘルパー ---

// newJSONRequest はJSONボディ付きのリクエストを生成する。userIDが空でなければコンテキストに設定する。
func newJSONRequest(t *testing.T, method, target, userID string, body any) *http.Request {
	t.Helper()
	var r io.Reader = http.NoBody
	if body != nil {
		switch b := body.(type) {
		case string:
			r = bytes.NewBufferString(b)
		default:
			buf, err := json.Marshal(b)
			if err != nil {
				t.Fatalf("failed to marshal body: %v", err)
			}
			r = bytes.NewReader(buf)
		}
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req = req.WithContext(middleware.ContextWithUserID(req.Context(), userID))
	}
	return req
}

// decodeErrorCode はエラーレスポンスのcodeを返す。
func decodeErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return body.Code
}
