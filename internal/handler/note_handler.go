package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/studyapp/internal/model"
	"github.com/hitoshi/studyapp/internal/note"
	"github.com/hitoshi/studyapp/internal/security"
)

// NoteServiceInterface はノートハンドラーが必要とするサービスインターフェース。
type NoteServiceInterface interface {
	CreateNote(ctx context.Context, userID string, in note.NoteInput) (*model.Note, error)
	ListNotes(ctx context.Context, userID string) ([]*model.Note, error)
	UpdateNote(ctx context.Context, userID, noteID string, patch model.NotePatch) (*model.Note, error)
	DeleteNote(ctx context.Context, userID, noteID string) error
}

// NoteHandler はノート管理のHTTPハンドラー。
// contentは保存されたまま返し、HTML表示用の無害化済み本文はcontent_htmlで返す。
type NoteHandler struct {
	service  NoteServiceInterface
	renderer security.ContentSanitizerService
}

// NewNoteHandler はNoteHandlerを生成する。
func NewNoteHandler(service NoteServiceInterface) *NoteHandler {
	return &NoteHandler{
		service:  service,
		renderer: security.NewContentSanitizer(),
	}
}

type createNoteRequest struct {
	Title   string `json:"title" validate:"required,max=200"`
	Content string `json:"content"`
	Section string `json:"section" validate:"required,max=50"`
}

// updateNoteRequest は省略されたフィールドを変更しない。
type updateNoteRequest struct {
	Title   *string `json:"title" validate:"omitempty,max=200"`
	Content *string `json:"content"`
	Section *string `json:"section" validate:"omitempty,max=50"`
	Order   *int    `json:"order" validate:"omitempty,min=-1000000,max=1000000"`
}

func (req updateNoteRequest) patch() model.NotePatch {
	p := model.NotePatch{
		Title:   req.Title,
		Content: req.Content,
		Order:   req.Order,
	}
	if req.Section != nil {
		s := model.Section(*req.Section)
		p.Section = &s
	}
	return p
}

type noteResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Content     string    `json:"content"`
	ContentHTML string    `json:"content_html"`
	Section     string    `json:"section"`
	Order       int       `json:"order"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (h *NoteHandler) toResponse(n *model.Note) noteResponse {
	return noteResponse{
		ID:          n.ID,
		Title:       n.Title,
		Content:     n.Content,
		ContentHTML: h.renderer.Sanitize(n.Content),
		Section:     string(n.Section),
		Order:       n.Order,
		CreatedAt:   n.CreatedAt,
		UpdatedAt:   n.UpdatedAt,
	}
}

// ListNotes はノート一覧をセクション・表示順で返す。
// GET /api/notes
func (h *NoteHandler) ListNotes(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	notes, err := h.service.ListNotes(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]noteResponse, 0, len(notes))
	for _, n := range notes {
		resp = append(resp, h.toResponse(n))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateNote はノートを作成する。
// POST /api/notes
func (h *NoteHandler) CreateNote(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req createNoteRequest
	if err := decodeRequest(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	n, err := h.service.CreateNote(r.Context(), userID, note.NoteInput{
		Title:   req.Title,
		Content: req.Content,
		Section: model.Section(req.Section),
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, h.toResponse(n))
}

// UpdateNote はノートを部分更新する。
// PUT /api/notes/{id}
func (h *NoteHandler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var req updateNoteRequest
	if err := decodeRequest(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	n, err := h.service.UpdateNote(r.Context(), userID, chi.URLParam(r, "id"), req.patch())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, h.toResponse(n))
}

// DeleteNote はノートを削除する。
// DELETE /api/notes/{id}
func (h *NoteHandler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteNote(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
