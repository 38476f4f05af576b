package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/studyapp/internal/textmodel"
)

// TextModelServiceInterface は翻訳・要約・チャットのハンドラーが必要とするサービスインターフェース。
type TextModelServiceInterface interface {
	Translate(ctx context.Context, text, dest string) (string, error)
	Summarize(ctx context.Context, text string) (*textmodel.Summary, error)
	Chat(ctx context.Context, message string) (string, error)
}

// TextModelHandler はテキストモデル呼び出しのHTTPハンドラー。
type TextModelHandler struct {
	service TextModelServiceInterface
}

// NewTextModelHandler はTextModelHandlerを生成する。
func NewTextModelHandler(service TextModelServiceInterface) *TextModelHandler {
	return &TextModelHandler{service: service}
}

type translateRequest struct {
	Text string `json:"text" validate:"required"`
	Dest string `json:"dest"`
}

type translateResponse struct {
	TranslatedText string `json:"translated_text"`
}

type summarizeRequest struct {
	Text string `json:"text" validate:"required"`
}

type summarizeResponse struct {
	KeyPoints string `json:"key_points"`
	Summary   string `json:"summary"`
}

type chatRequest struct {
	Message string `json:"message" validate:"required"`
}

type chatResponse struct {
	Response string `json:"response"`
}

// Translate はテキストを翻訳する。destの既定値はサービス側で補う。
// POST /api/translate
func (h *TextModelHandler) Translate(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}

	var req translateRequest
	if err := decodeRequest(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	out, err := h.service.Translate(r.Context(), req.Text, req.Dest)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, translateResponse{TranslatedText: out})
}

// Summarize は要点と要約を返す。
// POST /api/summarize
func (h *TextModelHandler) Summarize(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}

	var req summarizeRequest
	if err := decodeRequest(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	s, err := h.service.Summarize(r.Context(), req.Text)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summarizeResponse{KeyPoints: s.KeyPoints, Summary: s.Summary})
}

// Chat はチャットボットの応答を返す。
// POST /api/chatbot
func (h *TextModelHandler) Chat(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUserID(w, r); !ok {
		return
	}

	var req chatRequest
	if err := decodeRequest(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	out, err := h.service.Chat(r.Context(), req.Message)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Response: out})
}
