package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/studyapp/internal/model"
)

const (
	uploadFormField = "file"
	// multipartOverhead はファイル本体以外のmultipartヘッダー分の余裕。
	multipartOverhead = 64 << 10
	multipartMemory   = 1 << 20
)

// DocumentServiceInterface はPDFハンドラーが必要とするサービスインターフェース。
type DocumentServiceInterface interface {
	Ingest(ctx context.Context, userID, filename string, data []byte) (*model.PDFDocument, error)
	ListDocuments(ctx context.Context, userID string) ([]*model.PDFDocument, error)
	GetDocument(ctx context.Context, userID, documentID string) (*model.PDFDocument, error)
	DeleteDocument(ctx context.Context, userID, documentID string) error
}

// DocumentHandler はPDFのアップロードと参照のHTTPハンドラー。
type DocumentHandler struct {
	service  DocumentServiceInterface
	maxBytes int64
}

// NewDocumentHandler はDocumentHandlerを生成する。maxBytesはアップロードファイルの上限。
func NewDocumentHandler(service DocumentServiceInterface, maxBytes int64) *DocumentHandler {
	return &DocumentHandler{
		service:  service,
		maxBytes: maxBytes,
	}
}

type pageResponse struct {
	PageNumber int    `json:"page_number"`
	Content    string `json:"content"`
}

type documentResponse struct {
	ID               string         `json:"id"`
	Filename         string         `json:"filename"`
	OriginalFilename string         `json:"original_filename"`
	Pages            []pageResponse `json:"pages"`
	CreatedAt        time.Time      `json:"created_at"`
}

func toDocumentResponse(d *model.PDFDocument) documentResponse {
	pages := make([]pageResponse, 0, len(d.Pages))
	for _, p := range d.Pages {
		pages = append(pages, pageResponse{PageNumber: p.PageNumber, Content: p.Content})
	}
	return documentResponse{
		ID:               d.ID,
		Filename:         d.Filename,
		OriginalFilename: d.OriginalFilename,
		Pages:            pages,
		CreatedAt:        d.CreatedAt,
	}
}

// UploadPDF はmultipartの file フィールドでPDFを受け取り、ページ単位で取り込む。
// POST /api/upload-pdf
func (h *DocumentHandler) UploadPDF(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	filename, data, err := h.readUpload(w, r)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	doc, err := h.service.Ingest(r.Context(), userID, filename, data)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toDocumentResponse(doc))
}

// readUpload はサイズ上限を守りながらアップロードファイルを読み取る。
func (h *DocumentHandler) readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes+multipartOverhead)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return "", nil, model.NewPayloadTooLargeError(h.maxBytes)
		}
		return "", nil, model.NewValidationError(uploadFormField, "multipart/form-dataで送信してください")
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile(uploadFormField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return "", nil, model.NewValidationError(uploadFormField, "ファイルが指定されていません")
		}
		return "", nil, model.NewValidationError(uploadFormField, "ファイルを読み取れません")
	}
	defer file.Close()

	if header.Size > h.maxBytes {
		return "", nil, model.NewPayloadTooLargeError(h.maxBytes)
	}

	data, err := io.ReadAll(io.LimitReader(file, h.maxBytes+1))
	if err != nil {
		return "", nil, model.NewValidationError(uploadFormField, "ファイルを読み取れません")
	}
	if int64(len(data)) > h.maxBytes {
		return "", nil, model.NewPayloadTooLargeError(h.maxBytes)
	}

	return header.Filename, data, nil
}

// ListDocuments はユーザーのPDF一覧をページ付きで返す。
// GET /api/pdfs
func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	docs, err := h.service.ListDocuments(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		resp = append(resp, toDocumentResponse(d))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetDocument は1件のPDFを返す。
// GET /api/pdfs/{id}
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	doc, err := h.service.GetDocument(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

// DeleteDocument はPDFを削除する。
// DELETE /api/pdfs/{id}
func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteDocument(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
