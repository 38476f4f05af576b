// Package document はPDFの取り込みと保存済みドキュメントの参照を提供する。
package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/studyapp/internal/metrics"
	"github.com/hitoshi/studyapp/internal/model"
	"github.com/hitoshi/studyapp/internal/repository"
	"github.com/hitoshi/studyapp/internal/security"
)

const (
	// pdfMagic はPDFファイルのヘッダーマーカー。
	pdfMagic = "%PDF-"
	// magicSearchWindow はマーカーを探す先頭からのバイト数。
	magicSearchWindow = 1024
	// fallbackFilename はサニタイズ後に名前が残らない場合の保存名。
	fallbackFilename = "document.pdf"
	pdfContentType   = "application/pdf"
)

// Service はPDF取り込みパイプラインとドキュメント参照のサービス層。
type Service struct {
	docRepo   repository.DocumentRepository
	extractor Extractor
	blobs     BlobStore
	metrics   metrics.MetricsCollector
}

// NewService はServiceの新しいインスタンスを生成する。
// blobsがnilの場合、元ファイルは保存せず抽出テキストのみ保存する。
func NewService(
	docRepo repository.DocumentRepository,
	extractor Extractor,
	blobs BlobStore,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	return &Service{
		docRepo:   docRepo,
		extractor: extractor,
		blobs:     blobs,
		metrics:   collector,
	}
}

// Ingest はアップロードされたPDFを検証・抽出し、ページ単位で保存する。
// 処理順序:
//  1. ファイル名と拡張子の検証
//  2. 内容の検証（空でないこと、PDFヘッダーがあること）
//  3. ページ単位のテキスト抽出（ページ番号は1から連番）
//  4. 保存用ファイル名の生成、元ファイルの保存、DBへの保存
func (s *Service) Ingest(ctx context.Context, userID, filename string, data []byte) (*model.PDFDocument, error) {
	doc, err := s.ingest(ctx, userID, filename, data)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			s.metrics.RecordIngestionFailure(apiErr.Code)
		} else {
			s.metrics.RecordIngestionFailure(model.ErrCodeInternal)
		}
		slog.Warn("PDFの取り込みに失敗しました",
			slog.String("user_id", userID),
			slog.String("filename", filename),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.metrics.RecordDocumentIngested(len(doc.Pages))
	slog.Info("PDFを取り込みました",
		slog.String("user_id", userID),
		slog.String("document_id", doc.ID),
		slog.Int("pages", len(doc.Pages)),
	)
	return doc, nil
}

func (s *Service) ingest(ctx context.Context, userID, filename string, data []byte) (*model.PDFDocument, error) {
	filename = cleanText(filename)
	if filename == "" {
		return nil, model.NewValidationError("file", "ファイルが選択されていません")
	}
	if utf8.RuneCountInString(filename) > model.MaxOriginalFilenameLength {
		return nil, model.NewValidationError("file", fmt.Sprintf("ファイル名は%d文字以内にしてください", model.MaxOriginalFilenameLength))
	}
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return nil, model.NewUnsupportedFormatError("拡張子が.pdfではありません")
	}
	if len(data) == 0 {
		return nil, model.NewValidationError("file", "ファイルが空です")
	}
	if !hasPDFMagic(data) {
		return nil, model.NewUnsupportedFormatError("PDFヘッダーが見つかりません")
	}

	texts, err := s.extractor.Extract(data)
	if err != nil {
		return nil, model.NewExtractionError(err.Error())
	}
	if len(texts) == 0 {
		return nil, model.NewExtractionError(ErrNoPages.Error())
	}
	for i, text := range texts {
		texts[i] = cleanText(text)
	}

	docID := uuid.New().String()
	doc := &model.PDFDocument{
		ID:               docID,
		UserID:           userID,
		Filename:         storedFilename(docID, filename),
		OriginalFilename: filename,
		Pages:            model.NewPages(texts),
		CreatedAt:        time.Now(),
	}

	if s.blobs != nil {
		if err := s.blobs.Upload(ctx, doc.Filename, bytes.NewReader(data), int64(len(data)), pdfContentType); err != nil {
			return nil, fmt.Errorf("元ファイルの保存に失敗しました: %w", err)
		}
	}

	if err := s.docRepo.Save(ctx, doc); err != nil {
		s.removeBlob(ctx, doc.Filename)
		return nil, fmt.Errorf("ドキュメントの保存に失敗しました: %w", err)
	}

	return doc, nil
}

// ListDocuments はユーザーの全ドキュメントをページ付きで返す。
func (s *Service) ListDocuments(ctx context.Context, userID string) ([]*model.PDFDocument, error) {
	docs, err := s.docRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ドキュメント一覧の取得に失敗しました: %w", err)
	}
	if docs == nil {
		docs = []*model.PDFDocument{}
	}
	return docs, nil
}

// GetDocument はユーザーのドキュメントを1件返す。
func (s *Service) GetDocument(ctx context.Context, userID, documentID string) (*model.PDFDocument, error) {
	if !isUUID(documentID) {
		return nil, model.NewDocumentNotFoundError(documentID)
	}
	doc, err := s.docRepo.FindByIDAndUser(ctx, documentID, userID)
	if err != nil {
		return nil, fmt.Errorf("ドキュメントの取得に失敗しました: %w", err)
	}
	if doc == nil {
		return nil, model.NewDocumentNotFoundError(documentID)
	}
	return doc, nil
}

// DeleteDocument はドキュメントと保存済みの元ファイルを削除する。
func (s *Service) DeleteDocument(ctx context.Context, userID, documentID string) error {
	if !isUUID(documentID) {
		return model.NewDocumentNotFoundError(documentID)
	}
	doc, err := s.docRepo.DeleteByIDAndUser(ctx, documentID, userID)
	if err != nil {
		return fmt.Errorf("ドキュメントの削除に失敗しました: %w", err)
	}
	if doc == nil {
		return model.NewDocumentNotFoundError(documentID)
	}

	s.removeBlob(ctx, doc.Filename)
	slog.Info("ドキュメントを削除しました",
		slog.String("user_id", userID),
		slog.String("document_id", documentID),
	)
	return nil
}

// RemoveUserBlobs はユーザーの全ドキュメントの元ファイルを削除する。
// 退会処理から呼ばれ、失敗はログに記録するのみで処理を続行する。
func (s *Service) RemoveUserBlobs(ctx context.Context, userID string) {
	if s.blobs == nil {
		return
	}
	names, err := s.docRepo.ListFilenamesByUserID(ctx, userID)
	if err != nil {
		slog.Warn("元ファイル一覧の取得に失敗しました",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return
	}
	for _, name := range names {
		s.removeBlob(ctx, name)
	}
}

func (s *Service) removeBlob(ctx context.Context, key string) {
	if s.blobs == nil {
		return
	}
	if err := s.blobs.Delete(ctx, key); err != nil {
		slog.Warn("元ファイルの削除に失敗しました",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

// hasPDFMagic は先頭1024バイト以内にPDFヘッダーがあるかを返す。
func hasPDFMagic(data []byte) bool {
	window := data
	if len(window) > magicSearchWindow {
		window = window[:magicSearchWindow]
	}
	return bytes.Contains(window, []byte(pdfMagic))
}

// storedFilename は衝突しない保存用ファイル名を生成する。
func storedFilename(docID, original string) string {
	name := security.SanitizeFilename(original)
	if !strings.HasSuffix(strings.ToLower(name), ".pdf") || len(name) <= len(".pdf") {
		name = fallbackFilename
	}
	return docID + "_" + name
}

func isUUID(id string) bool {
	return len(id) == 36 && uuid.Validate(id) == nil
}
