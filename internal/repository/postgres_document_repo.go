package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/studyapp/internal/model"
)

// PostgresDocumentRepo はPostgreSQLを使用したPDFドキュメントリポジトリ。
type PostgresDocumentRepo struct {
	db *sql.DB
}

// NewPostgresDocumentRepo はPostgresDocumentRepoを生成する。
func NewPostgresDocumentRepo(db *sql.DB) *PostgresDocumentRepo {
	return &PostgresDocumentRepo{db: db}
}

// Save はドキュメントと全ページを同一トランザクションで保存する。
// ページ番号の検証は行わない（構築側で1..Nが保証される）。
func (r *PostgresDocumentRepo) Save(ctx context.Context, doc *model.PDFDocument) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (id, user_id, filename, original_filename, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		doc.ID, doc.UserID, doc.Filename, doc.OriginalFilename, doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO document_pages (document_id, page_number, content) VALUES ($1, $2, $3)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare page insert: %w", err)
	}
	defer stmt.Close()

	for _, page := range doc.Pages {
		if _, err := stmt.ExecContext(ctx, doc.ID, page.PageNumber, page.Content); err != nil {
			return fmt.Errorf("failed to insert page %d: %w", page.PageNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListByUserID はユーザーの全ドキュメントをページ付きで返す。
func (r *PostgresDocumentRepo) ListByUserID(ctx context.Context, userID string) ([]*model.PDFDocument, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, filename, original_filename, created_at
		 FROM documents
		 WHERE user_id = $1
		 ORDER BY created_at DESC, id ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	docs := []*model.PDFDocument{}
	byID := make(map[string]*model.PDFDocument)
	ids := []string{}
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
		byID[doc.ID] = doc
		ids = append(ids, doc.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate documents: %w", err)
	}
	if len(ids) == 0 {
		return docs, nil
	}

	pageRows, err := r.db.QueryContext(ctx,
		`SELECT document_id, page_number, content
		 FROM document_pages
		 WHERE document_id = ANY($1)
		 ORDER BY document_id, page_number`,
		pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	defer pageRows.Close()

	for pageRows.Next() {
		var documentID string
		var page model.Page
		if err := pageRows.Scan(&documentID, &page.PageNumber, &page.Content); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		if doc, ok := byID[documentID]; ok {
			doc.Pages = append(doc.Pages, page)
		}
	}
	if err := pageRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pages: %w", err)
	}
	return docs, nil
}

// FindByIDAndUser はドキュメントをページ付きで取得する。見つからない場合はnilを返す。
func (r *PostgresDocumentRepo) FindByIDAndUser(ctx context.Context, documentID, userID string) (*model.PDFDocument, error) {
	doc, err := scanDocument(r.db.QueryRowContext(ctx,
		`SELECT id, user_id, filename, original_filename, created_at
		 FROM documents
		 WHERE id = $1 AND user_id = $2`,
		documentID, userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find document: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT page_number, content FROM document_pages WHERE document_id = $1 ORDER BY page_number`,
		doc.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var page model.Page
		if err := rows.Scan(&page.PageNumber, &page.Content); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		doc.Pages = append(doc.Pages, page)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pages: %w", err)
	}
	return doc, nil
}

// DeleteByIDAndUser はドキュメントを削除する。ページはCASCADE削除される。
func (r *PostgresDocumentRepo) DeleteByIDAndUser(ctx context.Context, documentID, userID string) (*model.PDFDocument, error) {
	doc, err := scanDocument(r.db.QueryRowContext(ctx,
		`DELETE FROM documents
		 WHERE id = $1 AND user_id = $2
		 RETURNING id, user_id, filename, original_filename, created_at`,
		documentID, userID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete document: %w", err)
	}
	return doc, nil
}

// ListFilenamesByUserID はユーザーの全ドキュメントの保存ファイル名を返す。
func (r *PostgresDocumentRepo) ListFilenamesByUserID(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT filename FROM documents WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list filenames: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan filename: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate filenames: %w", err)
	}
	return names, nil
}

func scanDocument(s rowScanner) (*model.PDFDocument, error) {
	doc := &model.PDFDocument{Pages: []model.Page{}}
	if err := s.Scan(&doc.ID, &doc.UserID, &doc.Filename, &doc.OriginalFilename, &doc.CreatedAt); err != nil {
		return nil, err
	}
	return doc, nil
}

// compile-time interface check
var _ DocumentRepository = (*PostgresDocumentRepo)(nil)
