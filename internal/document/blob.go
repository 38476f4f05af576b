package document

import (
	"context"
	"io"
)

// BlobStore はアップロードされた元ファイルの保存先。
// 未設定の場合はテキストのみ保存する。
type BlobStore interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Delete(ctx context.Context, key string) error
}
