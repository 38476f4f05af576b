package document

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"
)

// ErrNoPages はPDFにページが1つも無い場合のエラー。
var ErrNoPages = errors.New("document has no pages")

// Extractor はドキュメントからページ単位のテキストを抽出するインターフェース。
// 戻り値のスライスの順序がページ順になる。
type Extractor interface {
	Extract(data []byte) ([]string, error)
}

// PDFExtractor はledongthuc/pdfを使ったExtractorの実装。
type PDFExtractor struct{}

// NewPDFExtractor はPDFExtractorを生成する。
func NewPDFExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// Extract はPDFの全ページのプレーンテキストを返す。
// 文書構造が読めない場合はエラーを返す。個別ページの抽出失敗は空文字列として扱う。
func (e *PDFExtractor) Extract(data []byte) (pages []string, err error) {
	// 壊れたPDFに対してパーサーがpanicすることがある
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("malformed document: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	n := reader.NumPage()
	if n == 0 {
		return nil, ErrNoPages
	}

	pages = make([]string, n)
	for i := 1; i <= n; i++ {
		pages[i-1] = extractPage(reader, i)
	}
	return pages, nil
}

// extractPage は1ページ分のテキストを抽出する。失敗時は空文字列を返す。
func extractPage(reader *pdf.Reader, num int) (text string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("ページのテキスト抽出でpanicが発生しました",
				slog.Int("page", num),
				slog.Any("panic", r),
			)
			text = ""
		}
	}()

	page := reader.Page(num)
	if page.V.IsNull() {
		return ""
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		slog.Warn("ページのテキスト抽出に失敗しました",
			slog.Int("page", num),
			slog.String("error", err.Error()),
		)
		return ""
	}
	return cleanText(text)
}

// cleanText はPostgreSQLのTEXT/VARCHARに保存できない文字を除去する。
// 不正なUTF-8バイト列とNUL文字は取り除かれる。
func cleanText(s string) string {
	return strings.ReplaceAll(strings.ToValidUTF8(s, ""), "\x00", "")
}
