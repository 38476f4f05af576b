package model

import "time"

// PDFDocument はアップロードされたPDFから抽出したページ単位のテキストを表す。
type PDFDocument struct {
	ID               string
	UserID           string
	Filename         string // サニタイズ済みの保存用ファイル名
	OriginalFilename string // アップロード時のファイル名（表示用、信頼しない）
	Pages            []Page
	CreatedAt        time.Time
}

// MaxOriginalFilenameLength はアップロード時ファイル名の最大文字数（DBのカラム長と一致させる）。
const MaxOriginalFilenameLength = 255

// Page はPDFの1ページ分の抽出テキスト。
// PageNumberは1始まりで、ドキュメント内で欠番なく連続する。
type Page struct {
	PageNumber int
	Content    string
}

// NewPages は抽出順のテキスト列から1..Nのページ列を構築する。
// 空のテキストもそのままページとして保持する。
func NewPages(texts []string) []Page {
	pages := make([]Page, len(texts))
	for i, text := range texts {
		pages[i] = Page{PageNumber: i + 1, Content: text}
	}
	return pages
}
