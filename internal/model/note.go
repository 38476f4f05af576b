package model

import (
	"strings"
	"time"
)

// Section はノートのグループ分けに使うラベル。固定の値集合は持たない。
type Section string

// Valid は空白以外の文字を含むかを返す。
func (s Section) Valid() bool {
	return strings.TrimSpace(string(s)) != ""
}

// MaxSectionLength はセクション名の最大文字数（DBのカラム長と一致させる）。
const MaxSectionLength = 50

// MaxNoteTitleLength はノートタイトルの最大文字数。
const MaxNoteTitleLength = 200

// MaxNoteOrder は表示順の絶対値の上限。
const MaxNoteOrder = 1000000

// Note はユーザーが所有するノートを表す。
// セクション内の表示順はOrderで決まる（一意である必要はない）。
type Note struct {
	ID        string
	UserID    string
	Title     string
	Content   string
	Section   Section
	Order     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NotePatch はノートの部分更新内容。nilのフィールドは変更しない。
type NotePatch struct {
	Title   *string
	Content *string
	Section *Section
	Order   *int
}

// Empty は更新対象のフィールドが1つもないかを返す。
func (p NotePatch) Empty() bool {
	return p.Title == nil && p.Content == nil && p.Section == nil && p.Order == nil
}
