// Package model はドメインモデルを定義する。
package model

import (
	"encoding/json"
	"time"
)

// User はサービス利用ユーザーを表す。
// Points と TimeSpent は user_activities から導出されるキャッシュ集計値で、
// 更新は LedgerRepository.Apply のトランザクション経由でのみ行う。
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Points       int
	TimeSpent    int // 分
	Preferences  Preferences
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Preferences はクライアントが自由に使う設定ドキュメント。
// サーバー側ではスキーマを持たず、JSONオブジェクトとしてそのまま保存する。
type Preferences map[string]any

// ParsePreferences はDBに保存されたJSONを読み取る。
// 空または不正なJSONの場合は空のPreferencesを返す。
func ParsePreferences(raw []byte) Preferences {
	if len(raw) == 0 {
		return Preferences{}
	}
	var p Preferences
	if err := json.Unmarshal(raw, &p); err != nil || p == nil {
		return Preferences{}
	}
	return p
}

// Bytes はPreferencesをJSONにエンコードする。nilは "{}" として扱う。
func (p Preferences) Bytes() ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(p))
}

// Totals はユーザーの集計値（ポイントと学習時間）を表す。
type Totals struct {
	Points    int
	TimeSpent int
}
