package model

import (
	"regexp"
	"time"
)

// ActivityType はポイント獲得の種類を表すタグ。
// 既知の値以外も受け付けるが、書式は activityTypePattern に従う必要がある。
type ActivityType string

const (
	// ActivityTimeSpent は学習時間の報告によるポイント獲得。
	ActivityTimeSpent ActivityType = "time_spent"
	// ActivityQuestionAsked は質問によるポイント獲得。
	ActivityQuestionAsked ActivityType = "question_asked"
	// ActivityQuizCorrect はクイズ正解によるポイント獲得。
	ActivityQuizCorrect ActivityType = "quiz_correct"
	// ActivityOther は分類されないポイント獲得。
	ActivityOther ActivityType = "other"
	// ActivitySeed は管理ユーザー作成時の初期残高。
	ActivitySeed ActivityType = "seed"
)

// 1回の操作で加算できる上限。累計値はDBのINTEGERに収まる必要がある。
const (
	MaxPointsPerAward   = 100000
	MaxMinutesPerReport = 24 * 60
)

var activityTypePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,49}$`)

// Reserved はサーバー内部でのみ記録する種類かを返す。
func (t ActivityType) Reserved() bool {
	return t == ActivityTimeSpent || t == ActivitySeed
}

// ParseActivityType はクライアントが指定した種類を検証する。
// 空文字列はActivityOtherとして扱う。
func ParseActivityType(s string) (ActivityType, error) {
	if s == "" {
		return ActivityOther, nil
	}
	if !activityTypePattern.MatchString(s) {
		return "", NewValidationError("activity_type", "英小文字・数字・アンダースコアで50文字以内")
	}
	return ActivityType(s), nil
}

// ParseClientActivityType はParseActivityTypeに加え、
// 学習時間報告や初期残高など内部専用の種類を拒否する。
func ParseClientActivityType(s string) (ActivityType, error) {
	t, err := ParseActivityType(s)
	if err != nil {
		return "", err
	}
	if t.Reserved() {
		return "", NewValidationError("activity_type", "この種類は指定できません")
	}
	return t, nil
}

// UserActivity はポイント台帳の1エントリ。作成後は更新・削除しない。
type UserActivity struct {
	ID           string
	UserID       string
	ActivityType ActivityType
	PointsEarned int
	CreatedAt    time.Time
}
