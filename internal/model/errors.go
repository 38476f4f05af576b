// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, content, ledger, model, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation         = "VALIDATION_FAILED"
	ErrCodeNoteNotFound       = "NOTE_NOT_FOUND"
	ErrCodeDocumentNotFound   = "DOCUMENT_NOT_FOUND"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeUnsupportedFormat  = "UNSUPPORTED_FORMAT"
	ErrCodeExtractionFailed   = "EXTRACTION_FAILED"
	ErrCodeConflict           = "CONFLICT"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeModelUnavailable   = "MODEL_UNAVAILABLE"
	ErrCodeModelNotConfigured = "MODEL_NOT_CONFIGURED"
	ErrCodeUnauthenticated    = "UNAUTHENTICATED"
	ErrCodeCSRFInvalid        = "CSRF_TOKEN_INVALID"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewValidationError は入力値の検証エラーを生成する。
// fieldには問題のあるフィールド名、reasonには修正に必要な情報を指定する。
func NewValidationError(field, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力値が不正です: %s (%s)", field, reason),
		Category: "validation",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewNoteNotFoundError はノート未検出エラーを生成する。
// 他ユーザーのノートも存在しないノートと同じエラーになる。
func NewNoteNotFoundError(noteID string) *APIError {
	return &APIError{
		Code:     ErrCodeNoteNotFound,
		Message:  fmt.Sprintf("指定されたノートが見つかりません: %s", noteID),
		Category: "content",
		Action:   "ノートIDを確認してください。",
	}
}

// NewDocumentNotFoundError はPDFドキュメント未検出エラーを生成する。
func NewDocumentNotFoundError(documentID string) *APIError {
	return &APIError{
		Code:     ErrCodeDocumentNotFound,
		Message:  fmt.Sprintf("指定されたドキュメントが見つかりません: %s", documentID),
		Category: "content",
		Action:   "ドキュメントIDを確認してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewUnsupportedFormatError は取り込み対象外の形式が渡された場合のエラーを生成する。
func NewUnsupportedFormatError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUnsupportedFormat,
		Message:  fmt.Sprintf("サポートされていないファイル形式です: %s", reason),
		Category: "content",
		Action:   "PDFファイルのみアップロードできます。",
	}
}

// NewExtractionError はPDFのテキスト抽出に失敗した場合のエラーを生成する。
// causeには原因を含めるが、保存先パスなどの内部情報は含めないこと。
func NewExtractionError(cause string) *APIError {
	return &APIError{
		Code:     ErrCodeExtractionFailed,
		Message:  fmt.Sprintf("PDFの読み取りに失敗しました: %s", cause),
		Category: "content",
		Action:   "ファイルが破損していないか確認してください。",
	}
}

// NewConflictError は一意であるべき値の重複エラーを生成する。
func NewConflictError(field string) *APIError {
	return &APIError{
		Code:     ErrCodeConflict,
		Message:  fmt.Sprintf("%s already exists", field),
		Category: "auth",
		Action:   "別の値を指定してください。",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// ユーザー名とパスワードのどちらが誤っているかは区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid credentials",
		Category: "auth",
		Action:   "ユーザー名とパスワードを確認してください。",
	}
}

// NewModelNotConfiguredError はテキストモデルが設定されていない場合のエラーを生成する。
func NewModelNotConfiguredError() *APIError {
	return &APIError{
		Code:     ErrCodeModelNotConfigured,
		Message:  "テキストモデルが設定されていません。",
		Category: "model",
		Action:   "管理者に問い合わせてください。",
	}
}

// NewModelUnavailableError はテキストモデル呼び出しの失敗エラーを生成する。
func NewModelUnavailableError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeModelUnavailable,
		Message:  fmt.Sprintf("テキストモデルの呼び出しに失敗しました: %s", reason),
		Category: "model",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// CategoryPayloadTooLarge はサイズ超過を表すカテゴリ。HTTPでは413に対応する。
const CategoryPayloadTooLarge = "payload_too_large"

// NewPayloadTooLargeError はアップロードサイズ超過エラーを生成する。
// コードは検証エラーと同じで、HTTPステータスのみ413になる。
func NewPayloadTooLargeError(maxBytes int64) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("ファイルサイズが上限（%dバイト）を超えています。", maxBytes),
		Category: CategoryPayloadTooLarge,
		Action:   "より小さいファイルをアップロードしてください。",
	}
}

// NewUnauthenticatedError は有効なセッションがない場合のエラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "ログインが必要です。",
		Category: "auth",
		Action:   "ログインしてから再度お試しください。",
	}
}

// NewCSRFInvalidError はCSRFトークン検証の失敗エラーを生成する。
func NewCSRFInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "CSRFトークンの検証に失敗しました。",
		Category: "auth",
		Action:   "ページを再読み込みしてから再度お試しください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInternalError は内部エラーを生成する。原因はログにのみ記録し、レスポンスには含めない。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// HasCode はエラーチェーンに指定コードのAPIErrorが含まれるかを返す。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// IsNotFound はエラーがいずれかの未検出エラーかを返す。
func IsNotFound(err error) bool {
	return HasCode(err, ErrCodeNoteNotFound) ||
		HasCode(err, ErrCodeDocumentNotFound) ||
		HasCode(err, ErrCodeUserNotFound)
}

// IsValidation はエラーが検証エラーかを返す。
func IsValidation(err error) bool {
	return HasCode(err, ErrCodeValidation)
}
