// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// ドメインエラー。呼び出し側は errors.Is で判定する。
var (
	// ErrUnknownValue は外部表記が対応表に存在しないことを示す。
	ErrUnknownValue = errors.New("unknown value")
	// ErrFeeNotFound は料金表に該当する料金が存在しないことを示す。
	ErrFeeNotFound = errors.New("fee not found")
	// ErrStructureNotFound は組織が見つからないことを示す。
	ErrStructureNotFound = errors.New("structure not found")
	// ErrNoUsableEmail は会員に利用可能なメールアドレスがないことを示す。
	ErrNoUsableEmail = errors.New("no usable email")
	// ErrAmbiguousMatch は氏名と生年月日による初回紐付けで複数のアカウントが一致したことを示す。
	ErrAmbiguousMatch = errors.New("ambiguous account match")
	// ErrVersionConflict は楽観的更新のバージョンが一致しなかったことを示す。
	ErrVersionConflict = errors.New("version conflict")
	// ErrInconsistentMetadata はライセンス番号と外部ユーザーIDの一方だけが設定されていることを示す。
	ErrInconsistentMetadata = errors.New("inconsistent member metadata")
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, pricing, sync, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnknownValue      = "UNKNOWN_VALUE"
	ErrCodeInvalidParameter  = "INVALID_PARAMETER"
	ErrCodeFeeNotFound       = "FEE_NOT_FOUND"
	ErrCodeStructureNotFound = "STRUCTURE_NOT_FOUND"
	ErrCodeSyncFailed        = "SYNC_FAILED"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeRateLimited       = "RATE_LIMITED"
	ErrCodeSyncInProgress    = "SYNC_IN_PROGRESS"
)

// NewUnknownValueError は未知の表記が指定された場合のエラーを生成する。
func NewUnknownValueError(param, value string) *APIError {
	return &APIError{
		Code:     ErrCodeUnknownValue,
		Message:  fmt.Sprintf("%s に未知の値が指定されました: %s", param, value),
		Category: "validation",
		Action:   "指定可能な値を確認してください。",
	}
}

// NewInvalidParameterError はパラメータの形式が不正な場合のエラーを生成する。
func NewInvalidParameterError(param, reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidParameter,
		Message:  fmt.Sprintf("パラメータ %s が不正です: %s", param, reason),
		Category: "validation",
		Action:   "リクエストパラメータを確認してください。",
	}
}

// NewFeeNotFoundError は料金表に該当する料金がない場合のエラーを生成する。
func NewFeeNotFoundError(detail string) *APIError {
	return &APIError{
		Code:     ErrCodeFeeNotFound,
		Message:  fmt.Sprintf("料金表に該当する料金が見つかりません: %s", detail),
		Category: "pricing",
		Action:   "シーズンとライセンス種別の組み合わせを確認してください。",
	}
}

// NewStructureNotFoundError はクラブが見つからない場合のエラーを生成する。
func NewStructureNotFoundError(structureID int) *APIError {
	return &APIError{
		Code:     ErrCodeStructureNotFound,
		Message:  fmt.Sprintf("指定されたクラブが見つかりません: %d", structureID),
		Category: "pricing",
		Action:   "クラブIDを確認してください。",
	}
}

// NewSyncFailedError は同期処理が中断された場合のエラーを生成する。
func NewSyncFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeSyncFailed,
		Message:  "会員データの同期に失敗しました。",
		Category: "sync",
		Action:   "しばらく待ってから再度実行してください。",
	}
}

// NewUnauthorizedError は認証が必要な場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "管理トークンを指定してください。",
	}
}

// NewRateLimitedError はリクエスト数が上限を超えた場合のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエスト数が上限を超えました。",
		Category: "system",
		Action:   "Retry-Afterヘッダーの秒数だけ待ってから再度お試しください。",
	}
}

// NewSyncInProgressError は同期処理が既に実行中の場合のエラーを生成する。
func NewSyncInProgressError() *APIError {
	return &APIError{
		Code:     ErrCodeSyncInProgress,
		Message:  "会員データの同期は既に実行中です。",
		Category: "sync",
		Action:   "実行中の同期が完了してから再度実行してください。",
	}
}
