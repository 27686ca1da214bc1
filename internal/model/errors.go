// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"strings"
)

// FieldError はフィールド単位のバリデーションエラーを表す。
type FieldError struct {
	Field   string
	Message string
}

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string       // エラーコード
	Message  string       // エラーメッセージ
	Category string       // カテゴリ: auth, validation, note, system
	Action   string       // ユーザー向け対処方法
	Fields   []FieldError // バリデーションエラーの詳細（validationのみ）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Field
	}
	return fmt.Sprintf("[%s] %s (%s)", e.Code, e.Message, strings.Join(names, ", "))
}

// HasField は指定フィールドのエラーを含むかどうかを返す。
func (e *APIError) HasField(field string) bool {
	for _, f := range e.Fields {
		if f.Field == field {
			return true
		}
	}
	return false
}

// 定義済みエラーコード
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeDuplicateEmail     = "DUPLICATE_EMAIL"
	ErrCodeDuplicateUsername  = "DUPLICATE_USERNAME"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeMissingToken       = "MISSING_TOKEN"
	ErrCodeMalformedToken     = "MALFORMED_TOKEN"
	ErrCodeTokenExpired       = "TOKEN_EXPIRED"
	ErrCodeInvalidToken       = "INVALID_TOKEN"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeNoteNotFound       = "NOTE_NOT_FOUND"
	ErrCodeCSRFInvalid        = "CSRF_INVALID"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// エラーカテゴリ
const (
	CategoryAuth       = "auth"
	CategoryValidation = "validation"
	CategoryNote       = "note"
	CategorySystem     = "system"
)

// NewValidationError はフィールド単位のバリデーションエラーを生成する。
func NewValidationError(fields ...FieldError) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  "Validation failed",
		Category: CategoryValidation,
		Action:   "Fix the highlighted fields and try again.",
		Fields:   fields,
	}
}

// NewInvalidRequestError はリクエストボディの解析失敗エラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "Invalid request body",
		Category: CategoryValidation,
		Action:   "Send a valid JSON body.",
	}
}

// NewDuplicateEmailError は登録済みメールアドレスでの登録エラーを生成する。
func NewDuplicateEmailError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateEmail,
		Message:  "User already exists",
		Category: CategoryValidation,
		Action:   "Log in with the existing account or use another email address.",
		Fields:   []FieldError{{Field: "email", Message: "Email is already registered"}},
	}
}

// NewDuplicateUsernameError は登録済みユーザー名での登録エラーを生成する。
func NewDuplicateUsernameError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateUsername,
		Message:  "Username is already taken",
		Category: CategoryValidation,
		Action:   "Choose another username.",
		Fields:   []FieldError{{Field: "username", Message: "Username is already taken"}},
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// メールアドレス未登録とパスワード不一致を区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid credentials",
		Category: CategoryAuth,
		Action:   "Check your email and password.",
	}
}

// NewMissingTokenError はAuthorizationヘッダー欠落エラーを生成する。
func NewMissingTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingToken,
		Message:  "Access denied. No token provided.",
		Category: CategoryAuth,
		Action:   "Log in and send the token as 'Authorization: Bearer <token>'.",
	}
}

// NewMalformedTokenError はBearerトークン形式不正エラーを生成する。
func NewMalformedTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeMalformedToken,
		Message:  "Invalid token format.",
		Category: CategoryAuth,
		Action:   "Send the token as 'Authorization: Bearer <token>'.",
	}
}

// NewTokenExpiredError はトークン期限切れエラーを生成する。
func NewTokenExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeTokenExpired,
		Message:  "Session expired. Please log in again.",
		Category: CategoryAuth,
		Action:   "Log in again.",
	}
}

// NewInvalidTokenError は無効トークンエラーを生成する。
func NewInvalidTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidToken,
		Message:  "Invalid token. Authorization denied.",
		Category: CategoryAuth,
		Action:   "Log in again.",
	}
}

// NewUserNotFoundError はトークンのユーザーが存在しない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found. Authorization denied.",
		Category: CategoryAuth,
		Action:   "Log in again.",
	}
}

// NewUnauthorizedError はコンテキストに認証情報がない場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Authentication required.",
		Category: CategoryAuth,
		Action:   "Log in.",
	}
}

// NewNoteNotFoundError はノート未検出エラーを生成する。
// 存在しない場合と他ユーザーのノートの場合を区別しない。
func NewNoteNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeNoteNotFound,
		Message:  "Note not found",
		Category: CategoryNote,
		Action:   "Reload your notes.",
	}
}

// NewInternalError は内部エラーを生成する。詳細はログのみに記録する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Internal server error.",
		Category: CategorySystem,
		Action:   "Please try again later.",
	}
}

// NewCSRFInvalidError はCSRFトークン検証失敗のエラーを生成する。
func NewCSRFInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeCSRFInvalid,
		Message:  "CSRF token validation failed.",
		Category: CategoryAuth,
		Action:   "Reload the page and try again.",
	}
}

// NewRateLimitedError はレート制限超過のエラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Too many requests. Please try again later.",
		Category: CategorySystem,
		Action:   "Wait a moment before retrying.",
	}
}
