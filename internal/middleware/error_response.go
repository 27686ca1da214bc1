package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/securenotes/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string               `json:"code"`
	Message  string               `json:"message"`
	Category string               `json:"category"`
	Action   string               `json:"action"`
	Errors   []FieldErrorResponse `json:"errors,omitempty"`
}

// FieldErrorResponse はバリデーションエラーのフィールド単位の詳細。
type FieldErrorResponse struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	body := ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	}
	for _, f := range apiErr.Fields {
		body.Errors = append(body.Errors, FieldErrorResponse{Field: f.Field, Message: f.Message})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
