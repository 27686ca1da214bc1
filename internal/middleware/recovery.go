package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
)

// PanicRecorder はハンドラーで回復したpanicの発生を記録する。
type PanicRecorder interface {
	RecordPanic()
}

// NewRecoveryMiddleware はハンドラー内のpanicを回復し、500の統一エラーを返すミドルウェアを生成する。
// http.ErrAbortHandlerは接続を中断させるためそのまま再panicする。recorderはnilでもよい。
func NewRecoveryMiddleware(recorder PanicRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}

				if recorder != nil {
					recorder.RecordPanic()
				}
				slog.Error("panic recovered",
					slog.Any("panic", rec),
					slog.String("method", r.Method),
					slog.String("path", r.URL.Path),
					slog.String("stack", string(debug.Stack())),
				)
				WriteInternalServerError(w)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
