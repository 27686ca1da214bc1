// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/securenotes/internal/auth"
	"github.com/hitoshi/securenotes/internal/model"
)

const bearerPrefix = "Bearer "

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
	userIDContextKey = contextKey("user_id")
	// userContextKey はリクエストコンテキストに認証済みユーザーを格納するためのキー。
	userContextKey = contextKey("user")
)

// TokenVerifier はセッショントークンの検証に必要なインターフェース。
// 成功時はトークンのサブジェクト（ユーザーID）を返す。
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// UserFinder はユーザーの検索に必要なインターフェース。
// repository.UserRepositoryの部分集合として定義する。
type UserFinder interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
}

// AuthFailureRecorder は認証失敗を理由別に記録するインターフェース。
type AuthFailureRecorder interface {
	RecordAuthFailure(reason string)
}

// authState はパイプラインの各ステージ間で受け渡す認証の途中状態。
type authState struct {
	token  string
	userID string
	user   *model.User
	ctx    context.Context
}

// authStage は認証パイプラインの1段階。
// *model.APIErrorを返すとその内容で401を応答し、それ以外のエラーは500になる。
type authStage func(r *http.Request, st *authState) error

// Authenticator はBearerトークン認証を固定順のステージで実行する。
// extractBearer → verifyToken → resolveUser → attachIdentity
type Authenticator struct {
	verifier TokenVerifier
	users    UserFinder
	metrics  AuthFailureRecorder
	stages   []authStage
}

// NewAuthenticator はAuthenticatorを生成する。metricsはnilでもよい。
func NewAuthenticator(verifier TokenVerifier, users UserFinder, metrics AuthFailureRecorder) *Authenticator {
	a := &Authenticator{
		verifier: verifier,
		users:    users,
		metrics:  metrics,
	}
	a.stages = []authStage{
		extractBearer,
		a.verifyToken,
		a.resolveUser,
		attachIdentity,
	}
	return a
}

// NewAuthMiddleware はAuthorizationヘッダーのBearerトークンを検証し、
// 認証済みユーザーをリクエストコンテキストに注入するミドルウェアを返す。
func NewAuthMiddleware(verifier TokenVerifier, users UserFinder, metrics AuthFailureRecorder) func(next http.Handler) http.Handler {
	return NewAuthenticator(verifier, users, metrics).Middleware
}

// Middleware はステージを順に実行し、最初の失敗で応答を打ち切る。
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := &authState{ctx: r.Context()}

		for _, stage := range a.stages {
			if err := stage(r, st); err != nil {
				a.reject(w, r, err)
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(st.ctx))
	})
}

// reject はステージのエラーを応答に変換する。
func (a *Authenticator) reject(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		if a.metrics != nil {
			a.metrics.RecordAuthFailure(apiErr.Code)
		}
		WriteErrorResponse(w, http.StatusUnauthorized, apiErr)
		return
	}

	slog.Error("authentication failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("error", err.Error()),
	)
	WriteInternalServerError(w)
}

// extractBearer はAuthorizationヘッダーからトークンを取り出す。
func extractBearer(r *http.Request, st *authState) error {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, bearerPrefix) {
		return model.NewMissingTokenError()
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if token == "" {
		return model.NewMalformedTokenError()
	}

	st.token = token
	return nil
}

// verifyToken はトークンの署名・有効期限・サブジェクトを検証する。
func (a *Authenticator) verifyToken(r *http.Request, st *authState) error {
	userID, err := a.verifier.Verify(st.token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return model.NewTokenExpiredError()
		}
		slog.Debug("token verification failed", slog.String("error", err.Error()))
		return model.NewInvalidTokenError()
	}

	st.userID = userID
	return nil
}

// resolveUser はトークンのサブジェクトを既存ユーザーに解決する。
func (a *Authenticator) resolveUser(r *http.Request, st *authState) error {
	user, err := a.users.FindByID(r.Context(), st.userID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	st.user = user.Public()
	return nil
}

// attachIdentity はパスワードハッシュを除いたユーザーとIDをコンテキストに注入する。
func attachIdentity(r *http.Request, st *authState) error {
	st.ctx = ContextWithUser(st.ctx, st.user)
	return nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// UserFromContext はリクエストコンテキストから認証済みユーザーを取得する。
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(userContextKey).(*model.User)
	return user, ok && user != nil
}

// ContextWithUser はコンテキストにユーザーとそのIDを注入する。
func ContextWithUser(ctx context.Context, user *model.User) context.Context {
	ctx = context.WithValue(ctx, userContextKey, user)
	ctx = ContextWithUserID(ctx, user.ID)
	return ctx
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	if info := requestInfoFromContext(ctx); info != nil {
		info.userID = userID
	}
	return context.WithValue(ctx, userIDContextKey, userID)
}
