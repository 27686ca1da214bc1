package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/securenotes/internal/auth"
	"github.com/hitoshi/securenotes/internal/model"
)

// --- モック定義 ---

type mockTokenVerifier struct {
	verifyFn func(token string) (string, error)
}

func (m *mockTokenVerifier) Verify(token string) (string, error) {
	return m.verifyFn(token)
}

type mockUserFinder struct {
	findByIDFn func(ctx context.Context, id string) (*model.User, error)
}

func (m *mockUserFinder) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

type recordingAuthFailures struct {
	reasons []string
}

func (r *recordingAuthFailures) RecordAuthFailure(reason string) {
	r.reasons = append(r.reasons, reason)
}

// staticVerifier は固定トークン "good-token" のみを user-123 として受け付ける。
func staticVerifier() *mockTokenVerifier {
	return &mockTokenVerifier{
		verifyFn: func(token string) (string, error) {
			if token == "good-token" {
				return "user-123", nil
			}
			return "", auth.ErrTokenBadSignature
		},
	}
}

func aliceFinder() *mockUserFinder {
	return &mockUserFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			if id == "user-123" {
				return &model.User{
					ID:           "user-123",
					Username:     "alice",
					Email:        "alice@x.com",
					PasswordHash: "$2a$10$hash",
				}, nil
			}
			return nil, nil
		},
	}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponseBody {
	t.Helper()
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

// --- テスト ---

func TestAuthMiddleware_ValidToken_InjectsUser(t *testing.T) {
	mw := NewAuthMiddleware(staticVerifier(), aliceFinder(), nil)

	var capturedUserID string
	var capturedUser *model.User
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := UserIDFromContext(r.Context())
		if err != nil {
			t.Errorf("expected no error, got %v", err)
		}
		capturedUserID = userID
		capturedUser, _ = UserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if capturedUserID != "user-123" {
		t.Errorf("userID = %q, want %q", capturedUserID, "user-123")
	}
	if capturedUser == nil || capturedUser.Username != "alice" {
		t.Fatalf("expected alice in context, got %+v", capturedUser)
	}
	if capturedUser.PasswordHash != "" {
		t.Error("user in context must not carry the password hash")
	}
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	tests := []struct {
		name        string
		header      string
		wantCode    string
		wantMessage string
	}{
		{
			name:        "ヘッダーなし",
			header:      "",
			wantCode:    model.ErrCodeMissingToken,
			wantMessage: "Access denied. No token provided.",
		},
		{
			name:        "Bearer以外のスキーム",
			header:      "Basic dXNlcjpwYXNz",
			wantCode:    model.ErrCodeMissingToken,
			wantMessage: "Access denied. No token provided.",
		},
		{
			name:        "小文字のbearer",
			header:      "bearer good-token",
			wantCode:    model.ErrCodeMissingToken,
			wantMessage: "Access denied. No token provided.",
		},
		{
			name:        "トークンが空",
			header:      "Bearer    ",
			wantCode:    model.ErrCodeMalformedToken,
			wantMessage: "Invalid token format.",
		},
		{
			name:        "署名不正",
			header:      "Bearer forged-token",
			wantCode:    model.ErrCodeInvalidToken,
			wantMessage: "Invalid token. Authorization denied.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			failures := &recordingAuthFailures{}
			mw := NewAuthMiddleware(staticVerifier(), aliceFinder(), failures)

			handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Result().StatusCode != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
			}
			body := decodeError(t, w)
			if body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
			if body.Message != tt.wantMessage {
				t.Errorf("message = %q, want %q", body.Message, tt.wantMessage)
			}
			if len(failures.reasons) != 1 || failures.reasons[0] != tt.wantCode {
				t.Errorf("recorded failures = %v, want [%s]", failures.reasons, tt.wantCode)
			}
		})
	}
}

// TestAuthMiddleware_ExpiredToken は期限切れトークンが専用のエラーで拒否されることを検証する。
func TestAuthMiddleware_ExpiredToken(t *testing.T) {
	now := time.Now()
	issuer := auth.NewTokenIssuer([]byte("secret"), time.Hour, auth.WithClock(func() time.Time { return now }))
	tok, err := issuer.Issue("user-123")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	// 1時間と1秒後の時計で検証する
	later := auth.NewTokenIssuer([]byte("secret"), time.Hour,
		auth.WithClock(func() time.Time { return now.Add(time.Hour + time.Second) }))
	mw := NewAuthMiddleware(later, aliceFinder(), nil)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
	body := decodeError(t, w)
	if body.Code != model.ErrCodeTokenExpired {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeTokenExpired)
	}
	if body.Message != "Session expired. Please log in again." {
		t.Errorf("message = %q", body.Message)
	}
}

// TestAuthMiddleware_RealIssuer_RoundTrip は実際のTokenIssuerで発行したトークンが通ることを検証する。
func TestAuthMiddleware_RealIssuer_RoundTrip(t *testing.T) {
	issuer := auth.NewTokenIssuer([]byte("secret"), time.Hour)
	tok, err := issuer.Issue("user-123")
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}

	mw := NewAuthMiddleware(issuer, aliceFinder(), nil)
	handler := mw(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
}

// TestAuthMiddleware_DeletedUser は有効なトークンでもユーザーが存在しなければ拒否されることを検証する。
func TestAuthMiddleware_DeletedUser(t *testing.T) {
	mw := NewAuthMiddleware(staticVerifier(), &mockUserFinder{}, nil)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
	body := decodeError(t, w)
	if body.Code != model.ErrCodeUserNotFound {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeUserNotFound)
	}
	if body.Message != "User not found. Authorization denied." {
		t.Errorf("message = %q", body.Message)
	}
}

// TestAuthMiddleware_StoreFailure_Returns500 はユーザー検索の障害が500になることを検証する。
func TestAuthMiddleware_StoreFailure_Returns500(t *testing.T) {
	failures := &recordingAuthFailures{}
	finder := &mockUserFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.User, error) {
			return nil, errors.New("connection refused")
		},
	}
	mw := NewAuthMiddleware(staticVerifier(), finder, failures)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusInternalServerError)
	}
	body := decodeError(t, w)
	if body.Code != model.ErrCodeInternal {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInternal)
	}
	if len(failures.reasons) != 0 {
		t.Errorf("infrastructure failures must not be recorded as auth failures, got %v", failures.reasons)
	}
}

// TestAuthenticator_StagesRunInOrder はステージが固定順で実行され、失敗で打ち切られることを検証する。
func TestAuthenticator_StagesRunInOrder(t *testing.T) {
	var calls []string
	a := &Authenticator{}
	a.stages = []authStage{
		func(r *http.Request, st *authState) error { calls = append(calls, "first"); return nil },
		func(r *http.Request, st *authState) error {
			calls = append(calls, "second")
			return model.NewInvalidTokenError()
		},
		func(r *http.Request, st *authState) error { calls = append(calls, "third"); return nil },
	}

	handler := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Errorf("calls = %v, want [first second]", calls)
	}
}

func TestUserIDFromContext_Empty(t *testing.T) {
	if _, err := UserIDFromContext(context.Background()); err == nil {
		t.Error("expected error for context without user ID")
	}
	if _, ok := UserFromContext(context.Background()); ok {
		t.Error("expected no user in empty context")
	}
}
