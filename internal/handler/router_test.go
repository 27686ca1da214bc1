package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/securenotes/internal/auth"
	"github.com/hitoshi/securenotes/internal/middleware"
	"github.com/hitoshi/securenotes/internal/model"
)

type stubPinger struct {
	err error
}

func (p *stubPinger) PingContext(ctx context.Context) error {
	return p.err
}

type stubUserFinder struct{}

func (stubUserFinder) FindByID(ctx context.Context, id string) (*model.User, error) {
	return &model.User{ID: id, Username: "alice", Email: "alice@x.com"}, nil
}

// newTestRouter はモックサービスで構成したルーターを返す。
func newTestRouter(t *testing.T, modify func(*RouterDeps)) http.Handler {
	t.Helper()

	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
	t.Cleanup(rl.Stop)

	deps := &RouterDeps{
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		TokenVerifier:     auth.NewTokenIssuer([]byte("router-secret"), time.Hour),
		UserFinder:        stubUserFinder{},
		AuthService:       &mockAuthService{},
		NoteService: &mockNoteService{
			listFn: func(ctx context.Context, userID string) ([]*model.Note, error) {
				return []*model.Note{}, nil
			},
		},
	}
	if modify != nil {
		modify(deps)
	}
	return NewRouter(deps)
}

func issueTestToken(t *testing.T, userID string) string {
	t.Helper()
	tok, err := auth.NewTokenIssuer([]byte("router-secret"), time.Hour).Issue(userID)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return tok
}

func TestRouter_Root_ReturnsRunningMessage(t *testing.T) {
	router := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if w.Body.String() != "Secure Notes API is running..." {
		t.Errorf("body = %q", w.Body.String())
	}
}

func TestRouter_Health(t *testing.T) {
	tests := []struct {
		name       string
		checker    HealthChecker
		wantStatus int
		wantBody   string
	}{
		{"チェッカーなし", nil, http.StatusOK, "ok"},
		{"DB正常", &stubPinger{}, http.StatusOK, "ok"},
		{"DB停止", &stubPinger{err: errors.New("connection refused")}, http.StatusServiceUnavailable, "unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(t, func(d *RouterDeps) { d.HealthChecker = tt.checker })

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if w.Body.String() != tt.wantBody {
				t.Errorf("body = %q, want %q", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestRouter_MetricsDisabledWithoutGatherer(t *testing.T) {
	router := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRouter_CSRFTokenEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["csrfToken"] == "" {
		t.Error("expected csrfToken in response")
	}
}

func TestRouter_SecurityHeadersOnEveryResponse(t *testing.T) {
	router := newTestRouter(t, nil)

	for _, path := range []string{"/", "/api/notes", "/does-not-exist"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

		if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
			t.Errorf("%s: X-Content-Type-Options = %q", path, got)
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
			t.Errorf("%s: Access-Control-Allow-Origin = %q", path, got)
		}
	}
}

func TestRouter_PreflightBypassesAuth(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/notes", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNoContent)
	}
}

func TestRouter_ValidTokenReachesNotes(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)
	req.Header.Set("Authorization", "Bearer "+issueTestToken(t, "user-1"))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
	}
}

func TestRouter_AuthEndpointsAreRateLimitedPerIP(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     10,
		GeneralBurst:    10,
		AuthRate:        0.001,
		AuthBurst:       2,
		CleanupInterval: time.Minute,
	})
	t.Cleanup(rl.Stop)

	router := newTestRouter(t, func(d *RouterDeps) {
		d.RateLimiter = rl
		d.AuthService = &mockAuthService{
			loginFn: func(ctx context.Context, email, password string) (string, error) {
				return "", model.NewInvalidCredentialsError()
			},
		}
	})

	login := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login",
			strings.NewReader(`{"email":"alice@x.com","password":"guess"}`))
		req.RemoteAddr = "203.0.113.7:51000"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < 2; i++ {
		if code := login(); code != http.StatusUnauthorized {
			t.Fatalf("attempt %d: status = %d, want %d", i+1, code, http.StatusUnauthorized)
		}
	}
	if code := login(); code != http.StatusTooManyRequests {
		t.Errorf("attempt 3: status = %d, want %d", code, http.StatusTooManyRequests)
	}
}

func TestRouter_CSRFEnabled_RejectsMutationWithoutToken(t *testing.T) {
	router := newTestRouter(t, func(d *RouterDeps) {
		d.CSRFEnabled = true
		d.NoteService = &mockNoteService{
			deleteFn: func(ctx context.Context, userID, noteID string) error {
				t.Fatal("delete should not be reached")
				return nil
			},
		}
	})

	req := httptest.NewRequest(http.MethodDelete, "/api/notes/n1", nil)
	req.Header.Set("Authorization", "Bearer "+issueTestToken(t, "user-1"))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if body := decodeErrorBody(t, w); body.Code != model.ErrCodeCSRFInvalid {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeCSRFInvalid)
	}
}

func TestRouter_CSRFEnabled_AcceptsMatchingToken(t *testing.T) {
	router := newTestRouter(t, func(d *RouterDeps) {
		d.CSRFEnabled = true
		d.NoteService = &mockNoteService{
			deleteFn: func(ctx context.Context, userID, noteID string) error { return nil },
		}
	})

	req := httptest.NewRequest(http.MethodDelete, "/api/notes/n1", nil)
	req.Header.Set("Authorization", "Bearer "+issueTestToken(t, "user-1"))
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "tok-123"})
	req.Header.Set("X-CSRF-Token", "tok-123")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
	}
}
