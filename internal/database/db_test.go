package database

import (
	"context"
	"errors"
	"testing"
	"time"
)

// TestOpen_ReturnsDBForAnyURL はsql.Openが接続を試行しないため、
// 不正なURLでもDBオブジェクトが返ることを検証する。
func TestOpen_ReturnsDBForAnyURL(t *testing.T) {
	db, err := Open("postgres://invalid")
	if err != nil {
		t.Fatalf("Open returned unexpected error: %v", err)
	}
	if db == nil {
		t.Fatal("expected non-nil db")
	}
	defer db.Close()
}

// --- WaitForConnection ---

type fakePinger struct {
	failures int // 先頭から失敗させる回数
	calls    int
}

func (p *fakePinger) PingContext(ctx context.Context) error {
	p.calls++
	if p.calls <= p.failures {
		return errors.New("connection refused")
	}
	return nil
}

func TestWaitForConnection_SucceedsAfterRetries(t *testing.T) {
	p := &fakePinger{failures: 2}

	err := WaitForConnection(context.Background(), p, RetryConfig{Attempts: 5, Interval: time.Millisecond})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if p.calls != 3 {
		t.Errorf("calls = %d, want 3", p.calls)
	}
}

func TestWaitForConnection_GivesUpAfterAttempts(t *testing.T) {
	p := &fakePinger{failures: 10}

	err := WaitForConnection(context.Background(), p, RetryConfig{Attempts: 3, Interval: time.Millisecond})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if p.calls != 3 {
		t.Errorf("calls = %d, want 3", p.calls)
	}
}

func TestWaitForConnection_ZeroAttemptsTriesOnce(t *testing.T) {
	p := &fakePinger{}

	if err := WaitForConnection(context.Background(), p, RetryConfig{}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if p.calls != 1 {
		t.Errorf("calls = %d, want 1", p.calls)
	}
}

func TestWaitForConnection_StopsOnContextCancel(t *testing.T) {
	p := &fakePinger{failures: 10}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WaitForConnection(ctx, p, RetryConfig{Attempts: 5, Interval: time.Hour})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
