package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
)

// PostgresUserRepoはUserRepositoryインターフェースを満たすことを検証
func TestPostgresUserRepo_ImplementsInterface(t *testing.T) {
	var _ UserRepository = (*PostgresUserRepo)(nil)
}

// PostgresNoteRepoはNoteRepositoryインターフェースを満たすことを検証
func TestPostgresNoteRepo_ImplementsInterface(t *testing.T) {
	var _ NoteRepository = (*PostgresNoteRepo)(nil)
}

func TestNewPostgresUserRepo_Initializes(t *testing.T) {
	if repo := NewPostgresUserRepo(nil); repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// TestPostgresUserRepo_FindByID_MalformedID はUUIDでないIDでDBに問い合わせずnilを返すことを検証する。
func TestPostgresUserRepo_FindByID_MalformedID(t *testing.T) {
	repo := NewPostgresUserRepo(nil)

	user, err := repo.FindByID(context.Background(), "not-a-uuid")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if user != nil {
		t.Errorf("expected nil user, got %+v", user)
	}
}

func TestTranslateUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "email制約違反はErrDuplicateEmail",
			err:  &pq.Error{Code: "23505", Constraint: usersEmailConstraint},
			want: ErrDuplicateEmail,
		},
		{
			name: "username制約違反はErrDuplicateUsername",
			err:  &pq.Error{Code: "23505", Constraint: usersUsernameConstraint},
			want: ErrDuplicateUsername,
		},
		{
			name: "ラップされていても検出する",
			err:  fmt.Errorf("exec: %w", &pq.Error{Code: "23505", Constraint: usersEmailConstraint}),
			want: ErrDuplicateEmail,
		},
		{
			name: "一意制約違反以外はnil",
			err:  &pq.Error{Code: "23503", Constraint: "notes_user_id_fkey"},
			want: nil,
		},
		{
			name: "pq.Error以外はnil",
			err:  errors.New("connection reset"),
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translateUniqueViolation(tt.err)
			if tt.want == nil {
				if got != nil {
					t.Errorf("translateUniqueViolation() = %v, want nil", got)
				}
				return
			}
			if !errors.Is(got, tt.want) {
				t.Errorf("translateUniqueViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestTranslateUniqueViolation_UnknownConstraint は未知の制約名でもエラーを返すことを検証する。
func TestTranslateUniqueViolation_UnknownConstraint(t *testing.T) {
	err := translateUniqueViolation(&pq.Error{Code: "23505", Constraint: "other_key"})
	if err == nil {
		t.Fatal("expected non-nil error for unknown unique constraint")
	}
	if errors.Is(err, ErrDuplicateEmail) || errors.Is(err, ErrDuplicateUsername) {
		t.Errorf("unknown constraint should not map to a known sentinel: %v", err)
	}
}
