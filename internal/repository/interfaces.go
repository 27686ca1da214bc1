// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"

	"github.com/hitoshi/securenotes/internal/model"
)

// 一意制約違反を表すエラー。書き込み時にDBのユニーク制約で検出する。
var (
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrDuplicateUsername = errors.New("username already taken")
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。
	// email/usernameが重複する場合はErrDuplicateEmail/ErrDuplicateUsernameを返す。
	Create(ctx context.Context, user *model.User) error

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail は正規化済みemailでユーザーを取得する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// UpdatePasswordHash はパスワードハッシュを置き換える。
	// ユーザーが存在しない場合はfalseを返す。
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) (bool, error)
}

// NoteRepository はノートデータの永続化インターフェース。
// すべての操作は所有者のユーザーIDでスコープされる。
type NoteRepository interface {
	// Create はノートを作成する。
	Create(ctx context.Context, note *model.Note) error

	// ListByUserID はユーザーのノート一覧をcreated_at降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Note, error)

	// DeleteByIDAndUserID はidとuser_idの両方に一致するノートを1文で削除する。
	// 該当するノートがない場合（存在しない・他ユーザーの所有）はfalseを返す。
	DeleteByIDAndUserID(ctx context.Context, id, userID string) (bool, error)
}
