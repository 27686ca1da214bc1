package model

import "time"

// ノートのタイトル・本文の長さ制約（文字数）。
const (
	NoteTitleMinLength   = 3
	NoteTitleMaxLength   = 100
	NoteContentMinLength = 5
	NoteContentMaxLength = 2000
)

// Note はユーザーが作成したノートを表す。
// UserIDは作成時に認証済みユーザーで確定し、以後変更されない。
type Note struct {
	ID        string
	UserID    string
	Title     string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}
