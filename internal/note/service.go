// Package note はノート管理のドメインロジックを提供する。
// 全ての操作は認証済みユーザーのIDでスコープされ、他ユーザーのノートには到達しない。
package note

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/securenotes/internal/model"
	"github.com/hitoshi/securenotes/internal/repository"
	"github.com/hitoshi/securenotes/internal/security"
)

// CreateInput はノート作成の入力。所有者はここに含めず、呼び出し元の認証情報で決まる。
type CreateInput struct {
	Title   string
	Content string
}

// MetricsRecorder はノート操作の件数を記録するインターフェース。
type MetricsRecorder interface {
	RecordNoteCreated()
	RecordNoteDeleted()
}

// Service はノートの一覧取得・作成・削除のサービス層。
type Service struct {
	repo      repository.NoteRepository
	sanitizer security.ContentSanitizerService
	metrics   MetricsRecorder
	now       func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。metricsはnilでもよい。
func NewService(
	repo repository.NoteRepository,
	sanitizer security.ContentSanitizerService,
	metrics MetricsRecorder,
) *Service {
	return &Service{
		repo:      repo,
		sanitizer: sanitizer,
		metrics:   metrics,
		now:       time.Now,
	}
}

// List はユーザーのノートを作成日時の降順で返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Note, error) {
	notes, err := s.repo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ノート一覧の取得に失敗しました: %w", err)
	}
	return notes, nil
}

// Create はサニタイズと検証を行い、userIDを所有者としてノートを作成する。
func (s *Service) Create(ctx context.Context, userID string, input CreateInput) (*model.Note, error) {
	title := s.sanitizer.Sanitize(input.Title)
	content := s.sanitizer.Sanitize(input.Content)

	if apiErr := validateNote(title, content); apiErr != nil {
		return nil, apiErr
	}

	now := s.now().UTC()
	note := &model.Note{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, note); err != nil {
		return nil, fmt.Errorf("ノートの作成に失敗しました: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordNoteCreated()
	}
	return note, nil
}

// Delete はuserIDが所有するノートを削除する。
// ノートが存在しない場合と他ユーザーのノートの場合は区別せずNoteNotFoundを返す。
func (s *Service) Delete(ctx context.Context, userID, noteID string) error {
	deleted, err := s.repo.DeleteByIDAndUserID(ctx, noteID, userID)
	if err != nil {
		return fmt.Errorf("ノートの削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewNoteNotFoundError()
	}

	if s.metrics != nil {
		s.metrics.RecordNoteDeleted()
	}
	return nil
}

// validateNote はサニタイズ済みのタイトルと本文の長さを文字数で検証する。
func validateNote(title, content string) *model.APIError {
	var fields []model.FieldError

	if n := utf8.RuneCountInString(title); n < model.NoteTitleMinLength || n > model.NoteTitleMaxLength {
		fields = append(fields, model.FieldError{
			Field: "title",
			Message: fmt.Sprintf("Title must be between %d and %d characters",
				model.NoteTitleMinLength, model.NoteTitleMaxLength),
		})
	}

	if n := utf8.RuneCountInString(content); n < model.NoteContentMinLength || n > model.NoteContentMaxLength {
		fields = append(fields, model.FieldError{
			Field: "content",
			Message: fmt.Sprintf("Content must be between %d and %d characters",
				model.NoteContentMinLength, model.NoteContentMaxLength),
		})
	}

	if len(fields) > 0 {
		return model.NewValidationError(fields...)
	}
	return nil
}
