// Package auth はパスワード認証、セッショントークンの発行・検証を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hitoshi/securenotes/internal/model"
	"github.com/hitoshi/securenotes/internal/repository"
)

// 登録時の入力制約。
const (
	usernameMinLength = 3
	usernameMaxLength = 20
	passwordMinLength = 6
	// bcryptは72バイトを超える入力を扱えない
	passwordMaxBytes = 72
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// MetricsRecorder は認証結果を記録するインターフェース。
type MetricsRecorder interface {
	RecordRegistration(result string)
	RecordLogin(result string)
}

// Registration は登録結果。発行済みトークンを含む。
type Registration struct {
	User  *model.User
	Token string
}

// Service はユーザー登録・ログインのビジネスロジックを提供する。
type Service struct {
	users   repository.UserRepository
	hasher  PasswordHasher
	tokens  *TokenIssuer
	metrics MetricsRecorder
	now     func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewService はServiceを生成する。metricsはnilでもよい。
func NewService(
	users repository.UserRepository,
	hasher PasswordHasher,
	tokens *TokenIssuer,
	metrics MetricsRecorder,
) *Service {
	return &Service{
		users:   users,
		hasher:  hasher,
		tokens:  tokens,
		metrics: metrics,
		now:     time.Now,
	}
}

// NormalizeEmail はメールアドレスを前後空白除去・小文字化する。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register はユーザーを登録し、セッショントークンを発行する。
// emailまたはusernameが登録済みの場合は400相当のAPIErrorを返す。
// 同時登録はDBのユニーク制約で1件のみ成功する。
func (s *Service) Register(ctx context.Context, username, email, password string) (*Registration, error) {
	username = strings.TrimSpace(username)
	email = NormalizeEmail(email)

	if apiErr := validateRegistration(username, email, password); apiErr != nil {
		s.recordRegistration("invalid")
		return nil, apiErr
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing user: %w", err)
	}
	if existing != nil {
		s.recordRegistration("duplicate")
		return nil, model.NewDuplicateEmailError()
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	user := &model.User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateEmail):
			s.recordRegistration("duplicate")
			return nil, model.NewDuplicateEmailError()
		case errors.Is(err, repository.ErrDuplicateUsername):
			s.recordRegistration("duplicate")
			return nil, model.NewDuplicateUsernameError()
		default:
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}

	slog.Info("user registered", slog.String("user_id", user.ID))
	s.recordRegistration("success")

	return &Registration{User: user.Public(), Token: token}, nil
}

// Login はemailとパスワードを照合し、セッショントークンを発行する。
// 未登録emailとパスワード不一致はどちらもInvalidCredentialsを返し、区別しない。
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	email = NormalizeEmail(email)

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("failed to find user: %w", err)
	}

	if user == nil {
		// 未登録の場合もハッシュ照合を行い、応答時間でemailの存在を推測させない
		_ = s.hasher.Compare(s.getDummyHash(), password)
		s.recordLogin("failure")
		return "", model.NewInvalidCredentialsError()
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		if !errors.Is(err, ErrPasswordMismatch) {
			slog.Error("password comparison failed",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
		}
		s.recordLogin("failure")
		return "", model.NewInvalidCredentialsError()
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", err
	}

	s.recordLogin("success")
	return token, nil
}

// ChangePassword は現在のパスワードを確認したうえでハッシュを再計算して置き換える。
// ユーザーレコードが更新されるのはこの操作のみ。
func (s *Service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	if fe := validatePassword("newPassword", newPassword); fe != nil {
		return model.NewValidationError(*fe)
	}

	if err := s.hasher.Compare(user.PasswordHash, currentPassword); err != nil {
		if !errors.Is(err, ErrPasswordMismatch) {
			return err
		}
		return model.NewValidationError(model.FieldError{
			Field:   "currentPassword",
			Message: "Current password is incorrect",
		})
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return err
	}

	updated, err := s.users.UpdatePasswordHash(ctx, userID, hash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	if !updated {
		return model.NewUserNotFoundError()
	}

	slog.Info("password changed", slog.String("user_id", userID))
	return nil
}

// CurrentUser はパスワードハッシュを除いたユーザー情報を返す。
func (s *Service) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user.Public(), nil
}

// getDummyHash は未登録email用の照合ハッシュを初回のみ生成して返す。
func (s *Service) getDummyHash() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(uuid.New().String())
		if err != nil {
			slog.Error("failed to prepare dummy hash", slog.String("error", err.Error()))
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func (s *Service) recordRegistration(result string) {
	if s.metrics != nil {
		s.metrics.RecordRegistration(result)
	}
}

func (s *Service) recordLogin(result string) {
	if s.metrics != nil {
		s.metrics.RecordLogin(result)
	}
}

// validateRegistration は登録入力を検証し、違反があればフィールド単位のエラーを返す。
func validateRegistration(username, email, password string) *model.APIError {
	var fields []model.FieldError

	if n := utf8.RuneCountInString(username); n < usernameMinLength || n > usernameMaxLength {
		fields = append(fields, model.FieldError{
			Field:   "username",
			Message: fmt.Sprintf("Username must be between %d and %d characters", usernameMinLength, usernameMaxLength),
		})
	}

	if email == "" {
		fields = append(fields, model.FieldError{Field: "email", Message: "Email is required"})
	} else if !emailPattern.MatchString(email) {
		fields = append(fields, model.FieldError{Field: "email", Message: "Please enter a valid email address"})
	}

	if fe := validatePassword("password", password); fe != nil {
		fields = append(fields, *fe)
	}

	if len(fields) > 0 {
		return model.NewValidationError(fields...)
	}
	return nil
}

func validatePassword(field, password string) *model.FieldError {
	if utf8.RuneCountInString(password) < passwordMinLength {
		return &model.FieldError{
			Field:   field,
			Message: fmt.Sprintf("Password must be at least %d characters long", passwordMinLength),
		}
	}
	if len(password) > passwordMaxBytes {
		return &model.FieldError{
			Field:   field,
			Message: fmt.Sprintf("Password cannot exceed %d bytes", passwordMaxBytes),
		}
	}
	return nil
}
