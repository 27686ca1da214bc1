package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL はセッショントークンの既定の有効期間。
const DefaultTokenTTL = time.Hour

// トークン検証エラー。
var (
	// ErrTokenMalformed はトークンを構造的に解析できない場合のエラー。
	ErrTokenMalformed = errors.New("token is malformed")
	// ErrTokenBadSignature は署名が一致しない（または想定外のアルゴリズムの）場合のエラー。
	ErrTokenBadSignature = errors.New("token signature is invalid")
	// ErrTokenExpired は有効期限切れのエラー。
	ErrTokenExpired = errors.New("token is expired")
	// ErrTokenMissingSubject はユーザーIDを含まないトークンのエラー。
	ErrTokenMissingSubject = errors.New("token has no subject")
	// ErrTokenInvalid はその他の理由で無効なトークンのエラー。
	ErrTokenInvalid = errors.New("token is invalid")
)

// Claims はセッショントークンのペイロード。
// idにユーザーID、iat/expに発行時刻と有効期限を持つ。
type Claims struct {
	UserID string `json:"id"`
	jwt.RegisteredClaims
}

// TokenIssuer はHS256署名のセッショントークンを発行・検証する。
// サーバー側に状態を持たないため、並行に呼び出してよい。
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// TokenOption はTokenIssuerのオプション。
type TokenOption func(*TokenIssuer)

// WithClock は有効期限の判定に使う時刻関数を差し替える。
func WithClock(now func() time.Time) TokenOption {
	return func(i *TokenIssuer) {
		i.now = now
	}
}

// NewTokenIssuer はTokenIssuerを生成する。
// secretは起動時に一度だけ読み込んだ設定値を渡す。ttlが0以下の場合は1時間。
func NewTokenIssuer(secret []byte, ttl time.Duration, opts ...TokenOption) *TokenIssuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	i := &TokenIssuer{
		secret: append([]byte(nil), secret...),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// TTL はトークンの有効期間を返す。
func (i *TokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue はユーザーIDを埋め込んだトークンを発行する。
func (i *TokenIssuer) Issue(userID string) (string, error) {
	if userID == "" {
		return "", ErrTokenMissingSubject
	}

	now := i.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	})

	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify はトークンの構造・署名・有効期限を検証し、埋め込まれたユーザーIDを返す。
// 失敗時はErrTokenMalformed、ErrTokenBadSignature、ErrTokenExpired、
// ErrTokenMissingSubject、ErrTokenInvalidのいずれかを返す。
func (i *TokenIssuer) Verify(tokenString string) (string, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) {
			return i.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return "", classifyTokenError(err)
	}

	if claims.UserID == "" {
		return "", ErrTokenMissingSubject
	}
	return claims.UserID, nil
}

// classifyTokenError はjwtライブラリのエラーを検証エラーに分類する。
func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return fmt.Errorf("%w: %v", ErrTokenBadSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %v", ErrTokenExpired, err)
	default:
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
}
