package devauth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenIssuer は発行するトークンの iss クレーム。
const tokenIssuer = "svcgate-devauth"

// ErrInvalidToken はトークンが無効であることを表す。
var ErrInvalidToken = errors.New("トークンが無効です")

// Claims はJWTトークンのクレーム（ペイロード）を表す。
type Claims struct {
	jwt.RegisteredClaims
	// UserID は認証済みユーザーの一意識別子。
	UserID int64 `json:"user_id"`
	// Username はユーザー名。
	Username string `json:"username"`
}

// TokenIssuer はHS256で署名したJWTを発行・検証する。
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer は新しいTokenIssuerを生成する。
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue はユーザー情報からJWTトークンを生成する。
func (ti *TokenIssuer) Issue(user User) (string, error) {
	now := ti.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
		UserID:   user.ID,
		Username: user.Username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.secret)
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// Verify はAuthorizationヘッダーの値（"Bearer xxx" 形式、または接頭辞なしのトークン）を検証する。
// 署名・有効期限・発行者のいずれかが不正な場合は ErrInvalidToken を返す。
func (ti *TokenIssuer) Verify(raw string) (*Claims, error) {
	tokenString := strings.TrimSpace(raw)
	if rest, found := strings.CutPrefix(tokenString, "Bearer "); found {
		tokenString = strings.TrimSpace(rest)
	}
	if tokenString == "" {
		return nil, fmt.Errorf("%w: トークンがありません", ErrInvalidToken)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(_ *jwt.Token) (any, error) {
			return ti.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID <= 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
