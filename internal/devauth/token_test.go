package devauth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// testSecret はテスト用のJWTシークレット。
const testSecret = "test-secret-key-for-unit-tests"

// TestTokenIssuerIssue はトークン発行を検証する。
func TestTokenIssuerIssue(t *testing.T) {
	t.Parallel()

	t.Run("正常にJWTトークンを生成できること", func(t *testing.T) {
		t.Parallel()

		issuer := NewTokenIssuer(testSecret, 24*time.Hour)
		tokenStr, err := issuer.Issue(User{ID: 42, Username: "alice"})
		if err != nil {
			t.Fatalf("Issue()でエラーが発生: %v", err)
		}

		// トークンをパースして検証する
		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(_ *jwt.Token) (any, error) {
			return []byte(testSecret), nil
		})
		if err != nil {
			t.Fatalf("トークンのパースに失敗: %v", err)
		}
		if !token.Valid {
			t.Fatal("トークンが無効")
		}
		if claims.UserID != 42 {
			t.Errorf("UserID = %d, want %d", claims.UserID, 42)
		}
		if claims.Username != "alice" {
			t.Errorf("Username = %q, want %q", claims.Username, "alice")
		}
		if claims.Subject != "42" {
			t.Errorf("Subject = %q, want %q", claims.Subject, "42")
		}
		if claims.Issuer != tokenIssuer {
			t.Errorf("Issuer = %q, want %q", claims.Issuer, tokenIssuer)
		}
	})

	t.Run("トークンの有効期限が指定した期間後であること", func(t *testing.T) {
		t.Parallel()

		now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		issuer := NewTokenIssuer(testSecret, time.Hour)
		issuer.now = func() time.Time { return now }

		tokenStr, err := issuer.Issue(User{ID: 1, Username: "bob"})
		if err != nil {
			t.Fatalf("Issue()でエラーが発生: %v", err)
		}

		claims, err := issuer.Verify(tokenStr)
		if err != nil {
			t.Fatalf("Verify()でエラーが発生: %v", err)
		}
		if !claims.ExpiresAt.Time.Equal(now.Add(time.Hour)) {
			t.Errorf("ExpiresAt = %v, want %v", claims.ExpiresAt.Time, now.Add(time.Hour))
		}
	})
}

// TestTokenIssuerVerify はトークン検証を検証する。
func TestTokenIssuerVerify(t *testing.T) {
	t.Parallel()

	issuer := NewTokenIssuer(testSecret, time.Hour)
	valid, err := issuer.Issue(User{ID: 7, Username: "carol"})
	if err != nil {
		t.Fatalf("Issue()でエラーが発生: %v", err)
	}

	t.Run("Bearer接頭辞付きのトークンを受け付けること", func(t *testing.T) {
		t.Parallel()

		claims, err := issuer.Verify("Bearer " + valid)
		if err != nil {
			t.Fatalf("Verify()でエラーが発生: %v", err)
		}
		if claims.UserID != 7 {
			t.Errorf("UserID = %d, want %d", claims.UserID, 7)
		}
	})

	t.Run("接頭辞なしのトークンも受け付けること", func(t *testing.T) {
		t.Parallel()

		if _, err := issuer.Verify(valid); err != nil {
			t.Fatalf("Verify()でエラーが発生: %v", err)
		}
	})

	t.Run("異なるsecretで署名されたトークンは拒否すること", func(t *testing.T) {
		t.Parallel()

		other, err := NewTokenIssuer("other-secret", time.Hour).Issue(User{ID: 7, Username: "carol"})
		if err != nil {
			t.Fatalf("Issue()でエラーが発生: %v", err)
		}
		if _, err := issuer.Verify("Bearer " + other); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("改ざんされたトークンは拒否すること", func(t *testing.T) {
		t.Parallel()

		if _, err := issuer.Verify("Bearer " + tamper(valid)); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("有効期限切れのトークンは拒否すること", func(t *testing.T) {
		t.Parallel()

		expired := NewTokenIssuer(testSecret, time.Minute)
		expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
		tokenStr, err := expired.Issue(User{ID: 7, Username: "carol"})
		if err != nil {
			t.Fatalf("Issue()でエラーが発生: %v", err)
		}
		if _, err := issuer.Verify(tokenStr); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("HS256以外の署名方式は拒否すること", func(t *testing.T) {
		t.Parallel()

		claims := Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    tokenIssuer,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
			UserID: 7,
		}
		tokenStr, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString([]byte(testSecret))
		if err != nil {
			t.Fatalf("署名に失敗: %v", err)
		}
		if _, err := issuer.Verify(tokenStr); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Verify() error = %v, want ErrInvalidToken", err)
		}
	})

	t.Run("空のトークンは拒否すること", func(t *testing.T) {
		t.Parallel()

		for _, raw := range []string{"", "Bearer ", "   "} {
			if _, err := issuer.Verify(raw); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("Verify(%q) error = %v, want ErrInvalidToken", raw, err)
			}
		}
	})
}

// tamper は署名の先頭1文字を書き換えたトークンを返す。
func tamper(token string) string {
	i := strings.LastIndex(token, ".") + 1
	replacement := "A"
	if token[i] == 'A' {
		replacement = "B"
	}
	return token[:i] + replacement + token[i+1:]
}
