package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/nao1215/svcgate/pkg/httpclient"
)

// AuthOutcome は認証サービスによるトークン検証の結果。
// Authenticated と Rejected のどちらか一方だけを表す。
type AuthOutcome struct {
	// userID は検証済みユーザーの識別子。認証成功時のみ設定される。
	userID string
	// reason は拒否理由。認証失敗時のみ設定される。
	reason string
	// authenticated は認証に成功したかどうか。
	authenticated bool
}

// Authenticated は認証成功の結果を生成する。
func Authenticated(userID string) AuthOutcome {
	return AuthOutcome{userID: userID, authenticated: true}
}

// Rejected は認証失敗の結果を生成する。
func Rejected(reason string) AuthOutcome {
	return AuthOutcome{reason: reason}
}

// IsAuthenticated は認証に成功したかどうかを返す。
func (o AuthOutcome) IsAuthenticated() bool {
	return o.authenticated
}

// UserID は検証済みユーザーの識別子を返す。
func (o AuthOutcome) UserID() string {
	return o.userID
}

// Reason は拒否理由を返す。
func (o AuthOutcome) Reason() string {
	return o.reason
}

// verifyTokenRequest は認証サービスへ送るトークン検証リクエスト。
type verifyTokenRequest struct {
	// Token はAuthorizationヘッダーの値そのもの（"Bearer xxx" 形式）。
	Token string `json:"token"`
}

// AuthDelegate は認証サービスにBearerトークンの検証を委譲する。
type AuthDelegate struct {
	// client はサービス間通信用のHTTPクライアント。
	client *httpclient.Client
	// verifyURL はトークン検証エンドポイントのURL。
	verifyURL string
}

// NewAuthDelegate は新しいAuthDelegateを生成する。
// 検証先は {authBase}/{prefix}/{authService}/{verifyPath} となる。
func NewAuthDelegate(client *httpclient.Client, authBase *url.URL, prefix, authService, verifyPath string) *AuthDelegate {
	parts := []string{strings.TrimRight(authBase.String(), "/")}
	if prefix != "" {
		parts = append(parts, prefix)
	}
	parts = append(parts, url.PathEscape(authService), verifyPath)

	return &AuthDelegate{
		client:    client,
		verifyURL: strings.Join(parts, "/"),
	}
}

// VerifyURL はトークン検証エンドポイントのURLを返す。
func (d *AuthDelegate) VerifyURL() string {
	return d.verifyURL
}

// Verify はAuthorizationヘッダーの値を認証サービスで検証する。
// トークンが無効な場合だけでなく、認証サービスがエラーを返した場合や到達できない場合も
// Rejected を返す。検証リクエスト自体を組み立てられない場合のみエラーを返す。
func (d *AuthDelegate) Verify(ctx context.Context, authorization string) (AuthOutcome, error) {
	if strings.TrimSpace(authorization) == "" {
		return Rejected("トークンがありません"), nil
	}

	var result map[string]any
	err := d.client.PostJSON(ctx, d.verifyURL, verifyTokenRequest{Token: authorization}, &result)
	if err != nil {
		if kind, ok := httpclient.KindOf(err); ok {
			return Rejected(fmt.Sprintf("トークン検証に失敗（%s）: %v", kind, err)), nil
		}
		// レスポンスのデシリアライズ失敗も検証失敗として扱う
		if errors.Is(err, httpclient.ErrDecodeResponse) {
			return Rejected("トークン検証のレスポンスが不正です"), nil
		}
		return AuthOutcome{}, fmt.Errorf("トークン検証リクエストの作成に失敗: %w", err)
	}

	userID, ok := formatUserID(result["user_id"])
	if !ok {
		return Rejected("invalid token"), nil
	}
	return Authenticated(userID), nil
}

// formatUserID はレスポンスの user_id をヘッダー値の文字列に変換する。
// 数値はJSON表記のまま、文字列はそのまま使う。null や欠落、空文字は false を返す。
func formatUserID(v any) (string, bool) {
	switch id := v.(type) {
	case string:
		return id, id != ""
	case json.Number:
		return id.String(), true
	default:
		return "", false
	}
}
