package httpclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// ErrDecodeResponse はレスポンスボディをJSONとしてデシリアライズできなかったことを表す。
var ErrDecodeResponse = errors.New("レスポンスボディのデシリアライズに失敗")

// Kind は転送失敗の種類を表す。
type Kind int

const (
	// KindConnect は接続先プロセスに到達できなかったことを表す。
	KindConnect Kind = iota + 1
	// KindTransport はタイムアウトやプロトコルエラーなど、接続以外の通信失敗を表す。
	KindTransport
	// KindStatus は接続先から400以上（JSON呼び出しでは2xx以外）のステータスが返されたことを表す。
	KindStatus
)

// String は失敗の種類を文字列で返す。メトリクスのラベルにも使用する。
func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindTransport:
		return "transport"
	case KindStatus:
		return "status"
	default:
		return "unknown"
	}
}

// UpstreamError は接続先との通信で発生したエラー。
type UpstreamError struct {
	// Kind は失敗の種類。
	Kind Kind
	// Method はリクエストのHTTPメソッド。
	Method string
	// URL はリクエスト先のURL。
	URL string
	// StatusCode は接続先が返したステータス。KindStatus の場合のみ設定される。
	StatusCode int
	// Body は接続先が返したボディ。KindStatus の場合のみ設定される。
	Body []byte
	// ContentType は接続先が返したContent-Type。KindStatus の場合のみ設定される。
	ContentType string
	// Cause は元になったエラー。
	Cause error
}

// Error はerrorインターフェースを実装する。
func (e *UpstreamError) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("%s %s: HTTPエラー: status=%d", e.Method, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %s失敗: %v", e.Method, e.URL, e.Kind, e.Cause)
}

// Unwrap は元になったエラーを返す。
func (e *UpstreamError) Unwrap() error {
	return e.Cause
}

// KindOf は err に含まれる UpstreamError の種類を返す。
// UpstreamError でない場合は false を返す。
func KindOf(err error) (Kind, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Kind, true
	}
	return 0, false
}

// classify はhttp.Client.Doが返したエラーを接続失敗とそれ以外に分類する。
// タイムアウトは接続段階で起きたものも含めて通信失敗として扱う。
func classify(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTransport
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTransport
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.EHOSTUNREACH) || errors.Is(err, syscall.ENETUNREACH) {
		return KindConnect
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindConnect
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return KindConnect
	}
	return KindTransport
}
