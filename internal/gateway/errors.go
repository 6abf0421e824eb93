package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind はgatewayが呼び出し元へ返すエラーの種別。
type Kind int

const (
	// KindNotFound はサービスが見つからないことを表す（404）。
	KindNotFound Kind = iota + 1
	// KindMethodNotAllowed は転送対象外のHTTPメソッドであることを表す（405）。
	KindMethodNotAllowed
	// KindUnauthorized はトークンが無い・無効、または認証サービスに到達できないことを表す（401）。
	KindUnauthorized
	// KindInternal は転送に失敗したことを表す（500）。
	KindInternal
	// KindPayloadTooLarge はリクエストボディが上限を超えたことを表す（413）。
	KindPayloadTooLarge
)

// String はメトリクスのラベルとして使う種別名を返す。
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindMethodNotAllowed:
		return "method_not_allowed"
	case KindUnauthorized:
		return "unauthorized"
	case KindInternal:
		return "internal"
	case KindPayloadTooLarge:
		return "payload_too_large"
	default:
		return "unknown"
	}
}

// Status は種別に対応するHTTPステータスを返す。
func (k Kind) Status() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// Error はgatewayの処理で発生したエラー。
// Message は呼び出し元へ返し、Cause はログにのみ出力する。
type Error struct {
	// Kind はエラー種別。
	Kind Kind
	// Message は呼び出し元へ返すメッセージ。
	Message string
	// Cause は元になったエラー。
	Cause error
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap は元になったエラーを返す。
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is は同じ種別の *Error であれば一致とみなす。
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Cause == nil
}

// 種別ごとの比較用エラー。errors.Is(err, ErrNotFound) のように使う。
var (
	ErrNotFound         = &Error{Kind: KindNotFound}
	ErrMethodNotAllowed = &Error{Kind: KindMethodNotAllowed}
	ErrUnauthorized     = &Error{Kind: KindUnauthorized}
	ErrInternal         = &Error{Kind: KindInternal}
	ErrPayloadTooLarge  = &Error{Kind: KindPayloadTooLarge}
)

// errServiceNotFound はサービスが見つからないエラーを生成する。
func errServiceNotFound(service string) *Error {
	return &Error{Kind: KindNotFound, Message: "サービスが見つかりません", Cause: fmt.Errorf("未登録のサービス: %q", service)}
}

// errInvalidPath はサービス名とサブパスに分割できないパスのエラーを生成する。
// ドットセグメントを含むパスもここに含まれ、サービスが見つからない場合と同じ404として返す。
func errInvalidPath(path string) *Error {
	return &Error{Kind: KindNotFound, Message: "サービスが見つかりません", Cause: fmt.Errorf("不正なパス: %q", path)}
}

// errMethodNotAllowed は転送対象外のメソッドのエラーを生成する。
func errMethodNotAllowed(method string) *Error {
	return &Error{Kind: KindMethodNotAllowed, Message: "許可されていないメソッドです", Cause: fmt.Errorf("メソッド: %s", method)}
}

// errUnauthorized は認証に失敗したエラーを生成する。
func errUnauthorized(reason string) *Error {
	return &Error{Kind: KindUnauthorized, Message: "認証に失敗しました", Cause: errors.New(reason)}
}

// errPayloadTooLarge はリクエストボディが上限を超えたエラーを生成する。
func errPayloadTooLarge(limit int64, cause error) *Error {
	return &Error{Kind: KindPayloadTooLarge, Message: "リクエストボディが大きすぎます", Cause: fmt.Errorf("上限 %d バイト: %w", limit, cause)}
}

// errInternal は内部エラーを生成する。
func errInternal(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: message, Cause: cause}
}

// kindOf は err のgatewayエラー種別を返す。*Error でない場合は KindInternal とみなす。
func kindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindInternal
}
