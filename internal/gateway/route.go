package gateway

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/nao1215/svcgate/internal/registry"
)

// allowedMethods は転送対象のHTTPメソッド。
var allowedMethods = map[string]struct{}{
	http.MethodGet:    {},
	http.MethodPost:   {},
	http.MethodPut:    {},
	http.MethodDelete: {},
}

// Route は解決済みの転送先。
type Route struct {
	// Service はサービス名。
	Service string
	// Subpath はサービス名より後ろのパス（エスケープ済み）。空の場合もある。
	Subpath string
	// Base はサービスのベースアドレス。
	Base *url.URL
}

// TargetURL は転送先の完全なURLを組み立てる。
// 形式: {base}/{prefix}/{service}/{subpath}?{rawQuery}
func (r Route) TargetURL(prefix, rawQuery string) string {
	var b strings.Builder
	b.WriteString(r.Base.String())
	if prefix != "" {
		b.WriteByte('/')
		b.WriteString(prefix)
	}
	b.WriteByte('/')
	b.WriteString(url.PathEscape(r.Service))
	b.WriteByte('/')
	b.WriteString(r.Subpath)
	if rawQuery != "" {
		b.WriteByte('?')
		b.WriteString(rawQuery)
	}
	return b.String()
}

// splitPath はエスケープ済みパスをサービス名とサブパスに分割する。
// サービス名はアンエスケープして返す。サービス名が空の場合と、
// サブパスにドットセグメントが含まれる場合は false を返す。
func splitPath(escapedPath string) (service, subpath string, ok bool) {
	p := strings.TrimPrefix(escapedPath, "/")
	rawService, subpath, _ := strings.Cut(p, "/")
	if rawService == "" {
		return "", "", false
	}
	service, err := url.PathUnescape(rawService)
	if err != nil || service == "" {
		return "", "", false
	}
	if !isCleanSubpath(subpath) {
		return "", "", false
	}
	return service, subpath, true
}

// isCleanSubpath はサブパスを転送先の {prefix}/{service}/ の外へ出さないことを確認する。
// 各セグメントをアンエスケープし、"." または ".." になるものがあれば false を返す。
// %2F や \ で区切られた内側の要素も同様に検査する。
func isCleanSubpath(subpath string) bool {
	for _, seg := range strings.Split(subpath, "/") {
		decoded, err := url.PathUnescape(seg)
		if err != nil {
			return false
		}
		for _, elem := range strings.FieldsFunc(decoded, func(r rune) bool { return r == '/' || r == '\\' }) {
			if elem == "." || elem == ".." {
				return false
			}
		}
	}
	return true
}

// resolveRoute はメソッドとパスから転送先を解決する。
// メソッドの検証はサービスの検索より先に行う。
func resolveRoute(reg *registry.Registry, method, escapedPath string) (Route, error) {
	if _, ok := allowedMethods[method]; !ok {
		return Route{}, errMethodNotAllowed(method)
	}

	service, subpath, ok := splitPath(escapedPath)
	if !ok {
		return Route{}, errInvalidPath(escapedPath)
	}

	base, ok := reg.Resolve(service)
	if !ok {
		return Route{Service: service}, errServiceNotFound(service)
	}
	return Route{Service: service, Subpath: subpath, Base: base}, nil
}
