package registry

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ErrAuthServiceMissing は認証サービスが対応表に存在しないことを表す。
var ErrAuthServiceMissing = errors.New("認証サービスがサービス対応表に存在しません")

// reservedNames はgateway自身のエンドポイントと衝突するため、サービス名として使えない名前。
var reservedNames = map[string]struct{}{
	"health":  {},
	"metrics": {},
}

// Registry はサービス名とベースアドレスの不変な対応表。
type Registry struct {
	// services はサービス名からベースアドレスへの対応。構築後は変更しない。
	services map[string]*url.URL
	// authService は認証サービスとして扱うサービス名。
	authService string
}

// New はサービス名とアドレスの組から対応表を構築する。
// アドレスの形式が不正な場合や、authService が含まれない場合はエラーを返す。
func New(entries map[string]string, authService string) (*Registry, error) {
	services := make(map[string]*url.URL, len(entries))
	for name, addr := range entries {
		if err := validateName(name); err != nil {
			return nil, err
		}
		u, err := parseBaseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("サービス %q のアドレスが不正: %w", name, err)
		}
		services[name] = u
	}

	if _, ok := services[authService]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrAuthServiceMissing, authService)
	}

	return &Registry{
		services:    services,
		authService: authService,
	}, nil
}

// Resolve はサービス名に対応するベースアドレスを返す。
// 存在しない場合は false を返す。返されたURLは呼び出し側で変更してはならないため複製を返す。
func (r *Registry) Resolve(name string) (*url.URL, bool) {
	u, ok := r.services[name]
	if !ok {
		return nil, false
	}
	clone := *u
	return &clone, true
}

// AuthService は認証サービスのサービス名を返す。
func (r *Registry) AuthService() string {
	return r.authService
}

// IsAuthService は name が認証サービスかどうかを返す。
func (r *Registry) IsAuthService(name string) bool {
	return name == r.authService
}

// Names は登録済みサービス名を昇順で返す。
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len は登録済みサービス数を返す。
func (r *Registry) Len() int {
	return len(r.services)
}

// validateName はサービス名がパスの1セグメントとして使えるかを検証する。
func validateName(name string) error {
	if name == "" {
		return errors.New("サービス名が空です")
	}
	if strings.ContainsAny(name, "/?#\\") {
		return fmt.Errorf("サービス名 %q に使用できない文字が含まれています", name)
	}
	if name == "." || name == ".." {
		return fmt.Errorf("サービス名 %q はパスセグメントとして使えません", name)
	}
	if _, ok := reservedNames[name]; ok {
		return fmt.Errorf("サービス名 %q は予約されています", name)
	}
	return nil
}

// parseBaseURL はベースアドレスを絶対URLとして解析する。末尾のスラッシュは取り除く。
func parseBaseURL(addr string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(addr))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("スキームは http または https である必要があります: %q", addr)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("ホストが指定されていません: %q", addr)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return nil, fmt.Errorf("クエリやフラグメントは指定できません: %q", addr)
	}
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = ""
	return u, nil
}
