package gateway

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ErrorMode は転送失敗を呼び出し元へどう返すかを表す。
type ErrorMode string

const (
	// ErrorModeCollapse はすべての転送失敗を500として返す。
	ErrorModeCollapse ErrorMode = "collapse"
	// ErrorModePassthrough はバックエンドのエラーステータスとボディをそのまま返し、
	// 接続失敗は503、その他の通信失敗は502として返す。
	ErrorModePassthrough ErrorMode = "passthrough"
)

// DefaultMaxBodyBytes はリクエストボディの上限のデフォルト値（10MiB）。
const DefaultMaxBodyBytes int64 = 10 << 20

// Config はGatewayサービスの設定。起動時に一度だけ読み込む。
type Config struct {
	// Port はサーバーのリッスンポート。
	Port string
	// ConfigFile はサービス対応表ファイルのパス。
	ConfigFile string
	// APIPrefix は転送先URLに付与するパスプレフィックス（例: api/v1）。
	APIPrefix string
	// VerifyTokenPath は認証サービスのトークン検証サブパス。
	VerifyTokenPath string
	// AuthServiceName は認証サービスとして扱うサービス名。
	AuthServiceName string
	// UpstreamTimeout は認証サービスおよびバックエンドへの1回の呼び出しの上限時間。
	UpstreamTimeout time.Duration
	// ErrorMode は転送失敗の返し方。
	ErrorMode ErrorMode
	// MaxBodyBytes は転送するリクエストボディの上限バイト数。
	MaxBodyBytes int64
	// BreakerFailures はサーキットブレーカーを開く連続失敗回数。0の場合は無効。
	BreakerFailures int
	// BreakerTimeout はサーキットブレーカーが開いてから半開状態になるまでの時間。
	BreakerTimeout time.Duration
	// LogDevelopment はコンソール形式のログを出力するかどうか。
	LogDevelopment bool
	// LogLevel は出力する最小ログレベル。
	LogLevel string
}

// LoadConfig は環境変数から設定を読み込む。
func LoadConfig() (Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	return loadConfig(v)
}

// loadConfig はviperから設定を読み込み、検証する。
func loadConfig(v *viper.Viper) (Config, error) {
	v.SetDefault("PORT", "8000")
	v.SetDefault("CONFIG_FILE", "config.yml")
	v.SetDefault("API_PREFIX", "api/v1")
	v.SetDefault("VERIFY_TOKEN_PATH", "verify-token")
	v.SetDefault("AUTH_SERVICE_NAME", "auth")
	v.SetDefault("UPSTREAM_TIMEOUT", "30s")
	v.SetDefault("ERROR_MODE", string(ErrorModeCollapse))
	v.SetDefault("MAX_BODY_BYTES", DefaultMaxBodyBytes)
	v.SetDefault("CIRCUIT_BREAKER_FAILURES", 0)
	v.SetDefault("CIRCUIT_BREAKER_TIMEOUT", "30s")
	v.SetDefault("LOG_DEVELOPMENT", false)
	v.SetDefault("LOG_LEVEL", "info")

	cfg := Config{
		Port:            v.GetString("PORT"),
		ConfigFile:      v.GetString("CONFIG_FILE"),
		APIPrefix:       strings.Trim(v.GetString("API_PREFIX"), "/"),
		VerifyTokenPath: strings.Trim(v.GetString("VERIFY_TOKEN_PATH"), "/"),
		AuthServiceName: v.GetString("AUTH_SERVICE_NAME"),
		UpstreamTimeout: v.GetDuration("UPSTREAM_TIMEOUT"),
		ErrorMode:       ErrorMode(strings.ToLower(v.GetString("ERROR_MODE"))),
		MaxBodyBytes:    v.GetInt64("MAX_BODY_BYTES"),
		BreakerFailures: v.GetInt("CIRCUIT_BREAKER_FAILURES"),
		BreakerTimeout:  v.GetDuration("CIRCUIT_BREAKER_TIMEOUT"),
		LogDevelopment:  v.GetBool("LOG_DEVELOPMENT"),
		LogLevel:        v.GetString("LOG_LEVEL"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate は設定値を検証する。
func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("PORT が空です"))
	}
	if c.AuthServiceName == "" {
		errs = append(errs, errors.New("AUTH_SERVICE_NAME が空です"))
	}
	if c.VerifyTokenPath == "" {
		errs = append(errs, errors.New("VERIFY_TOKEN_PATH が空です"))
	}
	if c.UpstreamTimeout <= 0 {
		errs = append(errs, fmt.Errorf("UPSTREAM_TIMEOUT は正の値である必要があります: %s", c.UpstreamTimeout))
	}
	if c.ErrorMode != ErrorModeCollapse && c.ErrorMode != ErrorModePassthrough {
		errs = append(errs, fmt.Errorf("ERROR_MODE が不正です: %q", c.ErrorMode))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("MAX_BODY_BYTES は正の値である必要があります: %d", c.MaxBodyBytes))
	}
	if c.BreakerFailures < 0 {
		errs = append(errs, fmt.Errorf("CIRCUIT_BREAKER_FAILURES は0以上である必要があります: %d", c.BreakerFailures))
	}
	if c.BreakerFailures > 0 && c.BreakerTimeout <= 0 {
		errs = append(errs, fmt.Errorf("CIRCUIT_BREAKER_TIMEOUT は正の値である必要があります: %s", c.BreakerTimeout))
	}
	if len(errs) > 0 {
		return fmt.Errorf("設定が不正です: %w", errors.Join(errs...))
	}
	return nil
}
