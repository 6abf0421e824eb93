package devauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// defaultJWTSecret は JWT_SECRET が未設定の場合に使う署名鍵。
const defaultJWTSecret = "dev-secret-key"

// Config は開発用認証サービスの設定。
type Config struct {
	// Port はサーバーのリッスンポート。
	Port string
	// DatabasePath はSQLiteデータベースのパス。
	DatabasePath string
	// APIPrefix はエンドポイントのパスプレフィックス。gatewayの API_PREFIX と揃える。
	APIPrefix string
	// JWTSecret はJWT署名用の秘密鍵。
	JWTSecret string
	// TokenTTL は発行するトークンの有効期間。
	TokenTTL time.Duration
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
	v.SetDefault("PORT", "9000")
	v.SetDefault("DATABASE_PATH", "devauth.db")
	v.SetDefault("API_PREFIX", "api/v1")
	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("TOKEN_TTL", "24h")
	v.SetDefault("LOG_DEVELOPMENT", false)
	v.SetDefault("LOG_LEVEL", "info")

	cfg := Config{
		Port:           v.GetString("PORT"),
		DatabasePath:   v.GetString("DATABASE_PATH"),
		APIPrefix:      strings.Trim(v.GetString("API_PREFIX"), "/"),
		JWTSecret:      v.GetString("JWT_SECRET"),
		TokenTTL:       v.GetDuration("TOKEN_TTL"),
		LogDevelopment: v.GetBool("LOG_DEVELOPMENT"),
		LogLevel:       v.GetString("LOG_LEVEL"),
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
	if c.DatabasePath == "" {
		errs = append(errs, errors.New("DATABASE_PATH が空です"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET が空です"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("TOKEN_TTL は正の値である必要があります: %s", c.TokenTTL))
	}
	if len(errs) > 0 {
		return fmt.Errorf("設定が不正です: %w", errors.Join(errs...))
	}
	return nil
}

// UsesDefaultSecret はデフォルトの署名鍵を使っているかどうかを返す。
func (c Config) UsesDefaultSecret() bool {
	return c.JWTSecret == defaultJWTSecret
}
