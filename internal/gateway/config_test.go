package gateway

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoadConfig は設定の読み込みを検証する。
func TestLoadConfig(t *testing.T) {
	t.Parallel()

	t.Run("未設定の場合はデフォルト値を使うこと", func(t *testing.T) {
		t.Parallel()

		cfg, err := loadConfig(viper.New())
		require.NoError(t, err)
		assert.Equal(t, Config{
			Port:            "8000",
			ConfigFile:      "config.yml",
			APIPrefix:       "api/v1",
			VerifyTokenPath: "verify-token",
			AuthServiceName: "auth",
			UpstreamTimeout: 30 * time.Second,
			ErrorMode:       ErrorModeCollapse,
			MaxBodyBytes:    DefaultMaxBodyBytes,
			BreakerFailures: 0,
			BreakerTimeout:  30 * time.Second,
			LogDevelopment:  false,
			LogLevel:        "info",
		}, cfg)
	})

	t.Run("設定値で上書きできること", func(t *testing.T) {
		t.Parallel()

		v := viper.New()
		v.Set("PORT", "9090")
		v.Set("API_PREFIX", "/api/v2/")
		v.Set("VERIFY_TOKEN_PATH", "/check/")
		v.Set("AUTH_SERVICE_NAME", "identity")
		v.Set("UPSTREAM_TIMEOUT", "5s")
		v.Set("ERROR_MODE", "PASSTHROUGH")
		v.Set("CIRCUIT_BREAKER_FAILURES", 3)
		v.Set("CIRCUIT_BREAKER_TIMEOUT", "1m")
		v.Set("MAX_BODY_BYTES", "1024")

		cfg, err := loadConfig(v)
		require.NoError(t, err)
		assert.Equal(t, "9090", cfg.Port)
		assert.Equal(t, "api/v2", cfg.APIPrefix)
		assert.Equal(t, "check", cfg.VerifyTokenPath)
		assert.Equal(t, "identity", cfg.AuthServiceName)
		assert.Equal(t, 5*time.Second, cfg.UpstreamTimeout)
		assert.Equal(t, ErrorModePassthrough, cfg.ErrorMode)
		assert.Equal(t, 3, cfg.BreakerFailures)
		assert.Equal(t, time.Minute, cfg.BreakerTimeout)
		assert.Equal(t, int64(1024), cfg.MaxBodyBytes)
	})

	t.Run("空のプレフィックスを許可すること", func(t *testing.T) {
		t.Parallel()

		v := viper.New()
		v.Set("API_PREFIX", "/")
		cfg, err := loadConfig(v)
		require.NoError(t, err)
		assert.Empty(t, cfg.APIPrefix)
	})

	tests := []struct {
		name  string
		key   string
		value any
	}{
		{"不正なエラーモード", "ERROR_MODE", "verbose"},
		{"0以下のタイムアウト", "UPSTREAM_TIMEOUT", "0s"},
		{"負のブレーカー閾値", "CIRCUIT_BREAKER_FAILURES", -1},
		{"空の認証サービス名", "AUTH_SERVICE_NAME", ""},
		{"空の検証パス", "VERIFY_TOKEN_PATH", "/"},
		{"0のボディ上限", "MAX_BODY_BYTES", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name+"はエラーになること", func(t *testing.T) {
			t.Parallel()

			v := viper.New()
			v.Set(tt.key, tt.value)
			_, err := loadConfig(v)
			require.Error(t, err)
		})
	}

	t.Run("ブレーカーが有効な場合はタイムアウトが必要であること", func(t *testing.T) {
		t.Parallel()

		v := viper.New()
		v.Set("CIRCUIT_BREAKER_FAILURES", 2)
		v.Set("CIRCUIT_BREAKER_TIMEOUT", "0s")
		_, err := loadConfig(v)
		require.Error(t, err)
	})
}
