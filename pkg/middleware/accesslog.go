package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ContextKeyRequestID はハンドラがリクエストIDをGinコンテキストに格納する際のキー。
// アクセスログはこの値があればログに含める。
const ContextKeyRequestID = "request_id"

// AccessLog はリクエストごとにアクセスログを出力するGinミドルウェアを返す。
// skipPaths に含まれるパスはログを出力しない。
// Authorizationヘッダーなどの認証情報は記録しない。
func AccessLog(logger *zap.Logger, skipPaths ...string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if _, ok := skip[path]; ok {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		}
		if c.Request.URL.RawQuery != "" {
			fields = append(fields, zap.String("query", c.Request.URL.RawQuery))
		}
		if id := c.GetString(ContextKeyRequestID); id != "" {
			fields = append(fields, zap.String("request_id", id))
		}

		logger.Log(levelForStatus(status), "リクエストを処理しました", fields...)
	}
}

// levelForStatus はステータスコードに応じたログレベルを返す。
func levelForStatus(status int) zapcore.Level {
	switch {
	case status >= 500:
		return zapcore.ErrorLevel
	case status >= 400:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
