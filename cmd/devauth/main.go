// 開発用認証サービスのエントリポイント。
// ユーザー名だけでJWTを発行し、gatewayからのトークン検証に応答する。
// ローカル開発とテスト専用であり、本番環境で起動してはならない。
package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/nao1215/svcgate/internal/devauth"
	"github.com/nao1215/svcgate/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatalf(".env の読み込みに失敗: %v", err)
	}

	cfg, err := devauth.LoadConfig()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	zl, err := logger.New(logger.Config{
		Development: cfg.LogDevelopment,
		Level:       cfg.LogLevel,
		Service:     "devauth",
	})
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	if cfg.UsesDefaultSecret() {
		zl.Warn("JWT_SECRET が未設定のためデフォルトの署名鍵を使用します")
	}

	db, err := sql.Open("sqlite", cfg.DatabasePath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		zl.Fatal("データベース接続に失敗", zap.String("path", cfg.DatabasePath), zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := devauth.NewServer(ctx, cfg, db, zl)
	if err != nil {
		zl.Fatal("開発用認証サーバーの初期化に失敗", zap.Error(err))
	}

	if err := server.Run(ctx); err != nil {
		zl.Fatal("開発用認証サービスの実行に失敗", zap.Error(err))
	}
}
