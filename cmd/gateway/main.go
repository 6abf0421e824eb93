// API Gatewayサービスのエントリポイント。
// リクエストパスの先頭セグメントでサービスを解決し、認証サービスでトークンを検証したうえで
// バックエンドへ転送する。外部からアクセス可能な唯一のサービスであり、セキュリティの境界線となる。
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/nao1215/svcgate/internal/gateway"
	"github.com/nao1215/svcgate/internal/registry"
	"github.com/nao1215/svcgate/pkg/logger"
)

func main() {
	// .env は任意。存在しない場合は環境変数だけを使う
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatalf(".env の読み込みに失敗: %v", err)
	}

	cfg, err := gateway.LoadConfig()
	if err != nil {
		log.Fatalf("設定の読み込みに失敗: %v", err)
	}

	zl, err := logger.New(logger.Config{
		Development: cfg.LogDevelopment,
		Level:       cfg.LogLevel,
		Service:     "gateway",
	})
	if err != nil {
		log.Fatalf("ロガーの初期化に失敗: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	reg, err := registry.LoadFile(cfg.ConfigFile, cfg.AuthServiceName)
	if err != nil {
		zl.Fatal("サービス対応表の読み込みに失敗", zap.String("path", cfg.ConfigFile), zap.Error(err))
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	server, err := gateway.NewServer(cfg, reg, zl, promReg)
	if err != nil {
		zl.Fatal("Gatewayサーバーの初期化に失敗", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		zl.Fatal("Gatewayサービスの実行に失敗", zap.Error(err))
	}
}
