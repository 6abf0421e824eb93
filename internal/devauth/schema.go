package devauth

import (
	"context"
	"database/sql"
	"embed"

	"go.uber.org/zap"

	"github.com/nao1215/svcgate/pkg/migration"
)

//go:embed migrations
var migrationsFS embed.FS

// initSchema は未適用のマイグレーションを適用し、適用後のスキーマバージョンを出力する。
func initSchema(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := migration.New(db, migrationsFS, "migrations", migration.WithLogger(logger))
	applied, err := m.Up(ctx)
	if err != nil {
		return err
	}
	status, err := m.Status(ctx)
	if err != nil {
		return err
	}
	logger.Info("スキーマを初期化しました",
		zap.Int("version", status.Current),
		zap.Int("applied", applied),
	)
	return nil
}
