// Package migration はSQLiteデータベースのマイグレーションを管理する。
// fs.FSからSQLファイルを読み込み、schema_migrations テーブルで適用状態と内容のハッシュを追跡する。
package migration

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"slices"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// upSuffix は適用用SQLファイルの拡張子。
const upSuffix = ".up.sql"

var (
	// ErrDuplicateVersion は同じバージョンのマイグレーションが複数あることを表す。
	ErrDuplicateVersion = errors.New("マイグレーションのバージョンが重複しています")
	// ErrChecksumMismatch は適用済みのマイグレーションの内容が変更されたことを表す。
	ErrChecksumMismatch = errors.New("適用済みのマイグレーションの内容が変更されています")
)

// Migration は1つのマイグレーション。
type Migration struct {
	// Version はファイル名先頭の数値。
	Version int
	// Name はバージョンより後ろの説明部分。
	Name string
	// SQL は適用するSQL。
	SQL string
}

// Checksum はSQLのSHA-256を16進文字列で返す。
func (m Migration) Checksum() string {
	sum := sha256.Sum256([]byte(m.SQL))
	return hex.EncodeToString(sum[:])
}

// Load は dir 配下の 000001_description.up.sql 形式のファイルを読み込み、バージョン順に返す。
// 形式に合わないファイルは無視する。
func Load(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, err
	}

	var migrations []Migration
	seen := make(map[int]string)
	for _, entry := range entries {
		filename := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(filename, upSuffix) {
			continue
		}
		prefix, rest, found := strings.Cut(strings.TrimSuffix(filename, upSuffix), "_")
		if !found {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil || version <= 0 {
			continue
		}
		if other, ok := seen[version]; ok {
			return nil, fmt.Errorf("%w: %s, %s", ErrDuplicateVersion, other, filename)
		}
		seen[version] = filename

		content, err := fs.ReadFile(fsys, path.Join(dir, filename))
		if err != nil {
			return nil, fmt.Errorf("%s の読み込みに失敗: %w", filename, err)
		}
		migrations = append(migrations, Migration{Version: version, Name: rest, SQL: string(content)})
	}

	slices.SortFunc(migrations, func(a, b Migration) int { return a.Version - b.Version })
	return migrations, nil
}

// Status はデータベースの適用状況。
type Status struct {
	// Current は適用済みの最大バージョン。未適用の場合は0。
	Current int
	// Pending は未適用のマイグレーション。
	Pending []Migration
}

// Migrator はマイグレーションの適用を行う。
type Migrator struct {
	db     *sql.DB
	fsys   fs.FS
	dir    string
	logger *zap.Logger
}

// Option はMigratorの生成オプション。
type Option func(*Migrator)

// WithLogger は適用結果を出力するロガーを設定する。
func WithLogger(logger *zap.Logger) Option {
	return func(m *Migrator) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New は fsys の dir 配下のマイグレーションを db に適用するMigratorを生成する。
func New(db *sql.DB, fsys fs.FS, dir string, opts ...Option) *Migrator {
	m := &Migrator{db: db, fsys: fsys, dir: dir, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Up は未適用のマイグレーションをバージョン順に1つずつトランザクション内で適用する。
// 戻り値は今回適用したマイグレーションの数。
func (m *Migrator) Up(ctx context.Context) (int, error) {
	status, err := m.Status(ctx)
	if err != nil {
		return 0, err
	}

	for i, mig := range status.Pending {
		start := time.Now()
		if err := m.apply(ctx, mig); err != nil {
			return i, fmt.Errorf("マイグレーション %06d_%s の適用に失敗: %w", mig.Version, mig.Name, err)
		}
		m.logger.Info("マイグレーションを適用しました",
			zap.Int("version", mig.Version),
			zap.String("name", mig.Name),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
	return len(status.Pending), nil
}

// Status は適用済みのバージョンと未適用のマイグレーションを返す。
// 適用済みのファイルの内容が記録と異なる場合は ErrChecksumMismatch を返す。
func (m *Migrator) Status(ctx context.Context) (Status, error) {
	if err := m.ensureTable(ctx); err != nil {
		return Status{}, fmt.Errorf("マイグレーション管理テーブルの作成に失敗: %w", err)
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("適用済みバージョンの取得に失敗: %w", err)
	}
	migrations, err := Load(m.fsys, m.dir)
	if err != nil {
		return Status{}, fmt.Errorf("マイグレーションファイルの収集に失敗: %w", err)
	}

	var status Status
	for _, mig := range migrations {
		checksum, ok := applied[mig.Version]
		if !ok {
			status.Pending = append(status.Pending, mig)
			continue
		}
		if checksum != mig.Checksum() {
			return Status{}, fmt.Errorf("%w: %06d_%s", ErrChecksumMismatch, mig.Version, mig.Name)
		}
	}
	for version := range applied {
		status.Current = max(status.Current, version)
	}
	return status, nil
}

// ensureTable はバージョン管理テーブルを作成する。
func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			checksum TEXT NOT NULL DEFAULT '',
			applied_at DATETIME NOT NULL DEFAULT (datetime('now'))
		)
	`)
	return err
}

// applied は適用済みバージョンと記録されたハッシュの対応を返す。
func (m *Migrator) applied(ctx context.Context) (map[int]string, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT version, checksum FROM schema_migrations")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[int]string)
	for rows.Next() {
		var (
			version  int
			checksum string
		)
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, err
		}
		applied[version] = checksum
	}
	return applied, rows.Err()
}

// apply は1つのマイグレーションを適用し、同じトランザクションで記録する。
func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクション開始に失敗: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
		return fmt.Errorf("SQL実行に失敗: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name, checksum) VALUES (?, ?, ?)",
		mig.Version, mig.Name, mig.Checksum(),
	); err != nil {
		return fmt.Errorf("バージョン記録に失敗: %w", err)
	}
	return tx.Commit()
}
