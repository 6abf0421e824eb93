package migration

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	_ "modernc.org/sqlite"
)

// openTestDB はインメモリSQLiteを開く。
// インメモリDBは接続ごとに別になるため、接続数を1に制限する。
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// testMigrations はテスト用のマイグレーションファイル群。
func testMigrations() fstest.MapFS {
	return fstest.MapFS{
		"migrations/000002_add_email.up.sql":      {Data: []byte(`ALTER TABLE users ADD COLUMN email TEXT NOT NULL DEFAULT '';`)},
		"migrations/000001_create_users.up.sql":   {Data: []byte(`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL);`)},
		"migrations/000001_create_users.down.sql": {Data: []byte(`DROP TABLE users;`)},
		"migrations/README.md":                    {Data: []byte(`ignored`)},
		"migrations/invalid.up.sql":               {Data: []byte(`ignored`)},
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("up.sqlだけをバージョン順に読み込むこと", func(t *testing.T) {
		t.Parallel()

		migrations, err := Load(testMigrations(), "migrations")
		require.NoError(t, err)
		require.Len(t, migrations, 2)
		assert.Equal(t, 1, migrations[0].Version)
		assert.Equal(t, "create_users", migrations[0].Name)
		assert.Equal(t, 2, migrations[1].Version)
		assert.Equal(t, "add_email", migrations[1].Name)
		assert.Contains(t, migrations[1].SQL, "ALTER TABLE")
	})

	t.Run("同じバージョンが複数ある場合はエラーを返すこと", func(t *testing.T) {
		t.Parallel()

		fsys := testMigrations()
		fsys["migrations/000002_add_phone.up.sql"] = &fstest.MapFile{Data: []byte(`SELECT 1;`)}
		_, err := Load(fsys, "migrations")
		require.ErrorIs(t, err, ErrDuplicateVersion)
	})

	t.Run("ディレクトリが無い場合はエラーを返すこと", func(t *testing.T) {
		t.Parallel()

		_, err := Load(fstest.MapFS{}, "migrations")
		require.Error(t, err)
	})
}

// TestMigratorUp はマイグレーションの適用を検証する。
func TestMigratorUp(t *testing.T) {
	t.Parallel()

	t.Run("バージョン順に適用し記録すること", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		core, logs := observer.New(zapcore.InfoLevel)

		n, err := New(db, testMigrations(), "migrations", WithLogger(zap.New(core))).Up(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		entries := logs.FilterMessage("マイグレーションを適用しました").All()
		require.Len(t, entries, 2)
		assert.Equal(t, int64(1), entries[0].ContextMap()["version"])
		assert.Equal(t, int64(2), entries[1].ContextMap()["version"])

		_, err = db.Exec(`INSERT INTO users (name, email) VALUES ('alice', 'alice@example.com')`)
		require.NoError(t, err)

		var name string
		require.NoError(t, db.QueryRow(`SELECT name FROM schema_migrations WHERE version = 2`).Scan(&name))
		assert.Equal(t, "add_email", name)
	})

	t.Run("適用済みのマイグレーションは再実行しないこと", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		m := New(db, testMigrations(), "migrations", WithLogger(nil))
		_, err := m.Up(context.Background())
		require.NoError(t, err)

		n, err := m.Up(context.Background())
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("後から追加したマイグレーションだけを適用すること", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		fsys := testMigrations()
		delete(fsys, "migrations/000002_add_email.up.sql")
		_, err := New(db, fsys, "migrations").Up(context.Background())
		require.NoError(t, err)

		n, err := New(db, testMigrations(), "migrations").Up(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("SQLが不正な場合はエラーを返しそれ以降を適用しないこと", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		fsys := fstest.MapFS{
			"migrations/000001_create.up.sql": {Data: []byte(`CREATE TABLE items (id INTEGER PRIMARY KEY);`)},
			"migrations/000002_broken.up.sql": {Data: []byte(`CREATE TABLE (`)},
			"migrations/000003_later.up.sql":  {Data: []byte(`CREATE TABLE later (id INTEGER);`)},
		}
		n, err := New(db, fsys, "migrations").Up(context.Background())
		require.Error(t, err)
		assert.Equal(t, 1, n)

		var count int
		require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
		assert.Equal(t, 1, count)
	})

	t.Run("適用済みのファイルが変更されている場合はエラーを返すこと", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		_, err := New(db, testMigrations(), "migrations").Up(context.Background())
		require.NoError(t, err)

		changed := testMigrations()
		changed["migrations/000001_create_users.up.sql"] = &fstest.MapFile{Data: []byte(`CREATE TABLE users (id INTEGER PRIMARY KEY);`)}
		_, err = New(db, changed, "migrations").Up(context.Background())
		require.ErrorIs(t, err, ErrChecksumMismatch)
	})
}

func TestMigratorStatus(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	fsys := testMigrations()
	m := New(db, fsys, "migrations")

	before, err := m.Status(context.Background())
	require.NoError(t, err)
	assert.Zero(t, before.Current)
	assert.Len(t, before.Pending, 2)

	_, err = m.Up(context.Background())
	require.NoError(t, err)

	after, err := m.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, after.Current)
	assert.Empty(t, after.Pending)
}
