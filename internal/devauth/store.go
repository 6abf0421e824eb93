package devauth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrUserNotFound はユーザーが存在しないことを表す。
var ErrUserNotFound = errors.New("ユーザーが見つかりません")

// User は開発用認証サービスのユーザー。
type User struct {
	// ID はユーザーの一意識別子。gatewayが user-id ヘッダーとして伝える値。
	ID int64 `json:"id"`
	// Username はユーザー名。
	Username string `json:"username"`
}

// UserStore はSQLiteに保存したユーザーを扱う。
type UserStore struct {
	db *sql.DB
}

// NewUserStore は新しいUserStoreを生成する。
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// Upsert はユーザー名のユーザーを取得し、存在しなければ作成する。
// 既存ユーザーの場合は最終ログイン日時を更新する。
func (s *UserStore) Upsert(ctx context.Context, username string) (User, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username) VALUES (?)
		ON CONFLICT(username) DO UPDATE SET last_login_at = datetime('now')
	`, username)
	if err != nil {
		return User{}, fmt.Errorf("ユーザーの保存に失敗: %w", err)
	}

	row := s.db.QueryRowContext(ctx, `SELECT id, username FROM users WHERE username = ?`, username)
	return scanUser(row)
}

// Get はIDでユーザーを取得する。存在しない場合は ErrUserNotFound を返す。
func (s *UserStore) Get(ctx context.Context, id int64) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, username FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// scanUser は1行をUserに変換する。
func scanUser(row *sql.Row) (User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("ユーザーの取得に失敗: %w", err)
	}
	return u, nil
}
