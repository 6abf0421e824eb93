// Package requestid はリクエストを追跡するための一意なIDを生成する。
package requestid

import (
	"github.com/google/uuid"
)

// Header はリクエストIDを伝播するHTTPヘッダーキー。
const Header = "request-id"

// New は新しいリクエストIDを生成する。
// UUIDv7を使うため、生成順にソート可能な値になる。
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		// 乱数源の読み取りに失敗した場合のみ到達する
		return uuid.NewString()
	}
	return id.String()
}
