package gateway

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		kind   Kind
		status int
		label  string
	}{
		{KindNotFound, http.StatusNotFound, "not_found"},
		{KindMethodNotAllowed, http.StatusMethodNotAllowed, "method_not_allowed"},
		{KindUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{KindInternal, http.StatusInternalServerError, "internal"},
		{KindPayloadTooLarge, http.StatusRequestEntityTooLarge, "payload_too_large"},
		{Kind(0), http.StatusInternalServerError, "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.status, tt.kind.Status())
			assert.Equal(t, tt.label, tt.kind.String())
		})
	}
}

func TestError(t *testing.T) {
	t.Parallel()

	t.Run("同じ種別の比較用エラーと一致すること", func(t *testing.T) {
		t.Parallel()

		err := fmt.Errorf("wrap: %w", errServiceNotFound("orders"))
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NotErrorIs(t, err, ErrInternal)
	})

	t.Run("元になったエラーを辿れること", func(t *testing.T) {
		t.Parallel()

		cause := errors.New("connection refused")
		err := errInternal("転送に失敗しました", cause)
		assert.ErrorIs(t, err, cause)
		assert.ErrorIs(t, err, ErrInternal)
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("ボディ上限超過のエラーは上限と元のエラーを保持すること", func(t *testing.T) {
		t.Parallel()

		cause := &http.MaxBytesError{Limit: 16}
		err := errPayloadTooLarge(16, cause)
		assert.ErrorIs(t, err, ErrPayloadTooLarge)
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "16")
	})

	t.Run("メッセージを持つエラー同士は一致しないこと", func(t *testing.T) {
		t.Parallel()

		assert.NotErrorIs(t, errUnauthorized("a"), errUnauthorized("a"))
	})

	t.Run("gatewayエラーでない場合はKindInternalとみなすこと", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, KindInternal, kindOf(errors.New("boom")))
		assert.Equal(t, KindUnauthorized, kindOf(fmt.Errorf("wrap: %w", errUnauthorized("x"))))
	})
}
