package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/nao1215/svcgate/pkg/httpclient"
)

// breakers はサービスごとのサーキットブレーカー。
// 無効な場合は m が nil で、すべての呼び出しをそのまま実行する。
// マップは構築後に変更しないため、参照に同期は不要。
type breakers struct {
	m map[string]*gobreaker.CircuitBreaker
}

// newBreakers はサービスごとのサーキットブレーカーを生成する。
// failures が0以下の場合は無効になる。
func newBreakers(services []string, failures int, timeout time.Duration, metrics *Metrics, logger *zap.Logger) *breakers {
	if failures <= 0 {
		return &breakers{}
	}

	threshold := uint32(failures) //nolint:gosec // 設定の検証で0以上を保証している
	m := make(map[string]*gobreaker.CircuitBreaker, len(services))
	for _, service := range services {
		m[service] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        service,
			MaxRequests: 1,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			IsSuccessful: isBreakerSuccess,
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("サーキットブレーカーの状態が変化しました",
					zap.String("service", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
				metrics.breakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
			},
		})
	}
	return &breakers{m: m}
}

// execute はサービスのサーキットブレーカーを通して fn を実行する。
func (b *breakers) execute(service string, fn func() (*httpclient.Response, error)) (*httpclient.Response, error) {
	cb, ok := b.m[service]
	if !ok {
		return fn()
	}
	res, err := cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		return nil, err
	}
	resp, _ := res.(*httpclient.Response)
	return resp, nil
}

// isBreakerSuccess はブレーカーの失敗として数えるかどうかを判定する。
// 接続失敗・通信失敗・5xxのみを失敗とし、4xxはバックエンドの正常な応答とみなす。
func isBreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var ue *httpclient.UpstreamError
	if errors.As(err, &ue) && ue.Kind == httpclient.KindStatus {
		return ue.StatusCode < http.StatusInternalServerError
	}
	return false
}

// isBreakerOpen はブレーカーによって呼び出しが拒否されたかどうかを返す。
func isBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
