package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nao1215/svcgate/internal/registry"
	"github.com/nao1215/svcgate/pkg/httpclient"
	"github.com/nao1215/svcgate/pkg/middleware"
	"github.com/nao1215/svcgate/pkg/requestid"
)

// UserIDHeader は認証済みユーザーIDをバックエンドへ伝えるヘッダーキー。
// 呼び出し元から受け取った値は信用せず、常に取り除く。
const UserIDHeader = "user-id"

// dropHeaders は転送時に取り除くヘッダー。
// ボディは再シリアライズするためContent-Lengthは送り直す。
// Accept-Encodingは転送先との圧縮をトランスポートに任せるために取り除く。
var dropHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Content-Length",
	"Accept-Encoding",
	UserIDHeader,
}

// ErrAuthServiceMismatch は設定の認証サービス名とサービス対応表の認証サービスが一致しないことを表す。
var ErrAuthServiceMismatch = errors.New("認証サービス名がサービス対応表と一致しません")

// Server はAPI Gatewayサービスの HTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// cfg はGatewayサービスの設定。
	cfg Config
	// registry はサービス名とベースアドレスの対応表。
	registry *registry.Registry
	// client はバックエンドへの転送に使う共有HTTPクライアント。
	client *httpclient.Client
	// auth は認証サービスへのトークン検証の委譲先。
	auth *AuthDelegate
	// breakers はサービスごとのサーキットブレーカー。
	breakers *breakers
	// metrics はPrometheusメトリクス。
	metrics *Metrics
	// logger は構造化ロガー。
	logger *zap.Logger
	// newRequestID はリクエストIDの生成関数。
	newRequestID func() string
}

// Option はServerの生成オプション。
type Option func(*Server)

// WithRequestIDGenerator はリクエストIDの生成関数を差し替える。
func WithRequestIDGenerator(fn func() string) Option {
	return func(s *Server) {
		s.newRequestID = fn
	}
}

// NewServer は新しいGatewayサーバーを生成する。
// reg は cfg.AuthServiceName を認証サービスとして構築されている必要がある。promReg にメトリクスを登録し、/metrics で公開する。
func NewServer(cfg Config, reg *registry.Registry, logger *zap.Logger, promReg *prometheus.Registry, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, errors.New("サービス対応表が指定されていません")
	}
	// 検証の宛先と検証を省略するサービスは同じでなければならない
	if reg.AuthService() != cfg.AuthServiceName {
		return nil, fmt.Errorf("%w: 設定=%q 対応表=%q", ErrAuthServiceMismatch, cfg.AuthServiceName, reg.AuthService())
	}
	authBase, ok := reg.Resolve(cfg.AuthServiceName)
	if !ok {
		return nil, fmt.Errorf("%w: %q", registry.ErrAuthServiceMissing, cfg.AuthServiceName)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if promReg == nil {
		promReg = prometheus.NewRegistry()
	}

	client := httpclient.New(httpclient.Config{Timeout: cfg.UpstreamTimeout})
	metrics := NewMetrics(promReg)

	router := gin.New()
	router.RedirectTrailingSlash = false
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.AccessLog(logger, "/health", "/metrics"))

	s := &Server{
		router:       router,
		cfg:          cfg,
		registry:     reg,
		client:       client,
		auth:         NewAuthDelegate(client, authBase, cfg.APIPrefix, cfg.AuthServiceName, cfg.VerifyTokenPath),
		breakers:     newBreakers(reg.Names(), cfg.BreakerFailures, cfg.BreakerTimeout, metrics, logger),
		metrics:      metrics,
		logger:       logger,
		newRequestID: requestid.New,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRoutes(promReg)

	return s, nil
}

// Handler はサーバーのHTTPハンドラを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、ctx がキャンセルされるとグレースフルシャットダウンする。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Gatewayサービスを起動します",
			zap.String("addr", srv.Addr),
			zap.Strings("services", s.registry.Names()),
			zap.String("auth_service", s.registry.AuthService()),
			zap.String("verify_url", s.auth.VerifyURL()),
			zap.Duration("upstream_timeout", s.client.Timeout()),
			zap.String("error_mode", string(s.cfg.ErrorMode)),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Gatewayサービスを停止します")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("シャットダウンに失敗: %w", err)
	}
	return nil
}

// setupRoutes はAPIルーティングを設定する。
// /health と /metrics 以外のすべてのパスは転送処理に渡す。
func (s *Server) setupRoutes(promReg *prometheus.Registry) {
	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway", "services": s.registry.Len()})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})))

	s.router.NoRoute(s.handleProxy())
}

// handleProxy はリクエストをサービスへ転送するハンドラを返す。
func (s *Server) handleProxy() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := s.newRequestID()
		c.Set(middleware.ContextKeyRequestID, requestID)
		c.Header(requestid.Header, requestID)

		service, resp, err := s.proxy(c.Writer, c.Request, requestID)
		if err != nil {
			s.respondError(c, service, err)
			return
		}

		s.metrics.requestsTotal.WithLabelValues(service, "success").Inc()
		c.Data(resp.StatusCode, resp.ContentType(), resp.Body)
	}
}

// proxy は1リクエストを ROUTE → AUTH → FORWARD の順に処理する。
// 戻り値の service はメトリクスのラベルに使うサービス名。
func (s *Server) proxy(w http.ResponseWriter, r *http.Request, requestID string) (string, *httpclient.Response, error) {
	ctx := r.Context()

	// ROUTE
	route, err := resolveRoute(s.registry, r.Method, r.URL.EscapedPath())
	if err != nil {
		return unknownService, nil, err
	}

	// AUTH（認証サービス自身へのリクエストは検証しない）
	var userID string
	if !s.registry.IsAuthService(route.Service) {
		outcome, err := s.auth.Verify(ctx, r.Header.Get("Authorization"))
		if err != nil {
			s.metrics.authChecksTotal.WithLabelValues("error").Inc()
			return route.Service, nil, errInternal("認証処理に失敗しました", err)
		}
		if !outcome.IsAuthenticated() {
			s.metrics.authChecksTotal.WithLabelValues("rejected").Inc()
			return route.Service, nil, errUnauthorized(outcome.Reason())
		}
		s.metrics.authChecksTotal.WithLabelValues("authenticated").Inc()
		userID = outcome.UserID()
	}

	// FORWARD
	body, err := readBody(w, r, s.cfg.MaxBodyBytes)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return route.Service, nil, errPayloadTooLarge(tooLarge.Limit, err)
		}
		return route.Service, nil, errInternal("リクエストの読み取りに失敗しました", err)
	}
	req := httpclient.Request{
		Method: r.Method,
		URL:    route.TargetURL(s.cfg.APIPrefix, r.URL.RawQuery),
		Header: outboundHeader(r.Header, requestID, userID),
		Body:   body,
	}

	start := time.Now()
	resp, err := s.breakers.execute(route.Service, func() (*httpclient.Response, error) {
		return s.client.Forward(ctx, req)
	})
	s.metrics.upstreamDuration.WithLabelValues(route.Service).Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.upstreamErrorsTotal.WithLabelValues(route.Service, upstreamErrorKind(err)).Inc()
		return route.Service, nil, errInternal("内部サービスとの通信に失敗しました", err)
	}
	return route.Service, resp, nil
}

// respondError はエラーを1つのHTTPレスポンスとして返す。
func (s *Server) respondError(c *gin.Context, service string, err error) {
	kind := kindOf(err)
	s.metrics.requestsTotal.WithLabelValues(service, kind.String()).Inc()

	fields := []zap.Field{
		zap.String("service", service),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("request_id", c.GetString(middleware.ContextKeyRequestID)),
		zap.Error(err),
	}
	if kind == KindInternal {
		s.logger.Error("リクエストの転送に失敗しました", fields...)
	} else {
		s.logger.Debug("リクエストを拒否しました", fields...)
	}

	if s.cfg.ErrorMode == ErrorModePassthrough && kind == KindInternal {
		if status, contentType, body, ok := passthroughError(err); ok {
			c.Data(status, contentType, body)
			return
		}
	}

	message := "内部サーバーエラーが発生しました"
	var ge *Error
	if errors.As(err, &ge) && ge.Message != "" {
		message = ge.Message
	}
	c.JSON(kind.Status(), gin.H{"error": message})
}

// passthroughError は転送失敗をバックエンド由来のステータスに変換する。
// バックエンドのエラーレスポンスはそのまま、接続失敗とブレーカーによる拒否は503、
// その他の通信失敗は502として返す。転送失敗でない場合は false を返す。
func passthroughError(err error) (status int, contentType string, body []byte, ok bool) {
	if isBreakerOpen(err) {
		return http.StatusServiceUnavailable, "application/json", jsonError("サービスが一時的に利用できません"), true
	}
	var ue *httpclient.UpstreamError
	if !errors.As(err, &ue) {
		return 0, "", nil, false
	}
	switch ue.Kind {
	case httpclient.KindStatus:
		return ue.StatusCode, ue.ContentType, ue.Body, true
	case httpclient.KindConnect:
		return http.StatusServiceUnavailable, "application/json", jsonError("サービスに接続できません"), true
	default:
		return http.StatusBadGateway, "application/json", jsonError("サービスとの通信に失敗しました"), true
	}
}

// jsonError はエラーメッセージのJSONボディを生成する。
func jsonError(message string) []byte {
	return fmt.Appendf(nil, `{"error":%q}`, message)
}

// upstreamErrorKind はメトリクス用に転送失敗の種類を返す。
func upstreamErrorKind(err error) string {
	if isBreakerOpen(err) {
		return "circuit_open"
	}
	if kind, ok := httpclient.KindOf(err); ok {
		return kind.String()
	}
	return "request"
}

// readBody はリクエストボディを最大 limit バイトまで読み切る。ボディが無い場合は nil を返す。
// 上限を超えた場合は *http.MaxBytesError を返す。
func readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	body := http.MaxBytesReader(w, r.Body, limit)
	defer body.Close()
	return io.ReadAll(body)
}

// outboundHeader は転送用のヘッダーを組み立てる。
// 同じキーが複数ある場合は最後の値を使う。request-id は常に上書きし、
// user-id は認証に成功した場合のみ設定する。
func outboundHeader(in http.Header, requestID, userID string) http.Header {
	out := make(http.Header, len(in)+2)
	for key, values := range in {
		if len(values) == 0 {
			continue
		}
		out.Set(key, values[len(values)-1])
	}
	for _, key := range dropHeaders {
		out.Del(key)
	}
	out.Set(requestid.Header, requestID)
	if userID != "" {
		out.Set(UserIDHeader, userID)
	}
	return out
}
