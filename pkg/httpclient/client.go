package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// tracer はサービス間通信のスパンを記録するトレーサー。
var tracer = otel.Tracer("svcgate/httpclient")

// Config はHTTPクライアントの設定。
type Config struct {
	// Timeout は1回の呼び出しの上限時間。レスポンスボディの読み取りまでを含む。
	Timeout time.Duration
	// DialTimeout はTCP接続確立の上限時間。
	DialTimeout time.Duration
	// MaxIdleConns は全接続先合計のアイドル接続数の上限。
	MaxIdleConns int
	// MaxIdleConnsPerHost は接続先ごとのアイドル接続数の上限。
	MaxIdleConnsPerHost int
	// IdleConnTimeout はアイドル接続を閉じるまでの時間。
	IdleConnTimeout time.Duration
}

// DefaultConfig はデフォルトのクライアント設定を返す。
func DefaultConfig() Config {
	return Config{
		Timeout:             30 * time.Second,
		DialTimeout:         5 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	}
}

// Client はサービス間通信用のHTTPクライアント。
// 接続プールを持ち、複数のゴルーチンから同時に使用できる。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
	// timeout は1回の呼び出しの上限時間。
	timeout time.Duration
}

// New は新しいサービス間通信用HTTPクライアントを生成する。
// ゼロ値の項目には DefaultConfig の値を使う。
func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = def.DialTimeout
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = def.MaxIdleConns
	}
	if cfg.MaxIdleConnsPerHost <= 0 {
		cfg.MaxIdleConnsPerHost = def.MaxIdleConnsPerHost
	}
	if cfg.IdleConnTimeout <= 0 {
		cfg.IdleConnTimeout = def.IdleConnTimeout
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: cfg.DialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
	}
	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			// リダイレクトは追従せず、そのまま呼び出し元へ返す
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		timeout: cfg.Timeout,
	}
}

// Timeout は1回の呼び出しの上限時間を返す。
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Request は転送するリクエスト。
type Request struct {
	// Method はHTTPメソッド。
	Method string
	// URL は転送先の完全なURL。
	URL string
	// Header は転送するヘッダー。
	Header http.Header
	// Body は受信したリクエストボディ。JSONとして解釈できない場合は送信しない。
	Body []byte
}

// Response は転送先から受け取ったレスポンス。
type Response struct {
	// StatusCode は転送先が返したステータス。
	StatusCode int
	// Header は転送先が返したヘッダー。
	Header http.Header
	// Body は転送先が返したボディ。
	Body []byte
}

// ContentType はレスポンスのContent-Typeを返す。未設定の場合はapplication/jsonとみなす。
func (r *Response) ContentType() string {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		return ct
	}
	return "application/json"
}

// Forward はリクエストを転送先へ送信する。
// 転送先が400以上のステータスを返した場合は KindStatus の UpstreamError を返す。
func (c *Client) Forward(ctx context.Context, r Request) (*Response, error) {
	body := NormalizeJSONBody(r.Body)
	header := r.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	if body != nil {
		header.Set("Content-Type", "application/json")
	}

	resp, err := c.do(ctx, r.Method, r.URL, header, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, statusError(r.Method, r.URL, resp)
	}
	return resp, nil
}

// PostJSON は指定URLにJSONボディでPOSTリクエストを送信する。
// 2xx以外のステータスは KindStatus の UpstreamError として返す。
// レスポンスボディをresultにデシリアライズする。
func (c *Client) PostJSON(ctx context.Context, url string, body any, result any) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("リクエストボディのシリアライズに失敗: %w", err)
	}

	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Accept", "application/json")

	resp, err := c.do(ctx, http.MethodPost, url, header, jsonBody)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(http.MethodPost, url, resp)
	}

	if result != nil {
		dec := json.NewDecoder(bytes.NewReader(resp.Body))
		dec.UseNumber()
		if err := dec.Decode(result); err != nil {
			return fmt.Errorf("%w: %w", ErrDecodeResponse, err)
		}
	}
	return nil
}

// do はHTTPリクエストを実行しボディを読み切る共通処理。
// 通信失敗は UpstreamError に分類して返す。リクエストを作成できない場合は通常のエラーを返す。
func (c *Client) do(ctx context.Context, method, url string, header http.Header, body []byte) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "httpclient "+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.full", url),
		),
	)
	defer span.End()

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}
	req.Header = header
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &UpstreamError{Kind: classify(err), Method: method, URL: url, Cause: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &UpstreamError{Kind: KindTransport, Method: method, URL: url, Cause: fmt.Errorf("レスポンスの読み取りに失敗: %w", err)}
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if resp.StatusCode >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, resp.Status)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       respBody,
	}, nil
}

// statusError はエラーステータスのレスポンスから UpstreamError を生成する。
func statusError(method, url string, resp *Response) *UpstreamError {
	return &UpstreamError{
		Kind:        KindStatus,
		Method:      method,
		URL:         url,
		StatusCode:  resp.StatusCode,
		Body:        resp.Body,
		ContentType: resp.ContentType(),
	}
}

// NormalizeJSONBody はボディをJSONとして解釈し、コンパクトに再シリアライズする。
// 空のボディやJSONとして解釈できないボディは nil を返す。
func NormalizeJSONBody(raw []byte) []byte {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return nil
	}
	return buf.Bytes()
}
