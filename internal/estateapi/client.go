// Package estateapi は物件バックエンドのREST APIクライアントを提供する。
// 1クライアントが1セッション分のCookieとCSRFトークンを保持する。
package estateapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/estate/internal/model"
)

const (
	// csrfHeader はDjangoバックエンドがCSRFトークンを受け取るヘッダー名。
	csrfHeader = "X-CSRFToken"
	userAgent  = "Estate/1.0"
	// maxErrorBody はエラーレスポンスとして保持するボディの上限。
	maxErrorBody = 64 << 10
)

// Recorder は物件API呼び出しの計測先。metrics.Collectorが実装する。
type Recorder interface {
	RecordUpstreamRequest(endpoint string, statusCode int, duration time.Duration)
	RecordUpstreamFailure(endpoint string)
}

type nopRecorder struct{}

func (nopRecorder) RecordUpstreamRequest(string, int, time.Duration) {}
func (nopRecorder) RecordUpstreamFailure(string)                     {}

// Options はClient生成時の設定。
type Options struct {
	BaseURL             string
	SearchBuildingsPath string
	SearchLandPath      string
	// Timeout が0の場合はタイムアウトを設定しない。
	Timeout time.Duration
	// Transport は全セッションで共有する接続プール。nilの場合はhttp.DefaultTransport。
	Transport http.RoundTripper
	Logger    *slog.Logger
	Recorder  Recorder
}

// Client は物件APIのクライアント。
// リトライ・バックオフ・リクエストの集約は行わない。
type Client struct {
	httpClient          *http.Client
	jar                 *sessionJar
	base                *url.URL
	searchBuildingsPath string
	searchLandPath      string
	logger              *slog.Logger
	recorder            Recorder

	mu        sync.Mutex
	csrfToken string
}

// HTTPError は物件APIが2xx以外を返した場合のエラー。
type HTTPError struct {
	StatusCode int
	Method     string
	Path       string
	Body       string
	// Details はレスポンスJSONのdetailsフィールド（存在する場合）。
	Details any
}

// Error はerrorインターフェースを実装する。
func (e *HTTPError) Error() string {
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
}

// StatusCode はerrがHTTPErrorであればそのステータスコードを返す。それ以外は0。
func StatusCode(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// New はClientの新しいインスタンスを生成する。
// Cookie jarはクライアントごとに独立して作られる。
func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("物件APIのベースURLのパースに失敗しました: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("物件APIのベースURLのスキームが不正です: %q", opts.BaseURL)
	}

	jar, err := newJar()
	if err != nil {
		return nil, err
	}

	transport := opts.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var recorder Recorder = nopRecorder{}
	if opts.Recorder != nil {
		recorder = opts.Recorder
	}

	searchBuildings := opts.SearchBuildingsPath
	if searchBuildings == "" {
		searchBuildings = "/api/buildingss/"
	}
	searchLand := opts.SearchLandPath
	if searchLand == "" {
		searchLand = "/api/landss/"
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Jar:       jar,
			Timeout:   opts.Timeout,
		},
		jar:                 jar,
		base:                base,
		searchBuildingsPath: searchBuildings,
		searchLandPath:      searchLand,
		logger:              logger,
		recorder:            recorder,
	}, nil
}

// SetCookies は保存済みのバックエンドCookieをPathとDomainを保ったままjarに復元する。
func (c *Client) SetCookies(cookies []model.UpstreamCookie) {
	if len(cookies) == 0 {
		return
	}
	hc := make([]*http.Cookie, 0, len(cookies))
	for _, ck := range cookies {
		path := ck.Path
		if path == "" {
			path = "/"
		}
		hc = append(hc, &http.Cookie{Name: ck.Name, Value: ck.Value, Path: path, Domain: ck.Domain})
	}
	c.jar.SetCookies(c.base, hc)
}

// Cookies はバックエンドが発行したCookieをPathとDomainを含む保存形式で返す。
func (c *Client) Cookies() []model.UpstreamCookie {
	return c.jar.export()
}

// ResetCookies はjarを破棄してCookieを全て消去する。
func (c *Client) ResetCookies() error {
	jar, err := newJar()
	if err != nil {
		return err
	}
	c.jar = jar
	c.httpClient.Jar = jar
	return nil
}

// SetCSRFToken は更新系リクエストに付与するCSRFトークンを設定する。
func (c *Client) SetCSRFToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.csrfToken = token
}

// CurrentCSRFToken は保持しているCSRFトークンを返す。
func (c *Client) CurrentCSRFToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.csrfToken
}

// request は1回のAPI呼び出しを表す。
type request struct {
	method string
	// endpoint はメトリクス・ログ用のパステンプレート（例: /api/land/{id}）。
	endpoint    string
	path        string
	rawQuery    string
	body        io.Reader
	contentType string
}

func (c *Client) jsonRequest(method, endpoint, path string, payload any) (request, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return request{}, fmt.Errorf("リクエストJSONの生成に失敗しました: %w", err)
	}
	return request{
		method:      method,
		endpoint:    endpoint,
		path:        path,
		body:        bytes.NewReader(b),
		contentType: "application/json",
	}, nil
}

// do はリクエストを実行し、2xxであればレスポンスをoutにデコードする。
// outがnilの場合はボディを読み捨てる。生のボディを返す。
func (c *Client) do(ctx context.Context, r request, out any) (json.RawMessage, error) {
	// パスは文字列連結のみで組み立て、識別子をエスケープしない
	target := c.base.String() + r.path
	if r.rawQuery != "" {
		target += "?" + r.rawQuery
	}

	req, err := http.NewRequestWithContext(ctx, r.method, target, r.body)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if r.method != http.MethodGet {
		if token := c.CurrentCSRFToken(); token != "" {
			req.Header.Set(csrfHeader, token)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.recorder.RecordUpstreamFailure(r.endpoint)
		c.logger.Error("物件APIの呼び出しに失敗しました",
			slog.String("method", r.method),
			slog.String("endpoint", r.endpoint),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}
	defer resp.Body.Close()
	c.recorder.RecordUpstreamRequest(r.endpoint, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		httpErr := &HTTPError{
			StatusCode: resp.StatusCode,
			Method:     r.method,
			Path:       r.path,
			Body:       string(body),
			Details:    extractDetails(body),
		}
		c.logger.Warn("物件APIがエラーステータスを返しました",
			slog.String("method", r.method),
			slog.String("endpoint", r.endpoint),
			slog.Int("http_status", resp.StatusCode),
		)
		return nil, httpErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}
	if out != nil && len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, out); err != nil {
			c.logger.Error("物件APIのレスポンスのパースに失敗しました",
				slog.String("endpoint", r.endpoint),
				slog.String("error", err.Error()),
			)
			return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
		}
	}
	return json.RawMessage(body), nil
}

// extractDetails はエラーレスポンスJSONからdetailsフィールドを取り出す。
func extractDetails(body []byte) any {
	var envelope struct {
		Details any `json:"details"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil
	}
	return envelope.Details
}
