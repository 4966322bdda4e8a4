// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// APIクライアントや画面サービス層から利用する。
type MetricsCollector interface {
	RecordUpstreamRequest(endpoint string, statusCode int, duration time.Duration)
	RecordUpstreamFailure(endpoint string)
	RecordScreenMount(screen string)
	RecordFetchAbsorbed(screen string)
	RecordFavoriteSave(kind string, result string)
	RecordFormSubmission(form string, ok bool)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	upstreamRequests *prometheus.CounterVec
	upstreamFailures *prometheus.CounterVec
	upstreamLatency  prometheus.Histogram
	screenMounts     *prometheus.CounterVec
	fetchAbsorbed    *prometheus.CounterVec
	favoriteSaves    *prometheus.CounterVec
	formSubmissions  *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estate_upstream_requests_total",
			Help: "物件APIへのリクエスト数（エンドポイント・ステータスコード別）",
		}, []string{"endpoint", "status_code"}),
		upstreamFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estate_upstream_failures_total",
			Help: "物件APIへの接続失敗数",
		}, []string{"endpoint"}),
		upstreamLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "estate_upstream_latency_seconds",
			Help:    "物件API呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		screenMounts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estate_screen_mounts_total",
			Help: "画面マウント（再取得）の回数",
		}, []string{"screen"}),
		fetchAbsorbed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estate_fetch_absorbed_total",
			Help: "画面側で吸収された取得失敗の数",
		}, []string{"screen"}),
		favoriteSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estate_favorite_saves_total",
			Help: "お気に入り保存操作の数（結果別）",
		}, []string{"kind", "result"}),
		formSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "estate_form_submissions_total",
			Help: "フォーム送信の数（成否別）",
		}, []string{"form", "outcome"}),
	}

	reg.MustRegister(
		c.upstreamRequests,
		c.upstreamFailures,
		c.upstreamLatency,
		c.screenMounts,
		c.fetchAbsorbed,
		c.favoriteSaves,
		c.formSubmissions,
	)

	return c
}

// RecordUpstreamRequest は物件APIの応答を記録する。
func (c *Collector) RecordUpstreamRequest(endpoint string, statusCode int, duration time.Duration) {
	c.upstreamRequests.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
	c.upstreamLatency.Observe(duration.Seconds())
}

// RecordUpstreamFailure は物件APIへの接続失敗を記録する。
func (c *Collector) RecordUpstreamFailure(endpoint string) {
	c.upstreamFailures.WithLabelValues(endpoint).Inc()
}

// RecordScreenMount は画面マウントを記録する。
func (c *Collector) RecordScreenMount(screen string) {
	c.screenMounts.WithLabelValues(screen).Inc()
}

// RecordFetchAbsorbed は画面で吸収された取得失敗を記録する。
func (c *Collector) RecordFetchAbsorbed(screen string) {
	c.fetchAbsorbed.WithLabelValues(screen).Inc()
}

// RecordFavoriteSave はお気に入り保存の結果を記録する。
// resultは created, already_saved, failed のいずれか。
func (c *Collector) RecordFavoriteSave(kind string, result string) {
	c.favoriteSaves.WithLabelValues(kind, result).Inc()
}

// RecordFormSubmission はフォーム送信の成否を記録する。
func (c *Collector) RecordFormSubmission(form string, ok bool) {
	outcome := "error"
	if ok {
		outcome = "success"
	}
	c.formSubmissions.WithLabelValues(form, outcome).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// NopCollector は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type NopCollector struct{}

func (NopCollector) RecordUpstreamRequest(string, int, time.Duration) {}
func (NopCollector) RecordUpstreamFailure(string)                     {}
func (NopCollector) RecordScreenMount(string)                         {}
func (NopCollector) RecordFetchAbsorbed(string)                       {}
func (NopCollector) RecordFavoriteSave(string, string)                {}
func (NopCollector) RecordFormSubmission(string, bool)                {}
