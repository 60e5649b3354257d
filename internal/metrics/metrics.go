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
// バックエンドクライアントとストアから利用する。
type MetricsCollector interface {
	RecordRequest(endpoint string, outcome string)
	RecordHTTPStatus(statusCode int)
	RecordLatency(endpoint string, duration time.Duration)
	RecordSessionTransition(status string)
	RecordCollectionSize(collection string, size int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	requests       *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	latency        *prometheus.HistogramVec
	sessionStatus  *prometheus.CounterVec
	collectionSize *prometheus.GaugeVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guildboard_backend_requests_total",
			Help: "バックエンドAPI呼び出しの合計数（エンドポイント・結果別）",
		}, []string{"endpoint", "outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guildboard_backend_http_status_total",
			Help: "バックエンドAPIのHTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "guildboard_backend_latency_seconds",
			Help:    "バックエンドAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		sessionStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guildboard_session_transitions_total",
			Help: "セッションステータスの遷移回数（遷移先別）",
		}, []string{"status"}),
		collectionSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "guildboard_collection_size",
			Help: "最後に取得したコレクションの件数",
		}, []string{"collection"}),
	}

	reg.MustRegister(
		c.requests,
		c.httpStatus,
		c.latency,
		c.sessionStatus,
		c.collectionSize,
	)

	return c
}

// RecordRequest はAPI呼び出しの結果を記録する。
func (c *Collector) RecordRequest(endpoint string, outcome string) {
	c.requests.WithLabelValues(endpoint, outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordLatency はAPI呼び出しのレイテンシを記録する。
func (c *Collector) RecordLatency(endpoint string, duration time.Duration) {
	c.latency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordSessionTransition はセッションステータスの遷移を記録する。
func (c *Collector) RecordSessionTransition(status string) {
	c.sessionStatus.WithLabelValues(status).Inc()
}

// RecordCollectionSize はコレクションの件数を記録する。
func (c *Collector) RecordCollectionSize(collection string, size int) {
	c.collectionSize.WithLabelValues(collection).Set(float64(size))
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordRequest(string, string) {}
func (Nop) RecordHTTPStatus(int) {}
func (Nop) RecordLatency(string, time.Duration) {}
func (Nop) RecordSessionTransition(string) {}
func (Nop) RecordCollectionSize(string, int) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
