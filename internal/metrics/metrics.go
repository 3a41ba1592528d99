// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 同期処理の結果ラベル。
const (
	OutcomeSuccess = "success"
	OutcomeAborted = "aborted"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 同期処理、外部APIクライアント、認証情報の更新、料金見積もりから利用する。
type MetricsCollector interface {
	RecordSyncRun(outcome string, duration time.Duration)
	RecordRecordsWritten(kind string, count int)
	RecordRecordFailures(count int)
	RecordUpstreamStatus(source string, statusCode int)
	RecordCredentialRefresh(success bool)
	RecordPriceQuote(outcome string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	syncRuns           *prometheus.CounterVec
	syncDuration       prometheus.Histogram
	recordsWritten     *prometheus.CounterVec
	recordFailures     prometheus.Counter
	upstreamStatus     *prometheus.CounterVec
	credentialRefresh  *prometheus.CounterVec
	priceQuotes        *prometheus.CounterVec
	lastSuccessfulSync prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		syncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ffmesync_sync_runs_total",
			Help: "会員同期の実行回数（結果別）",
		}, []string{"outcome"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ffmesync_sync_duration_seconds",
			Help:    "会員同期1回あたりの所要時間（秒）",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		recordsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ffmesync_records_written_total",
			Help: "同期で処理した利用者レコード数（種別別）",
		}, []string{"kind"}),
		recordFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ffmesync_record_failures_total",
			Help: "データ不整合によりスキップした会員数",
		}),
		upstreamStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ffmesync_upstream_http_status_total",
			Help: "外部プラットフォームのHTTPステータスコード別レスポンス数",
		}, []string{"source", "status_code"}),
		credentialRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ffmesync_credential_refresh_total",
			Help: "認証情報の更新回数（結果別）",
		}, []string{"outcome"}),
		priceQuotes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ffmesync_price_quotes_total",
			Help: "料金見積もりの回数（結果別）",
		}, []string{"outcome"}),
		lastSuccessfulSync: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ffmesync_last_successful_sync_timestamp_seconds",
			Help: "最後に成功した会員同期の完了時刻（Unix秒）",
		}),
	}

	reg.MustRegister(
		c.syncRuns,
		c.syncDuration,
		c.recordsWritten,
		c.recordFailures,
		c.upstreamStatus,
		c.credentialRefresh,
		c.priceQuotes,
		c.lastSuccessfulSync,
	)

	return c
}

// RecordSyncRun は同期の実行結果と所要時間を記録する。
func (c *Collector) RecordSyncRun(outcome string, duration time.Duration) {
	c.syncRuns.WithLabelValues(outcome).Inc()
	c.syncDuration.Observe(duration.Seconds())
	if outcome == OutcomeSuccess {
		c.lastSuccessfulSync.SetToCurrentTime()
	}
}

// RecordRecordsWritten は種別（create/update/unchanged）ごとのレコード数を記録する。
func (c *Collector) RecordRecordsWritten(kind string, count int) {
	c.recordsWritten.WithLabelValues(kind).Add(float64(count))
}

// RecordRecordFailures はスキップした会員数を記録する。
func (c *Collector) RecordRecordFailures(count int) {
	c.recordFailures.Add(float64(count))
}

// RecordUpstreamStatus は外部APIのHTTPステータスコードを記録する。
func (c *Collector) RecordUpstreamStatus(source string, statusCode int) {
	c.upstreamStatus.WithLabelValues(source, strconv.Itoa(statusCode)).Inc()
}

// RecordCredentialRefresh は認証情報の更新結果を記録する。
func (c *Collector) RecordCredentialRefresh(success bool) {
	outcome := "failure"
	if success {
		outcome = OutcomeSuccess
	}
	c.credentialRefresh.WithLabelValues(outcome).Inc()
}

// RecordPriceQuote は料金見積もりの結果を記録する。
func (c *Collector) RecordPriceQuote(outcome string) {
	c.priceQuotes.WithLabelValues(outcome).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
