// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とミドルウェアから利用する。
type MetricsCollector interface {
	RecordPointsAwarded(activityType string, points int)
	RecordMinutesRecorded(minutes int)
	RecordDocumentIngested(pages int)
	RecordIngestionFailure(reason string)
	RecordNoteCreated()
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	pointsAwarded     *prometheus.CounterVec
	minutesRecorded   prometheus.Counter
	documentsIngested prometheus.Counter
	pagesExtracted    prometheus.Counter
	ingestionFailures *prometheus.CounterVec
	notesCreated      prometheus.Counter
	httpStatus        *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		pointsAwarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studyapp_points_awarded_total",
			Help: "アクティビティ種別ごとの付与ポイント合計",
		}, []string{"activity_type"}),
		minutesRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studyapp_minutes_recorded_total",
			Help: "報告された学習時間（分）の合計",
		}),
		documentsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studyapp_documents_ingested_total",
			Help: "取り込みに成功したPDFの合計数",
		}),
		pagesExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studyapp_pages_extracted_total",
			Help: "抽出したページの合計数",
		}),
		ingestionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studyapp_ingestion_failures_total",
			Help: "原因別のPDF取り込み失敗数",
		}, []string{"reason"}),
		notesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "studyapp_notes_created_total",
			Help: "作成されたノートの合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "studyapp_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.pointsAwarded,
		c.minutesRecorded,
		c.documentsIngested,
		c.pagesExtracted,
		c.ingestionFailures,
		c.notesCreated,
		c.httpStatus,
	)

	return c
}

// RecordPointsAwarded は付与ポイントを記録する。
func (c *Collector) RecordPointsAwarded(activityType string, points int) {
	c.pointsAwarded.WithLabelValues(activityType).Add(float64(points))
}

// RecordMinutesRecorded は報告された学習時間を記録する。
func (c *Collector) RecordMinutesRecorded(minutes int) {
	c.minutesRecorded.Add(float64(minutes))
}

// RecordDocumentIngested はPDF取り込み成功と抽出ページ数を記録する。
func (c *Collector) RecordDocumentIngested(pages int) {
	c.documentsIngested.Inc()
	c.pagesExtracted.Add(float64(pages))
}

// RecordIngestionFailure はPDF取り込み失敗を記録する。
func (c *Collector) RecordIngestionFailure(reason string) {
	c.ingestionFailures.WithLabelValues(reason).Inc()
}

// RecordNoteCreated はノート作成を記録する。
func (c *Collector) RecordNoteCreated() {
	c.notesCreated.Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Nop は何も記録しないMetricsCollector。メトリクス不要なコマンドやテストで使う。
type Nop struct{}

func (Nop) RecordPointsAwarded(string, int) {}
func (Nop) RecordMinutesRecorded(int)       {}
func (Nop) RecordDocumentIngested(int)      {}
func (Nop) RecordIngestionFailure(string)   {}
func (Nop) RecordNoteCreated()              {}
func (Nop) RecordHTTPStatus(int)            {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
