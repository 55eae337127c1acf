// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// auth.Observerを満たし、トークン検証と公開鍵取得の結果も記録する。
type Collector struct {
	verifications  *prometheus.CounterVec
	keyFetches     *prometheus.CounterVec
	keyFetchTime   prometheus.Histogram
	httpStatus     *prometheus.CounterVec
	taskOperations *prometheus.CounterVec
	usersDeleted   prometheus.Counter
	cascadedTasks  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskboard_token_verifications_total",
			Help: "結果別のトークン検証数",
		}, []string{"outcome"}),
		keyFetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskboard_realm_key_fetch_total",
			Help: "結果別のレルム公開鍵取得数",
		}, []string{"result"}),
		keyFetchTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "taskboard_realm_key_fetch_latency_seconds",
			Help:    "レルム公開鍵取得のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskboard_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		taskOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskboard_task_operations_total",
			Help: "操作別の成功したタスク操作数",
		}, []string{"operation"}),
		usersDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskboard_users_deleted_total",
			Help: "管理者により削除されたユーザー数",
		}),
		cascadedTasks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskboard_cascade_deleted_tasks_total",
			Help: "ユーザー削除に伴って削除されたタスク数",
		}),
	}

	reg.MustRegister(
		c.verifications,
		c.keyFetches,
		c.keyFetchTime,
		c.httpStatus,
		c.taskOperations,
		c.usersDeleted,
		c.cascadedTasks,
	)

	return c
}

// VerifyResult はトークン検証の結果を記録する。
func (c *Collector) VerifyResult(outcome string) {
	c.verifications.WithLabelValues(outcome).Inc()
}

// KeyFetched はレルム公開鍵の取得結果とレイテンシを記録する。
func (c *Collector) KeyFetched(err error, elapsed time.Duration) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.keyFetches.WithLabelValues(result).Inc()
	c.keyFetchTime.Observe(elapsed.Seconds())
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordTaskOperation は成功したタスク操作（create/update/delete）を記録する。
func (c *Collector) RecordTaskOperation(operation string) {
	c.taskOperations.WithLabelValues(operation).Inc()
}

// RecordCascadeDelete はユーザー削除と、連鎖削除されたタスク数を記録する。
func (c *Collector) RecordCascadeDelete(tasks int64) {
	c.usersDeleted.Inc()
	c.cascadedTasks.Add(float64(tasks))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

