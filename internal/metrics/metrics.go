// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// サインイン・サインアップ結果のラベル値
const (
	ResultSuccess  = "success"
	ResultFailure  = "failure"
	ResultConflict = "conflict"
)

// パスワードリセットの段階のラベル値
const (
	StageRequested = "requested"
	StageMailed    = "mailed"
	StageCompleted = "completed"
	StageRejected  = "rejected"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層やミドルウェアから利用する。
type MetricsCollector interface {
	RecordSignIn(result string)
	RecordSignUp(result string)
	RecordPasswordReset(stage string)
	RecordAuthGateRejection(reason string)
	RecordHTTPStatus(statusCode int)
	RecordRequestDuration(duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	signIn          *prometheus.CounterVec
	signUp          *prometheus.CounterVec
	passwordReset   *prometheus.CounterVec
	gateRejections  *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
	requestDuration prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		signIn: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "infomate_signin_total",
			Help: "ログイン試行の結果別の合計数",
		}, []string{"result"}),
		signUp: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "infomate_signup_total",
			Help: "ユーザー登録の結果別の合計数",
		}, []string{"result"}),
		passwordReset: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "infomate_password_reset_total",
			Help: "パスワードリセットの段階別の合計数",
		}, []string{"stage"}),
		gateRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "infomate_auth_gate_rejections_total",
			Help: "認証ゲートで拒否されたリクエストの理由別の合計数",
		}, []string{"reason"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "infomate_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "infomate_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.signIn,
		c.signUp,
		c.passwordReset,
		c.gateRejections,
		c.httpStatus,
		c.requestDuration,
	)

	return c
}

// RecordSignIn はログイン試行の結果を記録する。
func (c *Collector) RecordSignIn(result string) {
	c.signIn.WithLabelValues(result).Inc()
}

// RecordSignUp はユーザー登録の結果を記録する。
func (c *Collector) RecordSignUp(result string) {
	c.signUp.WithLabelValues(result).Inc()
}

// RecordPasswordReset はパスワードリセットの段階を記録する。
func (c *Collector) RecordPasswordReset(stage string) {
	c.passwordReset.WithLabelValues(stage).Inc()
}

// RecordAuthGateRejection は認証ゲートでの拒否理由を記録する。
func (c *Collector) RecordAuthGateRejection(reason string) {
	c.gateRejections.WithLabelValues(reason).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestDuration はリクエストの処理時間を記録する。
func (c *Collector) RecordRequestDuration(duration time.Duration) {
	c.requestDuration.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
