package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// counterValue は指定メトリクスのラベル値に対応するカウンタ値を返す。
func counterValue(t *testing.T, reg *prometheus.Registry, name, labelValue string) (float64, bool) {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if len(m.GetLabel()) > 0 && m.GetLabel()[0].GetValue() == labelValue {
				return m.GetCounter().GetValue(), true
			}
		}
	}
	return 0, false
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordSignIn_IncrementsCounterWithResult はログイン結果別にカウンタが増加することを検証する。
func TestRecordSignIn_IncrementsCounterWithResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSignIn(ResultSuccess)
	c.RecordSignIn(ResultFailure)
	c.RecordSignIn(ResultFailure)

	if v, ok := counterValue(t, reg, "infomate_signin_total", ResultSuccess); !ok || v != 1 {
		t.Errorf("signin_total{result=success} = %v (found=%v), want 1", v, ok)
	}
	if v, ok := counterValue(t, reg, "infomate_signin_total", ResultFailure); !ok || v != 2 {
		t.Errorf("signin_total{result=failure} = %v (found=%v), want 2", v, ok)
	}
}

// TestRecordSignUp_IncrementsCounterWithResult は登録結果別にカウンタが増加することを検証する。
func TestRecordSignUp_IncrementsCounterWithResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSignUp(ResultSuccess)
	c.RecordSignUp(ResultConflict)

	if v, ok := counterValue(t, reg, "infomate_signup_total", ResultConflict); !ok || v != 1 {
		t.Errorf("signup_total{result=conflict} = %v (found=%v), want 1", v, ok)
	}
}

// TestRecordPasswordReset_IncrementsCounterWithStage はリセット段階別にカウンタが増加することを検証する。
func TestRecordPasswordReset_IncrementsCounterWithStage(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordPasswordReset(StageRequested)
	c.RecordPasswordReset(StageMailed)
	c.RecordPasswordReset(StageCompleted)
	c.RecordPasswordReset(StageRejected)
	c.RecordPasswordReset(StageRejected)

	if v, ok := counterValue(t, reg, "infomate_password_reset_total", StageRejected); !ok || v != 2 {
		t.Errorf("password_reset_total{stage=rejected} = %v (found=%v), want 2", v, ok)
	}
	if v, ok := counterValue(t, reg, "infomate_password_reset_total", StageCompleted); !ok || v != 1 {
		t.Errorf("password_reset_total{stage=completed} = %v (found=%v), want 1", v, ok)
	}
}

// TestRecordAuthGateRejection_IncrementsCounterWithReason は拒否理由別にカウンタが増加することを検証する。
func TestRecordAuthGateRejection_IncrementsCounterWithReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAuthGateRejection("sign_in_required")

	if v, ok := counterValue(t, reg, "infomate_auth_gate_rejections_total", "sign_in_required"); !ok || v != 1 {
		t.Errorf("auth_gate_rejections_total{reason=sign_in_required} = %v (found=%v), want 1", v, ok)
	}
}

// TestRecordHTTPStatus_IncrementsCounterWithLabel はHTTPステータスカウンタがラベル付きで増加することを検証する。
func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(404)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "infomate_http_status_total" {
			found = true
			if len(mf.GetMetric()) != 2 {
				t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
			}
			for _, m := range mf.GetMetric() {
				label := m.GetLabel()[0].GetValue()
				val := m.GetCounter().GetValue()
				switch label {
				case "200":
					if val != 2 {
						t.Errorf("http_status_total{status_code=200} = %v, want 2", val)
					}
				case "404":
					if val != 1 {
						t.Errorf("http_status_total{status_code=404} = %v, want 1", val)
					}
				default:
					t.Errorf("unexpected label value: %s", label)
				}
			}
		}
	}
	if !found {
		t.Error("infomate_http_status_total metric not found")
	}
}

// TestRecordRequestDuration_ObservesHistogram はリクエスト処理時間のヒストグラムに値が記録されることを検証する。
func TestRecordRequestDuration_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRequestDuration(100 * time.Millisecond)
	c.RecordRequestDuration(2 * time.Second)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "infomate_http_request_duration_seconds" {
			found = true
			h := mf.GetMetric()[0].GetHistogram()
			if h.GetSampleCount() != 2 {
				t.Errorf("sample_count = %d, want 2", h.GetSampleCount())
			}
			// 合計は0.1 + 2.0 = 2.1秒
			if h.GetSampleSum() < 2.0 || h.GetSampleSum() > 2.2 {
				t.Errorf("sample_sum = %v, want ~2.1", h.GetSampleSum())
			}
		}
	}
	if !found {
		t.Error("infomate_http_request_duration_seconds metric not found")
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSignIn(ResultSuccess)
	c.RecordSignUp(ResultSuccess)
	c.RecordPasswordReset(StageRequested)
	c.RecordAuthGateRejection("auth_failed")
	c.RecordHTTPStatus(200)
	c.RecordRequestDuration(500 * time.Millisecond)

	handler := Handler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	expectedMetrics := []string{
		"infomate_signin_total",
		"infomate_signup_total",
		"infomate_password_reset_total",
		"infomate_auth_gate_rejections_total",
		"infomate_http_status_total",
		"infomate_http_request_duration_seconds",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(bodyStr, metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}

// TestCollector_ImplementsMetricsCollectorInterface はCollectorがMetricsCollectorインターフェースを実装することを検証する。
func TestCollector_ImplementsMetricsCollectorInterface(t *testing.T) {
	reg := prometheus.NewRegistry()
	var _ MetricsCollector = NewCollector(reg)
}

// TestMultipleCollectors_IndependentRegistries は異なるレジストリで独立に動作することを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	c2 := NewCollector(reg2)

	c1.RecordSignIn(ResultSuccess)
	c2.RecordSignIn(ResultSuccess)
	c2.RecordSignIn(ResultSuccess)

	val1, _ := counterValue(t, reg1, "infomate_signin_total", ResultSuccess)
	val2, _ := counterValue(t, reg2, "infomate_signin_total", ResultSuccess)

	if val1 != 1 {
		t.Errorf("reg1 signin_total = %v, want 1", val1)
	}
	if val2 != 2 {
		t.Errorf("reg2 signin_total = %v, want 2", val2)
	}
}
