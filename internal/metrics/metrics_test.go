package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric はレジストリから指定名・ラベルのメトリクスを探す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
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
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	t.Fatalf("metric %s %v not found", name, labels)
	return nil
}

func labelsMatch(m *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, lp := range m.GetLabel() {
		if v, ok := labels[lp.GetName()]; ok && v == lp.GetValue() {
			matched++
		}
	}
	return matched == len(labels)
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordSyncRun は結果別カウンタ・所要時間・最終成功時刻が記録されることを検証する。
func TestRecordSyncRun(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSyncRun(OutcomeSuccess, 2*time.Second)
	c.RecordSyncRun(OutcomeSuccess, 3*time.Second)
	c.RecordSyncRun(OutcomeAborted, time.Second)

	if v := findMetric(t, reg, "ffmesync_sync_runs_total", map[string]string{"outcome": "success"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("sync_runs_total{success} = %v, want 2", v)
	}
	if v := findMetric(t, reg, "ffmesync_sync_runs_total", map[string]string{"outcome": "aborted"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("sync_runs_total{aborted} = %v, want 1", v)
	}

	h := findMetric(t, reg, "ffmesync_sync_duration_seconds", nil).GetHistogram()
	if h.GetSampleCount() != 3 || h.GetSampleSum() != 6 {
		t.Errorf("sync_duration count = %d, sum = %v, want 3, 6", h.GetSampleCount(), h.GetSampleSum())
	}

	if v := findMetric(t, reg, "ffmesync_last_successful_sync_timestamp_seconds", nil).GetGauge().GetValue(); v == 0 {
		t.Error("last_successful_sync が設定されていない")
	}
}

// TestRecordRecordsWritten は種別ラベルごとに加算されることを検証する。
func TestRecordRecordsWritten(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRecordsWritten("create", 3)
	c.RecordRecordsWritten("update", 5)
	c.RecordRecordsWritten("create", 1)

	if v := findMetric(t, reg, "ffmesync_records_written_total", map[string]string{"kind": "create"}).GetCounter().GetValue(); v != 4 {
		t.Errorf("records_written_total{create} = %v, want 4", v)
	}
	if v := findMetric(t, reg, "ffmesync_records_written_total", map[string]string{"kind": "update"}).GetCounter().GetValue(); v != 5 {
		t.Errorf("records_written_total{update} = %v, want 5", v)
	}
}

func TestRecordRecordFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRecordFailures(2)

	if v := findMetric(t, reg, "ffmesync_record_failures_total", nil).GetCounter().GetValue(); v != 2 {
		t.Errorf("record_failures_total = %v, want 2", v)
	}
}

// TestRecordUpstreamStatus はデータソースとステータスコードのラベルで記録されることを検証する。
func TestRecordUpstreamStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordUpstreamStatus("myffme", 200)
	c.RecordUpstreamStatus("myffme", 200)
	c.RecordUpstreamStatus("extranet", 503)

	if v := findMetric(t, reg, "ffmesync_upstream_http_status_total", map[string]string{"source": "myffme", "status_code": "200"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("upstream{myffme,200} = %v, want 2", v)
	}
	if v := findMetric(t, reg, "ffmesync_upstream_http_status_total", map[string]string{"source": "extranet", "status_code": "503"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("upstream{extranet,503} = %v, want 1", v)
	}
}

func TestRecordCredentialRefresh(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCredentialRefresh(true)
	c.RecordCredentialRefresh(false)
	c.RecordCredentialRefresh(false)

	if v := findMetric(t, reg, "ffmesync_credential_refresh_total", map[string]string{"outcome": "success"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("credential_refresh{success} = %v, want 1", v)
	}
	if v := findMetric(t, reg, "ffmesync_credential_refresh_total", map[string]string{"outcome": "failure"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("credential_refresh{failure} = %v, want 2", v)
	}
}

func TestRecordPriceQuote(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordPriceQuote("fee_not_found")

	if v := findMetric(t, reg, "ffmesync_price_quotes_total", map[string]string{"outcome": "fee_not_found"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("price_quotes{fee_not_found} = %v, want 1", v)
	}
}

// TestMultipleCollectors_IndependentRegistries は異なるレジストリのCollectorが独立していることを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	_ = NewCollector(reg2)

	c1.RecordRecordFailures(1)

	if v := findMetric(t, reg2, "ffmesync_record_failures_total", nil).GetCounter().GetValue(); v != 0 {
		t.Errorf("reg2 record_failures_total = %v, want 0", v)
	}
}
