package handler

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/ffmesync/internal/pricing"
	"github.com/hitoshi/ffmesync/internal/storesync"
)

// 2024-03-01T00:00:00Z（シーズン2024、割引期間外）
const testAt int64 = 1709251200

// 2024-06-15T00:00:00Z（シーズン2024、割引期間内）
const discountAt int64 = 1718409600

func fixedClock(unix int64) func() time.Time {
	return func() time.Time { return time.Unix(unix, 0).UTC() }
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// mockQuoter はQuoterのモック実装。
type mockQuoter struct {
	quoteFn func(ctx context.Context, req pricing.Request) (pricing.Breakdown, error)
	got     []pricing.Request
}

func (m *mockQuoter) Quote(ctx context.Context, req pricing.Request) (pricing.Breakdown, error) {
	m.got = append(m.got, req)
	return m.quoteFn(ctx, req)
}

// mockSyncTrigger はSyncTriggerのモック実装。
type mockSyncTrigger struct {
	runOnceFn func(ctx context.Context) (*storesync.Report, error)
}

func (m *mockSyncTrigger) RunOnce(ctx context.Context) (*storesync.Report, error) {
	return m.runOnceFn(ctx)
}

// mockHealthChecker はHealthCheckerのモック実装。
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) Ping(ctx context.Context) error {
	return m.err
}

// mockMetrics は料金見積もりの結果ラベルだけを記録する。
type mockMetrics struct {
	quotes []string
}

func (m *mockMetrics) RecordSyncRun(string, time.Duration) {}
func (m *mockMetrics) RecordRecordsWritten(string, int)    {}
func (m *mockMetrics) RecordRecordFailures(int)            {}
func (m *mockMetrics) RecordUpstreamStatus(string, int)    {}
func (m *mockMetrics) RecordCredentialRefresh(bool)        {}
func (m *mockMetrics) RecordPriceQuote(outcome string) {
	m.quotes = append(m.quotes, outcome)
}
