package storesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hitoshi/ffmesync/internal/member"
	"github.com/hitoshi/ffmesync/internal/metrics"
	"github.com/hitoshi/ffmesync/internal/model"
	"github.com/hitoshi/ffmesync/internal/repository"
	"github.com/hitoshi/ffmesync/internal/season"
)

// enrichConcurrency は競技成績ページの同時取得数。
const enrichConcurrency = 4

// Gatherer は突合に必要なデータを一括取得するインターフェース。
type Gatherer interface {
	Gather(ctx context.Context, structureIDs []int, season int) (member.Input, error)
}

// ResultsSource は会員の競技成績を取得するインターフェース。
type ResultsSource interface {
	Fetch(ctx context.Context, licenseNumber string) ([]model.CompetitionResult, error)
}

// Report は1回の同期結果。
type Report struct {
	Season     int       `json:"season"`
	Members    int       `json:"members"`
	Created    int       `json:"created"`
	Linked     int       `json:"linked"`
	Updated    int       `json:"updated"`
	Unchanged  int       `json:"unchanged"`
	Failures   []string  `json:"failures"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}

// Runner は取得・突合・差分計算・書き込みの同期処理全体を実行する。
type Runner struct {
	gatherer Gatherer
	store    repository.UserStore
	planner  *Planner
	prefix   string
	results  ResultsSource
	metrics  metrics.MetricsCollector
	clock    season.Clock
	logger   *slog.Logger
}

// NewRunner はRunnerの新しいインスタンスを生成する。
// resultsとmetricsはnilでもよい。
func NewRunner(
	gatherer Gatherer,
	store repository.UserStore,
	prefix string,
	results ResultsSource,
	m metrics.MetricsCollector,
	logger *slog.Logger,
) *Runner {
	return &Runner{
		gatherer: gatherer,
		store:    store,
		planner:  NewPlanner(prefix),
		prefix:   prefix,
		results:  results,
		metrics:  m,
		clock:    time.Now,
		logger:   logger,
	}
}

// Run は指定クラブ群の会員を同期する。
// データ取得・一覧取得・書き込みのいずれかが失敗した場合は何も書き込まずにエラーを返す。
// 会員単位のデータ不整合はReportのFailuresに含め、他の会員の同期は継続する。
func (r *Runner) Run(ctx context.Context, structureIDs []int) (*Report, error) {
	began := time.Now()
	start := r.clock()
	target := season.Current(r.clock)

	report, err := r.run(ctx, structureIDs, target)
	duration := time.Since(began)

	if err != nil {
		r.recordRun(metrics.OutcomeAborted, duration)
		r.logger.Error("会員同期を中断しました",
			slog.Int("season", target),
			slog.Any("structure_ids", structureIDs),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	report.StartedAt = start
	report.DurationMS = duration.Milliseconds()
	r.recordRun(metrics.OutcomeSuccess, duration)
	r.logger.Info("会員同期が完了しました",
		slog.Int("season", target),
		slog.Int("members", report.Members),
		slog.Int("created", report.Created),
		slog.Int("linked", report.Linked),
		slog.Int("updated", report.Updated),
		slog.Int("unchanged", report.Unchanged),
		slog.Int("failures", len(report.Failures)),
		slog.Int64("duration_ms", report.DurationMS),
	)
	return report, nil
}

func (r *Runner) run(ctx context.Context, structureIDs []int, target int) (*Report, error) {
	input, err := r.gatherer.Gather(ctx, structureIDs, target)
	if err != nil {
		return nil, fmt.Errorf("failed to gather members: %w", err)
	}

	result := member.Reconcile(input, target)
	report := &Report{Season: target, Members: len(result.Members), Failures: []string{}}
	for _, f := range result.Failures {
		r.logger.Warn("会員データに不整合があるためスキップしました",
			slog.String("user_id", f.UserID),
			slog.String("first_name", f.FirstName),
			slog.String("last_name", f.LastName),
			slog.String("error", f.Err.Error()),
		)
		report.Failures = append(report.Failures, f.Error())
	}

	members := result.Members
	if r.results != nil {
		if members, err = r.enrich(ctx, members); err != nil {
			return nil, fmt.Errorf("failed to fetch competition results: %w", err)
		}
	}

	existing, err := r.store.ListByPrefix(ctx, r.prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list stored users: %w", err)
	}

	plan, matchErrs := r.planner.Plan(members, existing)
	for _, err := range matchErrs {
		var me *MatchError
		var re *member.RecordError
		switch {
		case errors.As(err, &me):
			r.logger.Warn("既存アカウントを一意に特定できないため紐付けをスキップしました",
				slog.String("user_id", me.UserID),
				slog.String("first_name", me.FirstName),
				slog.String("last_name", me.LastName),
				slog.Any("candidates", me.Candidates),
			)
		case errors.As(err, &re):
			r.logger.Warn("会員メタデータに不整合があるため書き込みをスキップしました",
				slog.String("user_id", re.UserID),
				slog.String("first_name", re.FirstName),
				slog.String("last_name", re.LastName),
				slog.String("error", re.Err.Error()),
			)
		}
		report.Failures = append(report.Failures, err.Error())
	}

	if err := Apply(ctx, r.store, plan); err != nil {
		return nil, err
	}

	report.Created = plan.Created
	report.Linked = plan.Linked
	report.Updated = plan.Updated
	report.Unchanged = plan.Unchanged
	r.recordWrites(report, len(result.Failures)+len(matchErrs))
	return report, nil
}

// enrich は会員ごとに競技成績を取得して付与する。取得に失敗した会員は成績なしのまま続行する。
// 取得中にctxがキャンセルされた場合は、成績が欠けた会員を書き込まないようエラーを返す。
func (r *Runner) enrich(ctx context.Context, members []model.Member) ([]model.Member, error) {
	enriched := make([]model.Member, len(members))
	copy(enriched, members)

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(enrichConcurrency)
	for i := range enriched {
		m := &enriched[i]
		if m.Metadata.LicenseNumber == nil {
			continue
		}
		licenseNumber := *m.Metadata.LicenseNumber
		eg.Go(func() error {
			results, err := r.results.Fetch(egCtx, licenseNumber)
			if err != nil {
				r.logger.Warn("競技成績の取得に失敗しました",
					slog.String("user_id", m.ExternalID()),
					slog.String("error", err.Error()),
				)
				return nil
			}
			m.Metadata.CompetitionResults = results
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	// egCtxはWaitの完了時に必ずキャンセルされるため、呼び出し元のctxで判定する
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return enriched, nil
}

func (r *Runner) recordRun(outcome string, duration time.Duration) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordSyncRun(outcome, duration)
}

func (r *Runner) recordWrites(report *Report, failures int) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordRecordsWritten("create", report.Created)
	r.metrics.RecordRecordsWritten("link", report.Linked)
	r.metrics.RecordRecordsWritten("update", report.Updated)
	r.metrics.RecordRecordsWritten("unchanged", report.Unchanged)
	r.metrics.RecordRecordFailures(failures)
}
