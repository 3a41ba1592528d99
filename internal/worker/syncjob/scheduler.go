// Package syncjob は会員同期の定期実行を提供する。
package syncjob

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/ffmesync/internal/storesync"
	"github.com/hitoshi/ffmesync/internal/worker/retry"
)

// ErrAlreadyRunning は同期がすでに実行中であることを示す。
var ErrAlreadyRunning = errors.New("sync already running")

// SyncRunner は1回分の同期処理の実行インターフェース。
type SyncRunner interface {
	Run(ctx context.Context, structureIDs []int) (*storesync.Report, error)
}

// Scheduler は一定間隔で会員同期を実行する。
// 同時に実行される同期は常に1つだけで、失敗時は指数バックオフで再試行を早める。
type Scheduler struct {
	runner       SyncRunner
	structureIDs []int
	timeout      time.Duration
	backoff      retry.Backoff
	logger       *slog.Logger

	mu      sync.Mutex
	running bool
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// timeoutが0以下の場合はデフォルト値10分を使用する。
func NewScheduler(runner SyncRunner, structureIDs []int, timeout time.Duration, logger *slog.Logger) *Scheduler {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Scheduler{
		runner:       runner,
		structureIDs: structureIDs,
		timeout:      timeout,
		backoff:      retry.Backoff{Initial: time.Minute, Max: 30 * time.Minute},
		logger:       logger,
	}
}

// Start は起動直後に1回同期し、以降interval間隔で同期を繰り返す。
// 同期に失敗した場合は次回までの待ち時間をバックオフ（interval以下）に短縮する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	s.logger.Info("同期スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Any("structure_ids", s.structureIDs),
	)

	failures := 0
	for {
		if _, err := s.RunOnce(ctx); err != nil {
			failures++
		} else {
			failures = 0
		}

		wait := s.nextDelay(interval, failures)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("同期スケジューラを停止しました")
			return
		case <-timer.C:
		}
	}
}

func (s *Scheduler) nextDelay(interval time.Duration, failures int) time.Duration {
	if failures == 0 {
		return interval
	}
	wait := s.backoff.Delay(failures)
	if wait > interval {
		wait = interval
	}
	return retry.Jitter(wait, wait/10)
}

// RunOnce は同期を1回実行する。すでに実行中の場合は ErrAlreadyRunning を返す。
// 1回の同期にはタイムアウトが設定される。
func (s *Scheduler) RunOnce(ctx context.Context) (*storesync.Report, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("前回の同期が実行中のためスキップしました")
		return nil, ErrAlreadyRunning
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	report, err := s.runner.Run(runCtx, s.structureIDs)
	if err != nil {
		s.logger.Error("同期サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return report, nil
}
