package credentials

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/ffmesync/internal/metrics"
	"github.com/hitoshi/ffmesync/internal/worker/retry"
)

// 更新間隔。成功時は長め、失敗時は短めに再試行する。どちらも揺らぎを加える。
const (
	refreshInterval = 4 * time.Hour
	refreshSpread   = 25 * time.Minute
	retryInterval   = 10 * time.Minute
	retrySpread     = 100 * time.Second

	// fallbackTokenValidity はトークンから有効期限を読み取れない場合の有効期間。
	fallbackTokenValidity = 10 * time.Hour
)

// Authenticator は外部プラットフォームにログインしてアクセストークンを取得するインターフェース。
type Authenticator interface {
	Login(ctx context.Context, fp Fingerprint) (string, error)
}

// Refresher は認証情報をバックグラウンドで定期的に更新する。
type Refresher struct {
	auth      Authenticator
	cell      *Cell
	generator *Generator
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	now       func() time.Time
}

// NewRefresher はRefresherの新しいインスタンスを生成する。metricsはnilでもよい。
func NewRefresher(auth Authenticator, cell *Cell, generator *Generator, m metrics.MetricsCollector, logger *slog.Logger) *Refresher {
	return &Refresher{
		auth:      auth,
		cell:      cell,
		generator: generator,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Start は起動直後に1回更新し、以降は結果に応じた間隔で更新を繰り返す。
// コンテキストがキャンセルされるまで実行を継続する。
func (r *Refresher) Start(ctx context.Context) {
	r.Continue(ctx, r.RefreshOnce(ctx))
}

// Continue は呼び出し側で済ませた初回更新の結果lastを引き継いで定期更新を続ける。
// 初回の同期より先に認証情報を揃えたい場合に、RefreshOnceと組み合わせて使う。
func (r *Refresher) Continue(ctx context.Context, last error) {
	r.logger.Info("認証情報の定期更新を開始しました")
	err := last
	for {
		timer := time.NewTimer(nextDelay(err))
		select {
		case <-ctx.Done():
			timer.Stop()
			r.logger.Info("認証情報の定期更新を停止しました")
			return
		case <-timer.C:
		}
		err = r.RefreshOnce(ctx)
	}
}

func nextDelay(err error) time.Duration {
	if err != nil {
		return retry.Jitter(retryInterval, retrySpread)
	}
	return retry.Jitter(refreshInterval, refreshSpread)
}

// RefreshOnce はログインしてCellの認証情報を置き換える。
// フィンガープリントは次回の更新予定時刻（最大 4h25m 後）まで有効であれば使い続け、
// それまでに期限が切れる場合は作り直す。
// 失敗した場合、既存の認証情報は有効期限まで利用され続ける。
func (r *Refresher) RefreshOnce(ctx context.Context) error {
	now := r.now()

	fp := r.generator.Generate()
	rotated := true
	if prev := r.cell.peek(); prev != nil && prev.Fingerprint.ValidAt(now.Add(refreshInterval+refreshSpread)) {
		fp = prev.Fingerprint
		rotated = false
	}

	token, err := r.auth.Login(ctx, fp)
	if err != nil {
		r.record(false)
		r.logger.Warn("認証情報の更新に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to refresh credential: %w", err)
	}

	expiresAt := TokenExpiry(token, now)
	r.cell.Store(Credential{Token: token, TokenExpiresAt: expiresAt, Fingerprint: fp})
	r.record(true)

	r.logger.Info("認証情報を更新しました",
		slog.Time("token_expires_at", expiresAt),
		slog.Time("fingerprint_expires_at", fp.ExpiresAt()),
		slog.Bool("fingerprint_rotated", rotated),
	)
	return nil
}

func (r *Refresher) record(success bool) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordCredentialRefresh(success)
}

// TokenExpiry はJWTのexpクレームから有効期限を返す。
// 署名は検証しない（発行元に対してそのまま提示するだけのため）。
// JWTとして読めない場合やexpがない場合は now + 10時間 を返す。
func TokenExpiry(token string, now time.Time) time.Time {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return now.Add(fallbackTokenValidity)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return now.Add(fallbackTokenValidity)
	}
	return exp.Time
}
