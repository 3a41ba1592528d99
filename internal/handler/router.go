package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/ffmesync/internal/metrics"
	"github.com/hitoshi/ffmesync/internal/middleware"
	"github.com/hitoshi/ffmesync/internal/season"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	AdminToken        string

	// ヘルスチェックとメトリクス
	HealthChecker  HealthChecker
	MetricsHandler http.Handler
	Metrics        metrics.MetricsCollector

	// 見積もりとシーズン
	Quoter Quoter
	Clock  season.Clock

	// 手動同期。nilの場合は /api/sync を登録しない
	SyncTrigger      SyncTrigger
	SyncWriteTimeout time.Duration
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RealIP → Recovery → Logging → CORS → SecurityHeaders → RateLimit（/api/*）→ AdminToken（/api/sync）
//
// /health と /metrics はレート制限の対象外とする。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	healthHandler := NewHealthHandler(deps.HealthChecker, deps.Logger)
	seasonHandler := NewSeasonHandler(deps.Clock)
	priceHandler := NewPriceHandler(deps.Quoter, deps.Metrics, deps.Clock, deps.Logger)

	// --- 運用エンドポイント ---
	r.Get("/health", healthHandler.Health)
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- API ---
	r.Route("/api", func(r chi.Router) {
		if deps.RateLimiter != nil {
			r.Use(deps.RateLimiter.Middleware())
		}

		r.Get("/season", seasonHandler.GetSeason)
		r.Get("/price", priceHandler.GetPrice)

		if deps.SyncTrigger != nil {
			syncHandler := NewSyncHandler(deps.SyncTrigger, deps.SyncWriteTimeout, deps.Logger)
			r.With(middleware.NewAdminTokenMiddleware(deps.AdminToken, deps.Logger)).Post("/sync", syncHandler.RunSync)
		}
	})

	return r
}
