package app

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/ffmesync/internal/config"
	"github.com/hitoshi/ffmesync/internal/credentials"
	"github.com/hitoshi/ffmesync/internal/database"
	"github.com/hitoshi/ffmesync/internal/extranet"
	"github.com/hitoshi/ffmesync/internal/handler"
	"github.com/hitoshi/ffmesync/internal/logger"
	"github.com/hitoshi/ffmesync/internal/member"
	"github.com/hitoshi/ffmesync/internal/metrics"
	"github.com/hitoshi/ffmesync/internal/middleware"
	"github.com/hitoshi/ffmesync/internal/myffme"
	"github.com/hitoshi/ffmesync/internal/pricing"
	"github.com/hitoshi/ffmesync/internal/repository"
	"github.com/hitoshi/ffmesync/internal/results"
	"github.com/hitoshi/ffmesync/internal/season"
	"github.com/hitoshi/ffmesync/internal/security"
	"github.com/hitoshi/ffmesync/internal/storesync"
	"github.com/hitoshi/ffmesync/internal/worker/syncjob"
)

const (
	dbPingTimeout = 5 * time.Second
	// syncWriteMargin は手動同期の書き込み期限に同期タイムアウトへ上乗せする時間。
	syncWriteMargin = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで作り直す
	logger.SetupDefaultWithLevel(w, cfg.LogLevel)

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("store_backend", cfg.StoreBackend),
		slog.String("source", cfg.SourceGeneration),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandSync:
		return runSync(cfg, w)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// components はモード間で共有する接続とメトリクス。
type components struct {
	db       *sql.DB
	redis    *redis.Client
	store    repository.UserStore
	registry *prometheus.Registry
	metrics  *metrics.Collector
}

// openComponents はDB接続と利用者ストアを開き、疎通を確認する。
// 料金表は常にPostgreSQLから読むため、Redisバックエンドでも DATABASE_URL に接続する。
func openComponents(ctx context.Context, cfg *config.Config) (*components, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")

	c := &components{db: db}

	switch cfg.StoreBackend {
	case config.StoreBackendRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		c.redis = redis.NewClient(opts)
		repo := repository.NewRedisUserRepo(c.redis)
		pingCtx, cancel := context.WithTimeout(ctx, dbPingTimeout)
		defer cancel()
		if err := repo.Ping(pingCtx); err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		c.store = repo
		slog.Info("redis connection established")
	default:
		c.store = repository.NewPostgresUserRepo(db)
	}

	c.registry = prometheus.NewRegistry()
	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.metrics = metrics.NewCollector(c.registry)

	return c, nil
}

// Close は開いている接続をすべて閉じる。
func (c *components) Close() {
	if c.redis != nil {
		c.redis.Close()
	}
	if c.db != nil {
		c.db.Close()
	}
}

// Ping はDBと利用者ストアの両方に到達できるかを確認する。
func (c *components) Ping(ctx context.Context) error {
	if err := c.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("user store: %w", err)
	}
	return nil
}

// syncPipeline は会員同期に必要な部品一式。
// refresherは会員プラットフォーム（GraphQL）を使う場合のみ設定される。
type syncPipeline struct {
	runner    *storesync.Runner
	refresher *credentials.Refresher
}

// newSyncPipeline は設定された取得元から会員同期のRunnerを組み立てる。
func newSyncPipeline(cfg *config.Config, c *components, log *slog.Logger) *syncPipeline {
	p := &syncPipeline{}

	var source member.DataSource
	switch cfg.SourceGeneration {
	case config.SourceExtranet:
		httpClient := &http.Client{Timeout: cfg.UpstreamTimeout}
		source = extranet.NewClient(httpClient, cfg.ExtranetAPIURL, cfg.ExtranetAPIKey, c.metrics, log)
	default:
		cell := credentials.NewCell()
		source = myffme.NewClient(cfg.MyFFMEAPIURL, cell, cfg.MyFFMERequestsPerSecond, c.metrics, log)
		auth := myffme.NewAuthenticator(cfg.MyFFMEAuthURL, cfg.MyFFMEUsername, cfg.MyFFMEPassword)
		p.refresher = credentials.NewRefresher(auth, cell, credentials.NewGenerator(), c.metrics, log)
	}

	// 未設定時はnilインターフェースのまま渡す
	var resultsSource storesync.ResultsSource
	if cfg.ResultsURL != "" {
		resultsSource = results.NewScraper(security.NewSafeClient(cfg.ResultsTimeout), cfg.ResultsURL, c.metrics, log)
	}

	gatherer := member.NewGatherer(source, log)
	p.runner = storesync.NewRunner(gatherer, c.store, cfg.UserKeyPrefix, resultsSource, c.metrics, log)
	return p
}

// primeCredentials は初回の同期より前に認証情報を取得する。
// GraphQL以外の取得元では何もしない。
func (p *syncPipeline) primeCredentials(ctx context.Context) error {
	if p.refresher == nil {
		return nil
	}
	return p.refresher.RefreshOnce(ctx)
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// 同期設定が揃っている場合は /api/sync による手動同期も受け付ける。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. 接続
	c, err := openComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	log := slog.Default()

	// 2. 料金見積もり
	quoter := pricing.NewService(repository.NewPostgresFeeRepo(c.db), cfg.FeeCacheTTL)

	// 3. レートリミッター
	limiter := middleware.NewRateLimiter("api", middleware.PerMinuteConfig(cfg.RateLimitPerMinute), log)
	defer limiter.Stop()

	deps := &handler.RouterDeps{
		Logger:            log,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       limiter,
		AdminToken:        cfg.AdminToken,
		HealthChecker:     c,
		MetricsHandler:    metrics.Handler(c.registry),
		Metrics:           c.metrics,
		Quoter:            quoter,
		Clock:             season.Clock(time.Now),
	}

	// 4. 手動同期（設定が揃っている場合のみ）
	if err := cfg.ValidateSync(); err == nil {
		pipeline := newSyncPipeline(cfg, c, log)
		if pipeline.refresher != nil {
			go pipeline.refresher.Start(ctx)
		}
		deps.SyncTrigger = syncjob.NewScheduler(pipeline.runner, cfg.SyncStructureIDs, cfg.SyncTimeout, log)
		deps.SyncWriteTimeout = cfg.SyncTimeout + syncWriteMargin
	} else {
		slog.Info("manual sync endpoint disabled", slog.String("reason", err.Error()))
	}

	router := handler.NewRouter(deps)

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serverErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、認証情報の定期更新と同期スケジューラを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	if err := cfg.ValidateSync(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 1. 接続
	c, err := openComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	log := slog.Default()
	pipeline := newSyncPipeline(cfg, c, log)
	scheduler := syncjob.NewScheduler(pipeline.runner, cfg.SyncStructureIDs, cfg.SyncTimeout, log)

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("sync_interval", cfg.SyncInterval),
		slog.Any("structure_ids", cfg.SyncStructureIDs),
	)

	// 2. 認証情報の定期更新をバックグラウンドで起動
	// 初回同期が認証情報なしで失敗しないよう、最初の1回は先に済ませる
	if pipeline.refresher != nil {
		first := pipeline.primeCredentials(ctx)
		go pipeline.refresher.Continue(ctx, first)
	}

	// 3. 同期スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.SyncInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runSync は会員同期を1回だけ実行し、レポートをJSONでwに書き出す。
// 同期が中断された場合はエラーを返し、プロセスは非ゼロで終了する。
func runSync(cfg *config.Config, w io.Writer) error {
	if err := cfg.ValidateSync(); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := openComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer c.Close()

	pipeline := newSyncPipeline(cfg, c, slog.Default())
	if err := pipeline.primeCredentials(ctx); err != nil {
		return fmt.Errorf("failed to obtain credential: %w", err)
	}

	ctx, timeoutCancel := context.WithTimeout(ctx, cfg.SyncTimeout)
	defer timeoutCancel()

	report, err := pipeline.runner.Run(ctx, cfg.SyncStructureIDs)
	if err != nil {
		return fmt.Errorf("sync aborted: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	status, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		if errors.Is(err, database.ErrDirty) {
			slog.Error("database schema is dirty; fix the failed migration manually and force the version",
				slog.Uint64("version", uint64(status.Version)),
			)
		}
		return fmt.Errorf("migration failed: %w", err)
	}

	if !status.Changed() {
		slog.Info("database schema is up to date", slog.Uint64("version", uint64(status.Version)))
		return nil
	}
	slog.Info("database migrations completed successfully",
		slog.Uint64("previous_version", uint64(status.Previous)),
		slog.Uint64("version", uint64(status.Version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードとクエリをマスクする。
// URLとして解釈できない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	u.RawQuery = ""
	return u.Redacted()
}
