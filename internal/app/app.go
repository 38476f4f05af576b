package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/hitoshi/studyapp/internal/auth"
	"github.com/hitoshi/studyapp/internal/config"
	"github.com/hitoshi/studyapp/internal/database"
	"github.com/hitoshi/studyapp/internal/document"
	"github.com/hitoshi/studyapp/internal/handler"
	"github.com/hitoshi/studyapp/internal/leaderboard"
	"github.com/hitoshi/studyapp/internal/ledger"
	"github.com/hitoshi/studyapp/internal/logger"
	"github.com/hitoshi/studyapp/internal/metrics"
	"github.com/hitoshi/studyapp/internal/middleware"
	"github.com/hitoshi/studyapp/internal/model"
	"github.com/hitoshi/studyapp/internal/note"
	"github.com/hitoshi/studyapp/internal/repository"
	storageminio "github.com/hitoshi/studyapp/internal/storage/minio"
	"github.com/hitoshi/studyapp/internal/textmodel"
	"github.com/hitoshi/studyapp/internal/user"
	"github.com/hitoshi/studyapp/internal/worker/cleanup"
)

const (
	defaultServerPort = "8080"
	shutdownTimeout   = 30 * time.Second
)

// commandContext はサブコマンドの実行に必要な共通情報。
type commandContext struct {
	ctx context.Context
	cfg *config.Config
	out io.Writer
}

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 設定読み込みの失敗もJSONで出力できるよう、先に既定レベルで初期化する
	logger.SetupDefault(w, nil)

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, cfg.SlogLevel())
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// argsにはos.Args[1:]を渡す。SIGINT/SIGTERMでコマンドのcontextがキャンセルされる。
func Run(w io.Writer, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand(w)
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(ctx)
}

// withConfig は設定を読み込んでからサブコマンド本体を実行する。
func withConfig(cmd *cobra.Command, w io.Writer, fn func(commandContext) error) error {
	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", cmd.Name()),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return fn(commandContext{ctx: ctx, cfg: cfg, out: cmd.OutOrStdout()})
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")
	return db, nil
}

// services はドメインサービス一式。
type services struct {
	sessionRepo *repository.PostgresSessionRepo
	auth        *auth.Service
	user        *user.Service
	note        *note.Service
	document    *document.Service
	ledger      *ledger.Service
	leaderboard *leaderboard.Service
	textModel   *textmodel.Service
}

// newServices はリポジトリとドメインサービスをワイヤリングする。
// MinIOが未設定の場合、PDF原本は保存せず抽出テキストのみ保存する。
func newServices(ctx context.Context, cfg *config.Config, db *sql.DB, collector metrics.MetricsCollector) (*services, error) {
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	noteRepo := repository.NewPostgresNoteRepo(db)
	docRepo := repository.NewPostgresDocumentRepo(db)
	ledgerRepo := repository.NewPostgresLedgerRepo(db)

	// 型付きnilをインターフェースに入れないよう、有効時のみ代入する
	var blobs document.BlobStore
	if cfg.MinIO.Enabled() {
		client, err := storageminio.New(ctx, storageminio.Config{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.MinIO.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize blob storage: %w", err)
		}
		blobs = client
	} else {
		slog.Info("MINIO_ENDPOINTが未設定のためPDF原本は保存しません")
	}

	docService := document.NewService(docRepo, document.NewPDFExtractor(), blobs, collector)

	return &services{
		sessionRepo: sessionRepo,
		auth: auth.NewService(userRepo, sessionRepo, auth.ServiceConfig{
			SessionMaxAge: cfg.SessionMaxAge,
		}),
		user:        user.NewService(userRepo, sessionRepo, docService),
		note:        note.NewService(noteRepo, collector),
		document:    docService,
		ledger:      ledger.NewService(ledgerRepo, userRepo, collector),
		leaderboard: leaderboard.NewService(userRepo),
		textModel: textmodel.NewService(textmodel.Config{
			APIKey:      cfg.OpenAI.APIKey,
			BaseURL:     cfg.OpenAI.BaseURL,
			Model:       cfg.OpenAI.Model,
			DefaultLang: cfg.TranslateDefaultLang,
		}),
	}, nil
}

// newMetricsRegistry はアプリケーションとランタイムのメトリクスを登録したレジストリを返す。
func newMetricsRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// runServe はAPIサーバーモードで起動する。
// contextがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(c commandContext) error {
	db, err := openDatabase(c.ctx, c.cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	reg, collector := newMetricsRegistry()

	svcs, err := newServices(c.ctx, c.cfg, db, collector)
	if err != nil {
		return err
	}

	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(c.cfg.RateLimitGeneral, c.cfg.RateLimitHeavy),
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		HealthChecker:     db,
		SessionFinder:     svcs.sessionRepo,
		CORSAllowedOrigin: c.cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		Metrics:           collector,
		MetricsHandler:    metrics.Handler(reg),

		AuthService: svcs.auth,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  c.cfg.CookieDomain,
			CookieSecure:  c.cfg.CookieSecure,
			SessionMaxAge: c.cfg.SessionMaxAge,
		},
		UserService:        svcs.user,
		NoteService:        svcs.note,
		DocumentService:    svcs.document,
		UploadMaxBytes:     c.cfg.UploadMaxBytes,
		LedgerService:      svcs.ledger,
		LeaderboardService: svcs.leaderboard,
		TextModelService:   svcs.textModel,
	})

	server := &http.Server{
		Addr:         ":" + c.cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-c.ctx.Done():
	}

	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// contextがキャンセルされるまで期限切れセッションを定期的に削除する。
func runWorker(c commandContext) error {
	db, err := openDatabase(c.ctx, c.cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	job := cleanup.NewSessionCleanupJob(repository.NewPostgresSessionRepo(db), slog.Default())

	slog.Info("worker starting",
		slog.Duration("session_cleanup_interval", c.cfg.SessionCleanupInterval),
	)
	job.Start(c.ctx, c.cfg.SessionCleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はすべての未適用マイグレーションを順番に適用する。
func runMigrate(c commandContext) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(c.cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(c.cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runReset は全マイグレーションを巻き戻して再適用する。全データが失われる。
func runReset(c commandContext) error {
	slog.Warn("resetting database",
		slog.String("database_url", maskDatabaseURL(c.cfg.DatabaseURL)),
	)

	if err := database.ResetDatabase(c.cfg.DatabaseURL); err != nil {
		return fmt.Errorf("reset failed: %w", err)
	}

	slog.Info("database reset completed")
	fmt.Fprintln(c.out, "データベースを初期化しました")
	return nil
}

// run は管理ユーザーを登録し、初期残高を台帳経由で付与する。
func (o *adminOptions) run(c commandContext) error {
	db, err := openDatabase(c.ctx, c.cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	svcs, err := newServices(c.ctx, c.cfg, db, nil)
	if err != nil {
		return err
	}

	u, err := svcs.auth.Register(c.ctx, auth.RegisterInput{
		Username: o.username,
		Email:    o.email,
		Password: o.password,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	totals, err := svcs.ledger.Seed(c.ctx, u.ID, adminSeedPoints, adminSeedMinutes, model.ActivitySeed)
	if err != nil {
		return fmt.Errorf("failed to seed admin balance: %w", err)
	}

	slog.Info("admin user created",
		slog.String("user_id", u.ID),
		slog.String("username", u.Username),
	)
	fmt.Fprintf(c.out, "管理ユーザーを作成しました: id=%s username=%s points=%d time_spent=%d\n",
		u.ID, u.Username, totals.Points, totals.TimeSpent)
	return nil
}

// runInfo はテーブルごとの件数を表示する。
// verifyが真の場合、集計値と台帳合計が一致しないユーザーを表示し、1件でもあればエラーを返す。
func runInfo(c commandContext, verify bool) error {
	db, err := openDatabase(c.ctx, c.cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	stats, err := database.CollectStats(c.ctx, db)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "users:      %d\n", stats.Users)
	fmt.Fprintf(c.out, "notes:      %d\n", stats.Notes)
	fmt.Fprintf(c.out, "documents:  %d\n", stats.Documents)
	fmt.Fprintf(c.out, "pages:      %d\n", stats.Pages)
	fmt.Fprintf(c.out, "activities: %d\n", stats.Activities)

	if !verify {
		return nil
	}

	ledgerService := ledger.NewService(repository.NewPostgresLedgerRepo(db), repository.NewPostgresUserRepo(db), nil)
	mismatches, err := ledgerService.VerifyAll(c.ctx)
	if err != nil {
		return err
	}
	return reportMismatches(c.out, mismatches)
}

// reportMismatches は台帳照合の結果を出力する。
func reportMismatches(w io.Writer, mismatches []repository.TotalsMismatch) error {
	if len(mismatches) == 0 {
		fmt.Fprintln(w, "ledger: ok")
		return nil
	}
	for _, m := range mismatches {
		fmt.Fprintf(w, "ledger mismatch: user=%s (%s) cached=%d ledger=%d\n",
			m.Username, m.UserID, m.CachedPoints, m.LedgerPoints)
	}
	return fmt.Errorf("%d users have points that do not match the ledger", len(mismatches))
}

// healthcheckPort はSERVER_PORT環境変数を返す。未設定の場合は既定ポート。
func healthcheckPort() string {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		return port
	}
	return defaultServerPort
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
