package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/studyapp/internal/metrics"
	"github.com/hitoshi/studyapp/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	HealthChecker     HealthChecker
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	Metrics           metrics.MetricsCollector
	// MetricsHandler は /metrics で公開するハンドラー。nilなら公開しない。
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	UserService        UserServiceInterface
	NoteService        NoteServiceInterface
	DocumentService    DocumentServiceInterface
	UploadMaxBytes     int64
	LedgerService      LedgerServiceInterface
	LeaderboardService LeaderboardServiceInterface
	TextModelService   TextModelServiceInterface
}

// csrfExemptPaths はセッション確立前に呼ばれるためCSRF検証を行わないパス。
var csrfExemptPaths = []string{"/api/register", "/api/login"}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → CSRF
//	  認証ルート: → Session → RateLimit(General) [→ RateLimit(Heavy)]
//
// /api/register と /api/login はCSRF検証の対象外。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	csrfConfig := middleware.CSRFConfig{
		CookieSecure: deps.AuthConfig.CookieSecure,
		CookieDomain: deps.AuthConfig.CookieDomain,
		ExemptPaths:  csrfExemptPaths,
	}

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger, deps.Metrics))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewCSRFMiddleware(csrfConfig))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	userHandler := NewUserHandler(deps.UserService, deps.AuthConfig)
	noteHandler := NewNoteHandler(deps.NoteService)
	docHandler := NewDocumentHandler(deps.DocumentService, deps.UploadMaxBytes)
	ledgerHandler := NewLedgerHandler(deps.LedgerService, deps.LeaderboardService)
	textHandler := NewTextModelHandler(deps.TextModelService)

	// --- 認証不要のルート ---
	if deps.HealthChecker != nil {
		r.Get("/health", NewHealthHandler(deps.HealthChecker))
	}
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(csrfConfig).ServeHTTP)
	r.Get("/api/leaderboard", ledgerHandler.Leaderboard)

	r.Post("/api/register", authHandler.Register)
	r.Post("/api/login", authHandler.Login)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Post("/api/logout", authHandler.Logout)

		r.Route("/api/user", func(r chi.Router) {
			r.Get("/", userHandler.GetProfile)
			r.Delete("/", userHandler.Withdraw)
		})
		r.Route("/api/preferences", func(r chi.Router) {
			r.Get("/", userHandler.GetPreferences)
			r.Put("/", userHandler.UpdatePreferences)
		})

		r.Route("/api/notes", func(r chi.Router) {
			r.Get("/", noteHandler.ListNotes)
			r.Post("/", noteHandler.CreateNote)
			r.Put("/{id}", noteHandler.UpdateNote)
			r.Delete("/{id}", noteHandler.DeleteNote)
		})

		r.Route("/api/pdfs", func(r chi.Router) {
			r.Get("/", docHandler.ListDocuments)
			r.Get("/{id}", docHandler.GetDocument)
			r.Delete("/{id}", docHandler.DeleteDocument)
		})

		r.Post("/api/points/add", ledgerHandler.AddPoints)
		r.Post("/api/time-spent", ledgerHandler.RecordTimeSpent)
		r.Get("/api/activities", ledgerHandler.ListActivities)

		// アップロードとモデル呼び出しは重い処理用のレート制限を追加
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.HeavyMiddleware())
			r.Post("/api/upload-pdf", docHandler.UploadPDF)
			r.Post("/api/translate", textHandler.Translate)
			r.Post("/api/summarize", textHandler.Summarize)
			r.Post("/api/chatbot", textHandler.Chat)
		})
	})

	return r
}
