package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/viprahq/viprago/internal/api/handlers"
	"github.com/viprahq/viprago/internal/api/middleware"
	"github.com/viprahq/viprago/internal/auth"
	"github.com/viprahq/viprago/internal/notify"
	"github.com/viprahq/viprago/internal/projects"
	"github.com/viprahq/viprago/pkg/crypto"
	"gorm.io/gorm"
)

type Router struct {
	chi.Router
}

type RouterConfig struct {
	DB             *gorm.DB
	Redis          *redis.Client
	Logger         *slog.Logger
	JWTService     *auth.JWTService
	AuthService    *auth.Service
	Encryptor      *crypto.Encryptor
	AsynqClient    *asynq.Client
	AllowedOrigins []string // CORS allowed origins
	RateLimitReqs  int      // Rate limit requests per window
	RateLimitSecs  int      // Rate limit window in seconds
	UploadDir      string
	MaxUploadMB    int
}

func NewRouter(cfg RouterConfig) *Router {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.Logging(cfg.Logger))

	// Rate limiting - applied globally to prevent abuse
	if cfg.RateLimitReqs > 0 {
		r.Use(middleware.RateLimit(cfg.RateLimitReqs, cfg.RateLimitSecs))
	}

	// CORS - restrict to configured origins, or allow all in development
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		// Default to localhost for development - configure in production
		allowedOrigins = []string{"http://localhost:3000", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Auth-Token"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Initialize services
	countCache := notify.NewCountCache(notify.DefaultCountTTL, nil)
	notifyService := notify.NewService(cfg.DB, cfg.Logger, cfg.AsynqClient, countCache)
	projectService := projects.NewService(cfg.DB)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(cfg.DB, cfg.Redis)
	authHandler := handlers.NewAuthHandler(cfg.AuthService)
	calendarHandler := handlers.NewCalendarHandler(cfg.DB, cfg.MaxUploadMB)
	projectHandler := handlers.NewProjectHandler(cfg.DB, projectService)
	assignmentHandler := handlers.NewAssignmentHandler(cfg.DB, projectService, notifyService)
	notificationHandler := handlers.NewNotificationHandler(cfg.DB, notifyService)
	reimbursementHandler := handlers.NewReimbursementHandler(cfg.DB, cfg.Logger, cfg.Encryptor, notifyService, cfg.UploadDir)
	leaveHandler := handlers.NewLeaveHandler(cfg.DB, cfg.Logger, notifyService)
	teamHandler := handlers.NewTeamHandler(cfg.DB)

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public auth endpoints
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)
		r.Post("/auth/logout", authHandler.Logout)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWTService))

			// User endpoints
			r.Get("/me", func(w http.ResponseWriter, r *http.Request) {
				userID := middleware.GetUserID(r.Context())
				user, err := cfg.AuthService.GetUserByID(r.Context(), userID)
				if err != nil {
					http.Error(w, "User not found", http.StatusNotFound)
					return
				}
				writeJSON(w, http.StatusOK, user)
			})

			// Calendar endpoints
			r.Route("/calendar/events", func(r chi.Router) {
				r.Get("/", calendarHandler.List)
				r.Post("/", calendarHandler.Create)
				r.With(middleware.RequireRole("admin")).
					Post("/bulk", calendarHandler.BulkUpload)
			})

			// Projects endpoints
			r.Route("/projects", func(r chi.Router) {
				r.Get("/", projectHandler.List)
				r.With(middleware.RequireRole("admin", "manager")).
					Post("/", projectHandler.Create)
				r.Get("/{id}", projectHandler.Get)
				r.Put("/{id}", projectHandler.Update)
				r.Delete("/{id}", projectHandler.Delete)
			})

			// Project assignment endpoints
			r.Route("/project-assignments", func(r chi.Router) {
				r.Use(middleware.RequireRole("admin"))
				r.Post("/", assignmentHandler.Create)
				r.Put("/{id}", assignmentHandler.Update)
				r.Delete("/{id}", assignmentHandler.Delete)
			})

			// Notification endpoints
			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", notificationHandler.List)
				r.Get("/unread-count", notificationHandler.UnreadCount)
				r.Patch("/mark-all-read", notificationHandler.MarkAllRead)
				r.Patch("/{id}/read", notificationHandler.MarkRead)
				r.Patch("/{id}/archive", notificationHandler.Archive)
			})

			// Reimbursement endpoints
			r.Route("/reimbursements", func(r chi.Router) {
				r.Get("/", reimbursementHandler.List)
				r.Post("/", reimbursementHandler.Create)
				r.Get("/{id}", reimbursementHandler.Get)
				r.Post("/{id}/receipt", reimbursementHandler.UploadReceipt)
				r.Post("/{id}/approve", reimbursementHandler.Approve)
				r.Post("/{id}/reject", reimbursementHandler.Reject)
			})

			// Leave endpoints
			r.Route("/leaves", func(r chi.Router) {
				r.Get("/", leaveHandler.List)
				r.Post("/", leaveHandler.Create)
				r.Post("/{id}/approve", leaveHandler.Approve)
				r.Post("/{id}/reject", leaveHandler.Reject)
			})

			// Team endpoints
			r.Route("/teams", func(r chi.Router) {
				r.Get("/", teamHandler.List)
				r.Get("/{id}/members", teamHandler.Members)
				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireRole("admin"))
					r.Post("/", teamHandler.Create)
					r.Post("/{id}/members", teamHandler.AddMember)
				})
			})
		})
	})

	return &Router{r}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
