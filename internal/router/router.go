package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/hallpass-labs/examhall-backend/internal/config"
	"github.com/hallpass-labs/examhall-backend/internal/handler"
	"github.com/hallpass-labs/examhall-backend/internal/middleware"
	"github.com/hallpass-labs/examhall-backend/internal/model"
	"github.com/hallpass-labs/examhall-backend/internal/response"
	"github.com/hallpass-labs/examhall-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth    *handler.AuthHandler
	Portal  *handler.PortalHandler
	Exam    *handler.ExamHandler
	Results *handler.ResultsHandler
	Monitor *handler.MonitorHandler
	User    *handler.UserHandler
	Media   *handler.MediaHandler
	System  *handler.SystemHandler
	WS      *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	// Apply brotli middleware globally.
	router.Use(middleware.Brotli())

	// Serve uploaded media files statically with aggressive caching (1 year).
	uploadsGroup := router.Group("/uploads")
	uploadsGroup.Use(middleware.CacheControl(31536000))
	{
		uploadsGroup.Static("/", "./uploads")
	}

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	// Rate limiter for auth routes (30 requests per minute per IP).
	authLimiter := middleware.NewRateLimiter(30, time.Minute)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	auth := router.Group("/api/v1/auth")
	auth.Use(authLimiter.Middleware())
	{
		auth.POST("/register", handlers.Auth.Register)
		auth.POST("/login", handlers.Auth.Login)

		// Authenticated profile routes
		auth.GET("/me", middleware.RequireJWT(authService), handlers.Auth.Me)
		auth.POST("/logout", middleware.RequireJWT(authService), handlers.Auth.Logout)
	}

	// ─── 2. Portal Group (JWT + Single Device) ─────────────────────────
	portalAPI := router.Group("/api/v1/portal")
	portalAPI.Use(
		middleware.RequireJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		portalAPI.GET("/lobby", handlers.Portal.GetLobby)
		portalAPI.GET("/exams/:exam_id/paper", handlers.Portal.GetExamPaper)
		portalAPI.POST("/exams/:exam_id/start", handlers.Portal.StartExam)
		portalAPI.GET("/exams/:exam_id/state", handlers.Portal.GetExamState)
		portalAPI.POST("/exams/:exam_id/abandon", handlers.Portal.AbandonExam)
	}

	// ─── 3. WebSocket Group (WS Auth via query token) ──────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(authService))
	{
		ws.GET("/exams/:exam_id/stream", handlers.WS.ExamStream)
	}

	// ─── 4. Professor Group (JWT + Role) ───────────────────────────────
	professorAPI := router.Group("/api/v1/professor")
	professorAPI.Use(
		middleware.RequireJWT(authService),
		middleware.RequireRole(model.RoleProfessor, model.RoleAdmin),
	)
	{
		professorAPI.GET("/exams", handlers.Exam.ListExams)
		professorAPI.POST("/exams", handlers.Exam.CreateExam)
		professorAPI.GET("/exams/:exam_id", handlers.Exam.GetExam)
		professorAPI.PUT("/exams/:exam_id", handlers.Exam.UpdateExam)
		professorAPI.DELETE("/exams/:exam_id", handlers.Exam.DeleteExam)
		professorAPI.PUT("/exams/:exam_id/questions", handlers.Exam.ReplaceQuestions)
		professorAPI.POST("/exams/:exam_id/publish", handlers.Exam.PublishExam)
		professorAPI.POST("/exams/:exam_id/archive", handlers.Exam.ArchiveExam)

		professorAPI.GET("/exams/:exam_id/results", handlers.Results.ListResults)
		professorAPI.GET("/exams/:exam_id/results/export", handlers.Results.ExportResults)
		professorAPI.GET("/exams/:exam_id/monitor", handlers.Monitor.MonitorExamSSE)

		professorAPI.POST("/media/upload", handlers.Media.UploadMedia)
	}

	// ─── 5. Admin Group (JWT + Role) ───────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(
		middleware.RequireJWT(authService),
		middleware.RequireRole(model.RoleAdmin),
	)
	{
		adminAPI.GET("/users", handlers.User.ListUsers)
		adminAPI.POST("/users/:user_id/approve", handlers.User.ApproveUser)
		adminAPI.PUT("/users/:user_id/role", handlers.User.UpdateUserRole)
		adminAPI.DELETE("/users/:user_id", handlers.User.DeleteUser)

		// System Monitoring
		adminAPI.GET("/system/metrics", handlers.System.SystemMetricsSSE)
	}

	return router
}
