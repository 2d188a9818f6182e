package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/handler"
	"github.com/stemsi/exstem-quiz/internal/middleware"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/response"
	"github.com/stemsi/exstem-quiz/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Quiz    *handler.QuizHandler
	Attempt *handler.AttemptHandler
	Admin   *handler.AdminHandler
	WS      *handler.WSHandler
	System  *handler.SystemHandler
	Monitor *handler.MonitorHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// passwordLimiter throttles quiz password guesses per user and quiz.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	passwordLimiter *middleware.RateLimiter,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.GinMode == gin.DebugMode {
		router.Use(gin.Logger())
	}

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware())

	router.GET("/health", handlers.System.Health)

	// ─── 1. Quiz Group (JWT) ───────────────────────────────────────────
	quizAPI := router.Group("/api/v1/quizzes")
	quizAPI.Use(middleware.RequireJWT(authService))
	{
		quizAPI.GET("/:quiz_id", handlers.Quiz.GetSummary)
		quizAPI.POST("/:quiz_id/password",
			passwordLimiter.Middleware(middleware.ByUserAndParam("quiz_id")),
			handlers.Quiz.CheckPassword,
		)
		quizAPI.POST("/:quiz_id/attempts",
			middleware.RequireAnyPermission(model.PermissionQuizAttempt, model.PermissionQuizPreview),
			handlers.Quiz.StartAttempt,
		)
	}

	// ─── 2. Attempt Group (JWT, owner checked by the service) ──────────
	attemptAPI := router.Group("/api/v1/attempts")
	attemptAPI.Use(middleware.RequireJWT(authService))
	{
		attemptAPI.GET("/:attempt_id", handlers.Attempt.GetAttempt)
		attemptAPI.POST("/:attempt_id/autosave", handlers.Attempt.Autosave)
		attemptAPI.POST("/:attempt_id/process", handlers.Attempt.Process)
		attemptAPI.POST("/:attempt_id/finish", handlers.Attempt.Finish)
		attemptAPI.POST("/:attempt_id/slots/:slot/redo", handlers.Attempt.Redo)
		attemptAPI.POST("/:attempt_id/slots/:slot/flag", handlers.Attempt.ToggleFlag)
		attemptAPI.DELETE("/:attempt_id", handlers.Attempt.DeletePreview)
	}

	// ─── 3. WebSocket Group (query token) ──────────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireWSAuth(authService))
	{
		ws.GET("/attempts/:attempt_id/stream", handlers.WS.AttemptStream)
	}

	// ─── 4. Admin Group (JWT + quiz:manage) ────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(
		middleware.RequireJWT(authService),
		middleware.RequirePermission(model.PermissionQuizManage),
	)
	{
		adminAPI.POST("/quizzes/:quiz_id/repaginate", handlers.Admin.Repaginate)
		adminAPI.DELETE("/quizzes/:quiz_id/attempts", handlers.Admin.PurgeAttempts)
		adminAPI.PUT("/quizzes/:quiz_id/password", handlers.Admin.SetPassword)
		adminAPI.POST("/quizzes/:quiz_id/cache/invalidate", handlers.Admin.InvalidateCache)
		adminAPI.GET("/quizzes/:quiz_id/monitor", handlers.Monitor.Snapshot)
		adminAPI.GET("/quizzes/:quiz_id/monitor/stream", handlers.Monitor.Stream)
		adminAPI.POST("/sweep", handlers.Admin.RunSweep)
		adminAPI.GET("/system/status", handlers.System.Status)
	}

	return router
}
