package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sankhya-academy/exam-backend/internal/config"
	"github.com/sankhya-academy/exam-backend/internal/handler"
	"github.com/sankhya-academy/exam-backend/internal/middleware"
	"github.com/sankhya-academy/exam-backend/internal/response"
	"github.com/sankhya-academy/exam-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth      *handler.AuthHandler
	Session   *handler.SessionHandler
	AdminExam *handler.AdminExamHandler
	WS        *handler.WSHandler
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
		auth.POST("/student/login", handlers.Auth.StudentLogin)
		auth.POST("/staff/login", handlers.Auth.StaffLogin)

		// Authenticated profile routes
		auth.POST("/student/logout", middleware.RequireStudentJWT(authService), handlers.Auth.StudentLogout)
		auth.GET("/student/me", middleware.RequireStudentJWT(authService), handlers.Auth.GetStudentProfile)
	}

	// ─── 2. Student Group (JWT + Single Device) ────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		studentAPI.GET("/exams", handlers.Session.GetLobby)
		studentAPI.POST("/exams/:exam_id/session/init", handlers.Session.InitSession)
		studentAPI.POST("/exams/:exam_id/session/answer", handlers.Session.SaveAnswer)
		studentAPI.POST("/exams/:exam_id/session/mark", handlers.Session.MarkQuestion)
		studentAPI.GET("/exams/:exam_id/session/heartbeat", handlers.Session.Heartbeat)
		studentAPI.POST("/exams/:exam_id/session/submit", handlers.Session.Submit)
	}

	// ─── 3. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/student/exams/:exam_id/stream", handlers.WS.ExamStream)
	}

	// ─── 4. Staff Group (JWT) ──────────────────────────────────────────
	staffAPI := router.Group("/api/v1/staff")
	staffAPI.Use(middleware.RequireStaffJWT(authService))
	{
		staffAPI.GET("/exams", handlers.AdminExam.ListExams)
		staffAPI.POST("/exams", handlers.AdminExam.CreateExam)
		staffAPI.GET("/exams/:exam_id", handlers.AdminExam.GetExam)
		staffAPI.PUT("/exams/:exam_id", handlers.AdminExam.UpdateExam)
		staffAPI.DELETE("/exams/:exam_id", handlers.AdminExam.DeleteExam)
		staffAPI.GET("/exams/:exam_id/questions", handlers.AdminExam.ListQuestions)
		staffAPI.PUT("/exams/:exam_id/questions", handlers.AdminExam.ReplaceQuestions)
		staffAPI.POST("/exams/:exam_id/publish", handlers.AdminExam.PublishExam)
		staffAPI.POST("/exams/:exam_id/refresh-cache", handlers.AdminExam.RefreshCache)
		staffAPI.GET("/exams/:exam_id/results", handlers.AdminExam.GetResults)
	}

	return router
}
