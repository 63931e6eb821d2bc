package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/examo-id/examo-backend/internal/config"
	"github.com/examo-id/examo-backend/internal/handler"
	"github.com/examo-id/examo-backend/internal/middleware"
	"github.com/examo-id/examo-backend/internal/response"
	"github.com/examo-id/examo-backend/internal/service"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth          *handler.AuthHandler
	StudentPortal *handler.StudentPortalHandler
	StudentMgmt   *handler.StudentManagementHandler
	Exam          *handler.ExamHandler
	Monitor       *handler.MonitorHandler
	WS            *handler.WSHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
func SetupRouter(
	authService *service.AuthService,
	handlers *Handlers,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.Default()

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

	router.Use(response.RequestIDMiddleware())
	router.Use(middleware.Brotli())

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
		auth.POST("/teacher/login", handlers.Auth.TeacherLogin)

		// Authenticated profile routes
		auth.POST("/student/logout", middleware.RequireStudentJWT(authService), handlers.Auth.StudentLogout)
		auth.GET("/student/me", middleware.RequireStudentJWT(authService), handlers.Auth.GetStudentProfile)
		auth.GET("/teacher/me", middleware.RequireTeacherJWT(authService), handlers.Auth.GetTeacherProfile)
	}

	// ─── 2. Student Group (JWT + Single Device) ────────────────────────
	studentAPI := router.Group("/api/v1/student")
	studentAPI.Use(
		middleware.RequireStudentJWT(authService),
		middleware.CheckSingleDeviceSession(authService),
	)
	{
		studentAPI.GET("/lobby", handlers.StudentPortal.GetLobby)
		studentAPI.POST("/exams/:exam_id/join", handlers.StudentPortal.JoinExam)
		studentAPI.GET("/exams/:exam_id/paper", handlers.StudentPortal.GetExamPaper)
		studentAPI.GET("/exams/:exam_id/state", handlers.StudentPortal.GetExamState)
		studentAPI.GET("/exams/:exam_id/result", handlers.StudentPortal.GetMyResult)
	}

	// ─── 3. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(authService))
	{
		ws.GET("/student/exams/:exam_id/stream", handlers.WS.ExamStream)
	}

	// ─── 4. Teacher Group (JWT) ────────────────────────────────────────
	teacherAPI := router.Group("/api/v1/teacher")
	teacherAPI.Use(middleware.RequireTeacherJWT(authService))
	{
		// Student roster
		teacherAPI.GET("/students", handlers.StudentMgmt.ListStudents)
		teacherAPI.POST("/students", handlers.StudentMgmt.CreateStudent)
		teacherAPI.POST("/students/:student_id/reset-password", handlers.StudentMgmt.ResetStudentPassword)

		// Exam management
		teacherAPI.GET("/exams", handlers.Exam.ListExams)
		teacherAPI.POST("/exams", handlers.Exam.CreateExam)
		teacherAPI.GET("/exams/:exam_id", handlers.Exam.GetExam)
		teacherAPI.PUT("/exams/:exam_id", handlers.Exam.UpdateExam)
		teacherAPI.DELETE("/exams/:exam_id", handlers.Exam.DeleteExam)
		teacherAPI.PUT("/exams/:exam_id/questions", handlers.Exam.SetQuestions)
		teacherAPI.POST("/exams/:exam_id/publish", handlers.Exam.PublishExam)
		teacherAPI.POST("/exams/:exam_id/archive", handlers.Exam.ArchiveExam)
		teacherAPI.GET("/exams/:exam_id/preview", handlers.Exam.PreviewExam)
		teacherAPI.GET("/exams/:exam_id/results", handlers.Exam.GetExamResults)
		teacherAPI.GET("/exams/:exam_id/monitor", handlers.Monitor.MonitorExamSSE)
	}

	return router
}
