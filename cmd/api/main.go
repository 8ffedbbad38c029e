package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/campuskit/ums-api/api/swagger"
	"github.com/campuskit/ums-api/internal/grading"
	"github.com/campuskit/ums-api/internal/handler"
	"github.com/campuskit/ums-api/internal/middleware"
	"github.com/campuskit/ums-api/internal/models"
	"github.com/campuskit/ums-api/internal/repository"
	"github.com/campuskit/ums-api/internal/service"
	"github.com/campuskit/ums-api/pkg/cache"
	"github.com/campuskit/ums-api/pkg/config"
	"github.com/campuskit/ums-api/pkg/database"
	"github.com/campuskit/ums-api/pkg/logger"
	corsmiddleware "github.com/campuskit/ums-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campuskit/ums-api/pkg/middleware/requestid"
)

// @title UMS Core API
// @version 1.0.0
// @description Enrollment capacity and academic grading engine
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	var cacheRepo *repository.CacheRepository
	if cfg.Transcript.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, transcript caching disabled", "error", err)
		} else {
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
			defer cacheRepo.Close() //nolint:errcheck
		}
	}

	validate := validator.New()
	policy := grading.Default()

	assignmentRepo := repository.NewTeacherAssignmentRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	gradeRepo := repository.NewGradeRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(cfg.JWT)

	var transcriptSvc *service.TranscriptService
	if cacheRepo != nil {
		transcriptSvc = service.NewTranscriptService(gradeRepo, studentRepo, policy, cacheRepo, cfg.Transcript.CacheTTL, metricsSvc, logr)
	} else {
		transcriptSvc = service.NewTranscriptService(gradeRepo, studentRepo, policy, nil, 0, metricsSvc, logr)
	}

	assignmentSvc := service.NewAssignmentService(assignmentRepo, repository.NewTeacherRepository(db), subjectRepo, validate, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, assignmentRepo, studentRepo, service.EnrollmentPolicy{
		AllowUnenrollFinalized: cfg.Enrollment.AllowUnenrollFinalized,
		HardDeleteOnUnenroll:   cfg.Enrollment.HardDeleteOnUnenroll,
	}, metricsSvc, transcriptSvc, validate, logr)
	gradeSvc := service.NewGradeService(gradeRepo, enrollmentRepo, policy, metricsSvc, transcriptSvc, validate, logr)

	assignmentHandler := handler.NewAssignmentHandler(assignmentSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(enrollmentSvc)
	gradeHandler := handler.NewGradeHandler(gradeSvc)
	transcriptHandler := handler.NewTranscriptHandler(transcriptSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/metrics", gin.WrapH(metricsSvc.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.JWT(authSvc))

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleStaff)
	graders := middleware.RequireRoles(models.RoleAdmin, models.RoleStaff, models.RoleTeacher)
	readers := middleware.RBAC(string(models.RoleAdmin), string(models.RoleStaff), string(models.RoleTeacher))
	selfOrStaff := middleware.RBAC(string(models.RoleAdmin), string(models.RoleStaff), "SELF")

	assignments := api.Group("/assignments")
	{
		assignments.GET("", readers, assignmentHandler.List)
		assignments.POST("", staff, assignmentHandler.Create)
		assignments.GET("/:id", readers, assignmentHandler.Get)
		assignments.DELETE("/:id", staff, assignmentHandler.Delete)
		assignments.GET("/:id/capacity", readers, assignmentHandler.GetCapacity)
		assignments.PUT("/:id/capacity", staff, assignmentHandler.SetCapacity)
		assignments.PUT("/:id/deactivate", staff, assignmentHandler.Deactivate)
	}

	enrollments := api.Group("/enrollments")
	{
		enrollments.GET("", readers, enrollmentHandler.List)
		enrollments.POST("", staff, enrollmentHandler.Create)
		enrollments.GET("/:id", readers, enrollmentHandler.Get)
		enrollments.DELETE("/:id", staff, enrollmentHandler.Delete)
		enrollments.GET("/:id/grade", readers, gradeHandler.Get)
		enrollments.PUT("/:id/grade", graders, gradeHandler.Record)
		enrollments.POST("/:id/grade/finalize", graders, gradeHandler.Finalize)
	}

	students := api.Group("/students")
	{
		students.GET("/:student_id/transcript", selfOrStaff, transcriptHandler.Get)
		students.GET("/:student_id/transcript/export/csv", selfOrStaff, transcriptHandler.ExportCSV)
		students.GET("/:student_id/transcript/export/pdf", selfOrStaff, transcriptHandler.ExportPDF)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
