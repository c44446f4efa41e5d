package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dodokudo/autostudio/internal/config"
	"github.com/dodokudo/autostudio/internal/service"
	"github.com/dodokudo/autostudio/internal/service/threads"
)

type Server struct {
	Config *config.Config
	DB     *gorm.DB
	Router *gin.Engine
	Logger *zap.Logger
	Server *http.Server

	// Services
	PlanService        *service.PlanService
	ScheduleService    *service.ScheduleService
	ScoreService       *service.TemplateScoreService
	AuthService        *service.AuthService
	CommentStore       *service.CommentStore
	LogStore           *service.LogStore
	ScheduleWorker     *service.ScheduleWorker
	CommentExecutor    *service.CommentExecutor
	JobDispatcher      *service.Dispatcher
	ScheduleDispatcher *service.Dispatcher
	Scheduler          *service.Scheduler
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	// Set gin mode
	gin.SetMode(cfg.Server.Mode)

	// Initialize database
	db, err := service.NewDatabase(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Worker.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load worker timezone %q: %w", cfg.Worker.Timezone, err)
	}

	// Stores
	planStore := service.NewPlanStore(db)
	jobStore := service.NewJobStore(db)
	scheduleStore := service.NewScheduleStore(db)
	commentStore := service.NewCommentStore(db)
	logStore := service.NewLogStore(db)

	// Outbound client and notifier
	client := threads.NewClient(&cfg.Threads, logger)
	notifier := service.NewSMTPNotifier(logger, &cfg.Notifier)

	// Job path: fixed short delay between chain parts, no client retry.
	// A failed job is retried whole via re-approval.
	jobEngine := service.NewEngine(client, logger.Named("jobs"))
	jobWorker := service.NewJobWorker(logger, jobStore, planStore, logStore, jobEngine,
		notifier, service.FixedDelay(config.Duration(cfg.Worker.Jobs.ReplyDelay, 3*time.Second)))
	jobDispatcher := service.NewDispatcher(logger.Named("jobs"), jobWorker, cfg.Worker.Jobs.MaxUnits)

	// Schedule path: randomized delays and transient retries around each
	// platform call.
	retrying := &service.RetryingClient{
		Inner:       client,
		Attempts:    cfg.Worker.Schedules.PostAttempts,
		BaseDelay:   config.Duration(cfg.Worker.Schedules.RetryBaseDelay, 5*time.Second),
		IsTransient: threads.IsTransient,
		Logger:      logger.Named("schedules"),
	}
	scheduleEngine := service.NewEngine(retrying, logger.Named("schedules"))
	scheduleDelay := service.RandomWindow{
		Min: config.Duration(cfg.Worker.Schedules.MinReplyDelay, 30*time.Second),
		Max: config.Duration(cfg.Worker.Schedules.MaxReplyDelay, 90*time.Second),
	}
	scheduleWorker := service.NewScheduleWorker(logger, scheduleStore, scheduleEngine, notifier,
		scheduleDelay, loc, config.Duration(cfg.Worker.Schedules.StuckThreshold, 10*time.Minute))
	scheduleDispatcher := service.NewDispatcher(logger.Named("schedules"), scheduleWorker, 1)

	commentExecutor := service.NewCommentExecutor(logger, commentStore, client,
		config.Duration(cfg.Worker.Comments.Cooldown, time.Minute),
		cfg.Worker.Comments.MaxAttempts,
		cfg.Worker.Comments.BatchSize,
		config.Duration(cfg.Worker.Comments.PrePostDelay, 2*time.Second))

	planService := service.NewPlanService(logger, planStore, jobStore, logStore, loc)
	scheduleService := service.NewScheduleService(logger, scheduleStore, scheduleEngine, scheduleDelay, loc)
	scoreService := service.NewTemplateScoreService(logger, db)
	authService := service.NewAuthService(logger, cfg.Auth.TOTPSecret)
	scheduler := service.NewScheduler(&cfg.Worker.Poll, logger, jobDispatcher, scheduleDispatcher,
		scheduleWorker, commentExecutor, scoreService)

	// Create router
	router := gin.New()

	srv := &Server{
		Config:             cfg,
		DB:                 db,
		Router:             router,
		Logger:             logger,
		PlanService:        planService,
		ScheduleService:    scheduleService,
		ScoreService:       scoreService,
		AuthService:        authService,
		CommentStore:       commentStore,
		LogStore:           logStore,
		ScheduleWorker:     scheduleWorker,
		CommentExecutor:    commentExecutor,
		JobDispatcher:      jobDispatcher,
		ScheduleDispatcher: scheduleDispatcher,
		Scheduler:          scheduler,
	}

	// Setup middleware and routes
	srv.setupMiddleware()
	srv.setupRoutes()

	return srv, nil
}

func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.Router.Use(gin.Recovery())

	// Logger middleware
	s.Router.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	// CORS middleware
	s.Router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})
}

// cronAuth guards the run endpoints called by the external scheduler with
// a static bearer secret. Open when no secret is configured.
func (s *Server) cronAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		secret := s.Config.Auth.CronSecret
		if secret == "" {
			c.Next()
			return
		}
		if c.GetHeader("Authorization") != "Bearer "+secret {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			c.Abort()
			return
		}
		c.Next()
	}
}

func (s *Server) setupRoutes() {
	// Health check
	s.Router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"time":   time.Now().Unix(),
		})
	})

	// API routes
	api := s.Router.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/login", s.handleLogin)
		}

		// Cron entrypoints, driven by the external scheduler
		cron := api.Group("/", s.cronAuth())
		{
			cron.POST("/jobs/run", s.handleRunJobs)
			cron.POST("/scheduled-posts/run", s.handleRunSchedules)
			cron.POST("/comments/execute", s.handleExecuteComments)
		}

		// Authoring and review surface
		authed := api.Group("/", s.AuthService.AuthMiddleware())
		{
			plans := authed.Group("/plans")
			{
				plans.GET("", s.handleListPlans)
				plans.POST("", s.handleUpsertPlan)
				plans.POST("/:id/status", s.handleUpdatePlanStatus)
			}

			authed.POST("/jobs/reset-failed", s.handleResetFailedJobs)

			schedules := authed.Group("/scheduled-posts")
			{
				schedules.GET("", s.handleListSchedules)
				schedules.POST("", s.handleCreateSchedule)
				schedules.PUT("/:id", s.handleUpdateSchedule)
				schedules.DELETE("/:id", s.handleDeleteSchedule)
				schedules.POST("/publish-now", s.handlePublishNow)
			}

			authed.POST("/comment-schedules", s.handleCreateCommentSchedule)
			authed.GET("/logs", s.handleListLogs)
			authed.GET("/template-scores", s.handleListTemplateScores)
		}
	}
}

func (s *Server) Start(ctx context.Context) error {
	// Start poller
	if err := s.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start poller: %w", err)
	}

	addr := fmt.Sprintf("%s:%d", s.Config.Server.Host, s.Config.Server.Port)

	s.Server = &http.Server{
		Addr:    addr,
		Handler: s.Router,
	}

	s.Logger.Info("Starting HTTP server", zap.String("addr", addr))

	if s.Config.Server.CertFile != "" && s.Config.Server.KeyFile != "" {
		return s.Server.ListenAndServeTLS(s.Config.Server.CertFile, s.Config.Server.KeyFile)
	}

	return s.Server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	// Stop poller first
	s.Scheduler.Stop()

	if s.Server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return s.Server.Shutdown(shutdownCtx)
}
