package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/toddfishman/meetini/internal/clock"
	"github.com/toddfishman/meetini/internal/config"
	"github.com/toddfishman/meetini/internal/invitation"
	invitationdomain "github.com/toddfishman/meetini/internal/invitation/domain"
	"github.com/toddfishman/meetini/internal/invitation/link"
	"github.com/toddfishman/meetini/internal/observability"
	obslogger "github.com/toddfishman/meetini/internal/observability/logger"
	obsmetrics "github.com/toddfishman/meetini/internal/observability/metrics"
	obstracing "github.com/toddfishman/meetini/internal/observability/tracing"
	"github.com/toddfishman/meetini/internal/ratelimit"
	"github.com/toddfishman/meetini/internal/reminder"
	reminderdomain "github.com/toddfishman/meetini/internal/reminder/domain"
	"github.com/toddfishman/meetini/internal/scheduler"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	invitation.Module,
	reminder.Module,
	ratelimit.Module,
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(registerRoutes),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func registerRoutes(s *Server) {
	s.RegisterAPIRoutes()
	s.RegisterCronRoutes()
	s.RegisterPublicRoutes()
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http.server.failed", zap.Error(err))
				}
			}()
			log.Info("http.server.started", zap.String("addr", addr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine  *gin.Engine
	cfg     config.Config
	log     *zap.Logger
	clock   clock.Clock
	apiKeys [][]byte

	invitationSvc invitationdomain.Service
	reminders     reminderdomain.Scheduler
	scheduler     *scheduler.Scheduler
	links         *link.Signer
	linkLimiter   *ratelimit.LinkLimiter
}

type ServerParams struct {
	fx.In

	Gin   *gin.Engine
	Cfg   config.Config
	Log   *zap.Logger
	Clock clock.Clock

	InvitationSvc invitationdomain.Service
	Reminders     reminderdomain.Scheduler
	Links         *link.Signer
	Scheduler     *scheduler.Scheduler   `optional:"true"`
	LinkLimiter   *ratelimit.LinkLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	keys := make([][]byte, 0, len(p.Cfg.APIKeys))
	for _, key := range p.Cfg.APIKeys {
		keys = append(keys, []byte(key))
	}
	return &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http.server"),
		clock:         p.Clock,
		apiKeys:       keys,
		invitationSvc: p.InvitationSvc,
		reminders:     p.Reminders,
		scheduler:     p.Scheduler,
		links:         p.Links,
		linkLimiter:   p.LinkLimiter,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api")

	invitations := api.Group("/invitations", s.APIKeyRequired())
	{
		invitations.POST("", s.CreateInvitation)
		invitations.GET("/:id", s.GetInvitation)
		invitations.DELETE("/:id", s.DeleteInvitation)
		invitations.POST("/:id/responses", s.RespondToInvitation)
		invitations.POST("/:id/finalize", s.FinalizeInvitation)
		invitations.POST("/:id/cancel", s.CancelInvitation)
		invitations.PUT("/:id/calendar-event", s.AttachCalendarEvent)
		invitations.GET("/:id/reminders", s.ListReminders)
		invitations.POST("/:id/reminders", s.ScheduleReminders)
	}
}

func (s *Server) RegisterCronRoutes() {
	cron := s.engine.Group("/api/cron", s.CronSecretRequired())
	cron.POST("/reminders", s.TriggerReminders)
}

func (s *Server) RegisterPublicRoutes() {
	public := s.engine.Group("/public", s.PublicLinkRateLimit())
	public.GET("/invitations/:id", s.GetPublicInvitation)
	public.POST("/invitations/:id/responses", s.RespondToPublicInvitation)
}
