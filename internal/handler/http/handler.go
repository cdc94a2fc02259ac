package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	_ "github.com/aniladanir/hospital-messenger-service/docs"
	"github.com/aniladanir/hospital-messenger-service/internal/domain"
	"github.com/aniladanir/hospital-messenger-service/internal/repository/settings"
	"github.com/aniladanir/hospital-messenger-service/internal/resolver"
	"github.com/aniladanir/hospital-messenger-service/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// BatchController is the part of the batch lifecycle exposed to operators.
type BatchController interface {
	Start(ctx context.Context, req service.StartRequest) (*service.StartResult, error)
	Cancel(ctx context.Context, batchID string) (*domain.Batch, error)
	Pause(ctx context.Context, d domain.Domain) error
	Resume(ctx context.Context, d domain.Domain) (int, error)
	ClearStuck(ctx context.Context, d domain.Domain) (*service.ClearResult, error)
	Status(ctx context.Context, d domain.Domain) (domain.ProgressSnapshot, error)
	GetBatch(ctx context.Context, id string) (*domain.Batch, error)
	ListBatches(ctx context.Context, d domain.Domain, limit int) ([]domain.Batch, error)
	ListFailed(ctx context.Context, d domain.Domain, limit, offset int) ([]domain.Recipient, error)
	ResetRecipient(ctx context.Context, id int) error
}

type ReminderTrigger interface {
	RunNow(ctx context.Context, daysAhead int) (*service.StartResult, error)
	Preview(ctx context.Context, daysAhead int) (*resolver.Result, error)
}

type Config struct {
	Addr         string
	APIKey       string
	AllowOrigins []string
}

type Handler struct {
	controller BatchController
	reminders  ReminderTrigger
	settings   settings.Repository
	logger     *slog.Logger
	router     *gin.Engine
	server     *http.Server
}

// @title Hospital Messenger API
// @version 1.0
// @description Admin API for WhatsApp appointment reminders and bulk sends
// @host localhost:6060
// @BasePath /
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
func NewHttpHandler(cfg Config, controller BatchController, reminders ReminderTrigger, store settings.Repository, logger *slog.Logger) *Handler {
	h := &Handler{
		controller: controller,
		reminders:  reminders,
		settings:   store,
		logger:     logger,
	}

	// create router
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Content-Length", apiKeyHeader},
		ExposeHeaders:    []string{"Content-Type", "Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.AllowOrigins
	}
	router.Use(cors.New(corsCfg))

	// register routes
	router.GET("/health", h.health)
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := router.Group("/", requireAPIKey(cfg.APIKey, logger))
	api.POST("/batches", h.startBatch)
	api.GET("/batches", h.listBatches)
	api.GET("/batches/:id", h.getBatch)
	api.POST("/batches/:id/cancel", h.cancelBatch)

	api.GET("/status/:domain", h.getStatus)
	api.POST("/status/:domain/pause", h.pause)
	api.POST("/status/:domain/resume", h.resume)
	api.POST("/status/:domain/clear", h.clearStuck)

	api.POST("/reminders/run", h.runReminders)
	api.GET("/reminders/preview", h.previewReminders)

	api.GET("/recipients/failed", h.listFailed)
	api.POST("/recipients/:id/reset", h.resetRecipient)

	api.GET("/settings", h.listSettings)
	api.PUT("/settings/:key", h.putSetting)

	h.router = router

	// create http server
	h.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return h
}

func (h *Handler) Run() error {
	return h.server.ListenAndServe()
}

func (h *Handler) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

// Health godoc
// @Summary Liveness check
// @Tags Health
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
