package api

import (
	"context"
	"fmt"
	"time"

	"github.com/collectarr/collectarr/internal/external/channelsdvr"
	"github.com/collectarr/collectarr/internal/external/dispatcharr"
	"github.com/collectarr/collectarr/internal/logger"
	"github.com/collectarr/collectarr/internal/models"
	"github.com/collectarr/collectarr/internal/rules"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// DVRClient is the slice of the DVR client the API needs.
type DVRClient interface {
	Ping(ctx context.Context) error
	FetchDevices(ctx context.Context) ([]channelsdvr.Device, error)
	FetchInventory(ctx context.Context) ([]models.Channel, []string, error)
	FetchCollections(ctx context.Context) ([]models.Collection, error)
	FetchCollection(ctx context.Context, slug string) (*models.Collection, error)
}

// SyncRunner is the slice of the syncer the API needs.
type SyncRunner interface {
	SyncAll(ctx context.Context, trigger string) (*models.SyncReport, error)
	SyncRule(ctx context.Context, ruleID string) (*models.SyncReport, error)
	LastReport() *models.SyncReport
	Running() bool
	History(limit int) ([]models.SyncLog, error)
}

// IPTVManager is the slice of the Dispatcharr client the API needs.
// Nil when no manager is configured.
type IPTVManager interface {
	FetchEnabledGroups(ctx context.Context) ([]dispatcharr.EnabledGroup, error)
	TestConnection(ctx context.Context) dispatcharr.TestResult
}

// Server represents the API server
type Server struct {
	router  *gin.Engine
	store   *rules.Store
	syncer  SyncRunner
	dvr     DVRClient
	manager IPTVManager
	log     *logger.Logger
	started time.Time
}

// Config holds server wiring
type Config struct {
	Store       *rules.Store
	Syncer      SyncRunner
	DVR         DVRClient
	Manager     IPTVManager
	Logger      *logger.Logger
	CORSOrigins []string
}

// NewServer creates a new API server instance
func NewServer(cfg Config) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	log := cfg.Logger
	if log == nil {
		log = logger.Default()
	}

	corsCfg := cors.DefaultConfig()
	if len(cfg.CORSOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.CORSOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "X-Request-ID")
	router.Use(cors.New(corsCfg))
	router.Use(requestIDMiddleware())
	router.Use(errorHandlerMiddleware())

	s := &Server{
		router:  router,
		store:   cfg.Store,
		syncer:  cfg.Syncer,
		dvr:     cfg.DVR,
		manager: cfg.Manager,
		log:     log,
		started: time.Now(),
	}

	s.setupRoutes()

	return s
}

// Run starts the API server on the specified port
func (s *Server) Run(port int) error {
	return s.router.Run(fmt.Sprintf(":%d", port))
}

// Router exposes the gin engine, used by tests and the serve command.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	api := s.router.Group("/api")
	{
		api.GET("/status", s.status)
		api.GET("/test-connection", s.testConnection)

		api.GET("/rules", s.listRules)
		api.POST("/rules", s.createRule)
		api.GET("/rules/:id", s.getRule)
		api.PUT("/rules/:id", s.updateRule)
		api.DELETE("/rules/:id", s.deleteRule)
		api.POST("/rules/:id/sync", s.syncRule)
		api.POST("/rules/merge", s.mergeRules)

		api.GET("/channels", s.listChannels)
		api.GET("/collections", s.listCollections)
		api.GET("/collections/:slug", s.getCollection)
		api.GET("/sources", s.listSources)
		api.GET("/groups", s.listGroups)

		api.POST("/preview", s.previewRule)

		api.POST("/sync", s.triggerSync)
		api.GET("/sync/status", s.syncStatus)
		api.GET("/sync/history", s.syncHistory)
	}
}
