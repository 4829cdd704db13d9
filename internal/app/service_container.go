package app

import (
	"fmt"
	"time"

	"proof-host/internal/backends"
	"proof-host/internal/clients"
	"proof-host/internal/config"
	"proof-host/internal/db"
	"proof-host/internal/events"
	"proof-host/internal/handlers"
	"proof-host/internal/repository"
	"proof-host/internal/router"
	"proof-host/internal/services"
	"proof-host/internal/types"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ServiceContainer owns every long-lived component of the host
type ServiceContainer struct {
	Config *config.Config
	Logger *logrus.Logger

	// Storage
	DB    *gorm.DB // nil with the memory driver
	Store repository.TaskRepository

	// Backends
	ChainClient *clients.ChainClient
	Pool        *backends.Pool

	// Events
	Publisher     *events.MultiPublisher
	StatusFeed    *services.StatusFeed
	NATSPublisher *events.NATSPublisher

	// Core Services
	Gate         *services.AdmissionGate
	RequestActor *services.RequestActor
	Splitter     *services.AggregationSplitter
	ProofService *services.ProofService
	TaskMonitor  *services.TaskMonitor

	Router *gin.Engine
}

// NewServiceContainer builds the container; nothing runs until Start
func NewServiceContainer(cfg *config.Config, logger *logrus.Logger) (*ServiceContainer, error) {
	logger.Info("🚀 Initializing Service Container...")
	c := &ServiceContainer{Config: cfg, Logger: logger}

	// 1. Storage
	if err := c.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	// 2. Backends and core services
	c.initCoreServices()

	// 3. Event services (optional, based on config)
	if err := c.initEventServices(); err != nil {
		logger.WithError(err).Warn("⚠️ Event services initialization skipped or failed")
	}

	// 4. HTTP surface
	c.Router = router.SetupRouter(cfg, router.Handlers{
		Proof:     handlers.NewProofHandler(c.ProofService, logger),
		Admin:     handlers.NewAdminHandler(c.ProofService, c.Store, logger),
		WebSocket: handlers.NewWebSocketHandler(c.StatusFeed, logger),
	}, logger)

	logger.Info("✅ Service Container initialized successfully")
	return c, nil
}

func (c *ServiceContainer) initRepositories() error {
	if c.Config.Database.Driver == "memory" {
		c.Logger.Warn("📦 Using in-memory task store, tasks are lost on restart")
		c.Store = repository.NewMemoryTaskRepository()
		return nil
	}

	gdb, err := db.Open(c.Config.Database)
	if err != nil {
		return err
	}
	c.DB = gdb
	c.Store = repository.NewTaskRepository(gdb)
	c.Logger.Info("📦 Using postgres task store")
	return nil
}

func (c *ServiceContainer) initCoreServices() {
	cfg := c.Config

	c.ChainClient = clients.NewChainClient(cfg.Networks, c.Logger)

	c.Pool = backends.NewPool(cfg.Pool.MaxConcurrency, c.Logger)
	for name, prover := range cfg.Provers {
		if !prover.Enabled {
			continue
		}
		proofType, err := types.ParseProofType(name)
		if err != nil {
			continue // rejected by Validate
		}
		if proofType == types.ProofTypeNative {
			c.Pool.Register(proofType, backends.NewNativeProver(c.ChainClient))
		} else {
			timeout := time.Duration(prover.Timeout) * time.Second
			c.Pool.Register(proofType, backends.NewRemoteProver(proofType, prover.BaseURL, timeout, c.Logger))
		}
		c.Logger.WithFields(logrus.Fields{"proof_type": proofType, "url": prover.BaseURL}).Info("🔌 Prover backend registered")
	}

	c.StatusFeed = services.NewStatusFeed(c.Logger)
	c.Publisher = events.NewMultiPublisher(c.StatusFeed)

	c.Gate = services.NewAdmissionGate(cfg.Paused, c.Logger)
	c.RequestActor = services.NewRequestActor(services.RequestActorConfig{
		ChannelCapacity: cfg.Actor.ChannelCapacity,
		EnqueueTimeout:  cfg.Actor.EnqueueTimeout(),
	}, c.Store, c.Pool, c.Publisher, c.Logger)
	c.Splitter = services.NewAggregationSplitter(cfg.ProofRequest, cfg.ImageDefaults(), c.ChainClient)
	c.ProofService = services.NewProofService(c.Gate, c.Splitter, c.RequestActor, c.Store, c.Logger)
	c.TaskMonitor = services.NewTaskMonitor(c.Store,
		time.Duration(cfg.Monitor.IntervalSeconds)*time.Second,
		time.Duration(cfg.Monitor.StaleAfterSeconds)*time.Second,
		c.Logger)
}

// initEventServices connects NATS when configured
func (c *ServiceContainer) initEventServices() error {
	if c.Config.NATS.URL == "" {
		return fmt.Errorf("NATS not configured")
	}

	publisher, err := events.NewNATSPublisher(c.Config.NATS, c.Logger)
	if err != nil {
		return err
	}
	c.NATSPublisher = publisher
	c.Publisher.Add(publisher)

	if err := publisher.SubscribePause(func(paused bool) { c.Gate.SetPaused(paused) }); err != nil {
		return err
	}
	return nil
}

// Start starts the request actor, which first recovers live tasks, and the monitor
func (c *ServiceContainer) Start() {
	c.RequestActor.Start()
	c.Logger.Info("✅ Request actor started")
	c.TaskMonitor.Start()
}

// Cleanup stops every component in reverse start order
func (c *ServiceContainer) Cleanup() {
	c.Logger.Info("🧹 Cleaning up Service Container...")

	if c.TaskMonitor != nil {
		c.TaskMonitor.Stop()
	}
	if c.RequestActor != nil {
		c.RequestActor.Stop()
	}
	if c.NATSPublisher != nil {
		c.NATSPublisher.Close()
	}
	if c.ChainClient != nil {
		c.ChainClient.Close()
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}

	c.Logger.Info("✅ Service Container cleaned up")
}
