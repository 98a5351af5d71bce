package control

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/upfleet/watchtower/internal/core/config"
	"github.com/upfleet/watchtower/internal/infra/mqtt"
	redisclient "github.com/upfleet/watchtower/internal/infra/redis"
	"github.com/upfleet/watchtower/internal/infra/storage"
	"github.com/upfleet/watchtower/internal/infra/storage/memory"
	"github.com/upfleet/watchtower/internal/infra/storage/postgres"
	"github.com/upfleet/watchtower/internal/liveness"
	"github.com/upfleet/watchtower/internal/liveness/health"

	"github.com/pressly/goose/v3"
)

// Collector is the main application struct wiring the transport's
// event stream and the sweep timer into the liveness engine.
type Collector struct {
	cfg          Config
	engine       *liveness.Engine
	detector     *liveness.DownDetector
	statusRepo   storage.StatusRepository
	uptimeRepo   storage.UptimeRepository
	db           *postgres.DB
	redisClient  *redisclient.Client
	mqttClient   *mqtt.Client
	healthMon    *health.Monitor
	healthServer *health.Server
	grpcHealth   *health.GRPCServer
	log          *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds the application configuration.
type Config struct {
	Port      int
	GRPCPort  int
	MQTT      mqtt.Config
	Redis     redisclient.Config
	Database  postgres.Config
	Heartbeat config.HeartbeatConfig
}

// NewCollector creates a Collector with all dependencies initialized.
// The MQTT connection is established in Start.
func NewCollector(cfg Config) (*Collector, error) {

	// 1. Initialize Storage
	var statusRepo storage.StatusRepository
	var uptimeRepo storage.UptimeRepository
	var db *postgres.DB
	var storeHealth health.StoreHealth

	if cfg.Database.URL != "" {
		var err error
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}

		// Run migrations
		if err := goose.SetDialect("postgres"); err != nil {
			return nil, err
		}
		if err := goose.Up(db.DB.DB, "migrations"); err != nil {
			return nil, fmt.Errorf("failed to migrate db: %w", err)
		}

		statusRepo = postgres.NewStatusRepo(db)
		uptimeRepo = postgres.NewUptimeRepo(db)
		storeHealth = db
		slog.Info("Using PostgreSQL storage")
	} else {
		store := memory.NewMemoryStorage()
		statusRepo = memory.NewStatusRepo(store)
		uptimeRepo = memory.NewUptimeRepo(store)
		slog.Info("Using in-memory storage (no database configured)")
	}

	// 2. Initialize Redis (optional dead letter queue)
	var redisClient *redisclient.Client
	if cfg.Redis.URL != "" {
		var err error
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		slog.Info("Dead letter queue enabled")
	}

	// 3. Core: engine + down detector share one config
	livenessCfg := liveness.Config{
		HeartbeatInterval:   cfg.Heartbeat.Interval,
		StalenessMultiplier: cfg.Heartbeat.StalenessMultiplier,
	}
	engine := liveness.NewEngine(statusRepo, livenessCfg)
	detector := liveness.NewDownDetector(statusRepo, livenessCfg)

	// 4. Health surfaces. The broker source is attached in Start once
	// the MQTT connection exists.
	c := &Collector{
		cfg:         cfg,
		engine:      engine,
		detector:    detector,
		statusRepo:  statusRepo,
		uptimeRepo:  uptimeRepo,
		db:          db,
		redisClient: redisClient,
		log:         slog.Default().With("component", "collector"),
	}

	var deadLetter health.DeadLetterCounter
	if redisClient != nil {
		deadLetter = redisClient
	}
	c.healthMon = health.NewMonitor(statusRepo, storeHealth, c, deadLetter)
	c.healthServer = health.NewServer(c.healthMon, cfg.Port)
	if cfg.GRPCPort > 0 {
		c.grpcHealth = health.NewGRPCServer(c.healthMon, cfg.GRPCPort)
	}

	return c, nil
}

// Connected implements health.BrokerHealth.
func (c *Collector) Connected() bool {
	if c.mqttClient == nil {
		return false
	}
	return c.mqttClient.Connected()
}

// Start connects the transport and starts all background loops.
func (c *Collector) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	// Start Health Server
	go func() {
		if err := c.healthServer.Start(); err != nil {
			c.log.Error("Health server failed", "error", err)
		}
	}()

	if c.grpcHealth != nil {
		go func() {
			if err := c.grpcHealth.Start(); err != nil {
				c.log.Error("gRPC health server failed", "error", err)
			}
		}()
	}

	// Start DB Metrics Collector
	if c.db != nil {
		c.db.StartMetricsCollector(ctx)
	}

	// Connect transport and subscribe
	mqttClient, err := mqtt.NewClient(c.cfg.MQTT)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to connect transport: %w", err)
	}
	c.mqttClient = mqttClient

	if err := mqttClient.SubscribeHeartbeats(func(topic string, payload []byte) {
		c.handleMessage(ctx, topic, payload)
	}); err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	c.log.Info("Consuming heartbeats", "broker", c.cfg.MQTT.Broker)

	// Start the down-detector sweep loop
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.runSweepLoop(ctx)
	}()

	return nil
}

// Stop stops the collector.
func (c *Collector) Stop(ctx context.Context) error {
	c.log.Info("Stopping Collector...")

	if c.mqttClient != nil {
		c.mqttClient.Close()
	}

	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	if c.grpcHealth != nil {
		c.grpcHealth.Stop()
	}

	if c.redisClient != nil {
		if err := c.redisClient.Close(); err != nil {
			c.log.Warn("Failed to close Redis", "error", err)
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.log.Warn("Failed to close database", "error", err)
		}
	}

	return c.healthServer.Stop(ctx)
}

// runSweepLoop drives the down detector at the configured tick.
func (c *Collector) runSweepLoop(ctx context.Context) {
	interval := c.cfg.Heartbeat.SweepInterval
	if interval <= 0 {
		interval = c.cfg.Heartbeat.Interval
	}
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := c.detector.Sweep(ctx, time.Now()); err != nil {
				c.log.Error("Sweep failed", "error", err)
			}
			c.refreshGauges(ctx)
		}
	}
}
