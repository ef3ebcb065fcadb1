package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"lot-auction-service/internal/adapters/broadcaster"
	"lot-auction-service/internal/adapters/db"
	"lot-auction-service/internal/adapters/eligibility"
	"lot-auction-service/internal/adapters/httpapi"
	"lot-auction-service/internal/adapters/lock"
	"lot-auction-service/internal/adapters/memory"
	"lot-auction-service/internal/adapters/natsio"
	"lot-auction-service/internal/adapters/redis"
	"lot-auction-service/internal/adapters/scheduler"
	"lot-auction-service/internal/adapters/ws"
	"lot-auction-service/internal/app"
	"lot-auction-service/internal/clock"
	"lot-auction-service/internal/config"
	"lot-auction-service/internal/ports/outbound"
)

func main() {

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	initLogging(cfg)

	log.Info().
		Str("store", cfg.Store.Driver).
		Str("lock", cfg.Store.LockDriver).
		Strs("sinks", cfg.Store.SinkDrivers).
		Msg("Starting Lot Auction Service...")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create Redis client
	var redisClient *goredis.Client
	if cfg.UsesRedis() {
		redisClient = redis.NewClient(cfg)
		if err := redis.PingRedis(ctx, redisClient); err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
		log.Info().Msg("Redis connection established")
	}

	// Create repositories
	var (
		lots        outbound.LotRepository
		bids        outbound.BidRepository
		settlements outbound.SettlementRepository
		catalog     outbound.Catalog
		gate        outbound.EligibilityGate
		jobStore    outbound.JobStore
	)
	switch cfg.Store.Driver {
	case "postgres":
		dbConn, err := db.NewConnection(ctx, &cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer dbConn.Close()
		if cfg.Database.InitSchema {
			if err := dbConn.InitSchema(ctx); err != nil {
				log.Fatal().Err(err).Msg("Failed to initialize database schema")
			}
		}
		log.Info().Msg("Database connection established")

		repoFactory := db.NewRepositoryFactory(dbConn)
		lots = repoFactory.GetLotRepository()
		bids = repoFactory.GetBidRepository()
		settlements = repoFactory.GetSettlementRepository()
		catalog = repoFactory.GetCatalog()
	default:
		store := memory.NewStore()
		lots, bids, settlements = store, store.Bids(), store.Settlements()
		seed, err := memory.LoadCatalog(cfg.Store.CatalogFile)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.Store.CatalogFile).Msg("Failed to load lot catalog")
		}
		catalog = seed
		log.Warn().Int("lots", seed.Len()).Msg("Using in-memory lot store; state is lost on restart")
	}

	if redisClient != nil {
		gate = eligibility.NewRedisGate(eligibility.RedisGateParams{RedisClient: redisClient, Logger: log.Logger})
		jobStore = redis.NewJobStore(redisClient, cfg.Scheduler.JobKey)
	} else {
		gate = memory.NewOpenEligibilityGate()
		jobStore = memory.NewJobStore()
		log.Warn().Msg("No Redis configured; eligibility is open and timers are not durable")
	}

	log.Info().Msg("Repositories initialized")

	// Per-lot lock
	var locker outbound.LotLocker = lock.NewKeyedLocker()
	if cfg.Store.LockDriver == "redis" {
		locker = lock.NewRedisLocker(lock.RedisLockerParams{Client: redisClient, Logger: log.Logger})
	}

	// Event sinks
	var natsConn *nats.Conn
	if cfg.HasSink("nats") {
		natsConn, err = nats.Connect(cfg.NATS.URL, nats.Name("lot-auction-service"))
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer natsConn.Close()
		log.Info().Str("url", cfg.NATS.URL).Msg("NATS connection established")
	}

	var (
		sinks            []outbound.EventSink
		redisBroadcaster *broadcaster.RedisBroadcaster
	)
	for _, name := range cfg.Store.SinkDrivers {
		switch name {
		case "redis":
			redisBroadcaster = broadcaster.NewBroadcaster(broadcaster.RedisBroadcasterParams{
				RedisClient: redisClient,
				Logger:      log.Logger,
			})
			sinks = append(sinks, redisBroadcaster)
		case "nats":
			audit, err := natsio.NewAuditSink(ctx, natsio.AuditSinkParams{
				Conn:          natsConn,
				Stream:        cfg.NATS.Stream,
				SubjectPrefix: cfg.NATS.SubjectPrefix,
				Logger:        log.Logger,
			})
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to create NATS audit sink")
			}
			sinks = append(sinks, audit)
		case "log":
			sinks = append(sinks, broadcaster.NewLogSink(log.Logger))
		}
	}
	sink := broadcaster.NewFanOut(sinks...)

	log.Info().Int("sinks", len(sinks)).Msg("Event sinks initialized")

	// Create business services
	policy := app.Policy{
		PaymentDeadline:   cfg.Auction.PaymentDeadline,
		MaxFailedAttempts: cfg.Auction.MaxFailedAttempts,
		AutoReopen:        cfg.Auction.AutoReopen,
		ReopenDelay:       cfg.Auction.ReopenDelay,
		ReopenDuration:    cfg.Auction.ReopenDuration,
	}
	clk := clock.New()

	mutator := app.NewLotMutator(app.LotMutatorParams{
		Locker:  locker,
		Lots:    lots,
		Catalog: catalog,
		Sink:    sink,
		Clock:   clk,
		Logger:  log.Logger,
	})
	settlementService := app.NewSettlementService(app.SettlementServiceParams{
		Mutator:        mutator,
		BidRepo:        bids,
		SettlementRepo: settlements,
		Policy:         policy,
		Logger:         log.Logger,
	})
	auctionService := app.NewAuctionService(app.AuctionServiceParams{
		Mutator:        mutator,
		BidRepo:        bids,
		SettlementRepo: settlements,
		Settlements:    settlementService,
		Clock:          clk,
		Policy:         policy,
		Logger:         log.Logger,
	})
	bidService := app.NewBidService(app.BidServiceParams{
		Mutator:     mutator,
		BidRepo:     bids,
		Eligibility: gate,
		Clock:       clk,
		Logger:      log.Logger,
	})

	log.Info().Msg("Business services initialized")

	// Create auction scheduler
	auctionScheduler := scheduler.NewAuctionScheduler(scheduler.AuctionSchedulerParams{
		Clock:         clk,
		Store:         jobStore,
		Handler:       auctionService,
		Workers:       cfg.Scheduler.Workers,
		QueueCapacity: cfg.Scheduler.QueueCapacity,
		RetryDelay:    cfg.Scheduler.RetryDelay,
		Logger:        log.Logger,
	})

	// Update mutator with scheduler
	mutator.SetScheduler(auctionScheduler)

	// Start auction scheduler
	if err := auctionScheduler.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start auction scheduler")
	}
	log.Info().Int("timers", len(auctionScheduler.Scheduled())).Msg("Auction scheduler started")

	// Payment signals from financial processing
	var paymentConsumer *natsio.PaymentConsumer
	if natsConn != nil {
		paymentConsumer = natsio.NewPaymentConsumer(natsio.PaymentConsumerParams{
			Conn:        natsConn,
			Settlements: settlementService,
			QueueGroup:  cfg.NATS.PaymentsQueue,
			Logger:      log.Logger,
		})
		if err := paymentConsumer.Start(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to start payment consumer")
		}
		log.Info().Msg("Payment consumer started")
	}

	var wsRoute http.HandlerFunc
	if redisBroadcaster != nil {
		wsHandler := ws.NewHandler(ws.WsHandlerParams{
			Upgrader: websocket.Upgrader{
				ReadBufferSize:  cfg.WebSocket.ReadBufferSize,
				WriteBufferSize: cfg.WebSocket.WriteBufferSize,
			},
			AuctionService: auctionService,
			BidService:     bidService,
			Broadcaster:    redisBroadcaster,
			MaxWorkers:     cfg.WebSocket.MaxWorkers,
			MaxCapacity:    cfg.WebSocket.MaxCapacity,
			Logger:         log.Logger,
		})
		wsRoute = wsHandler.HandleWebSocket
	}

	server := httpapi.NewServer(httpapi.ServerParams{
		Config: cfg,
		Handler: httpapi.NewRouter(httpapi.NewHandler(httpapi.HandlerParams{
			AuctionService:    auctionService,
			BidService:        bidService,
			SettlementService: settlementService,
			Logger:            log.Logger,
		}), wsRoute, log.Logger),
		Logger: log.Logger,
	})

	log.Info().Msg("HTTP server initialized")

	// Start HTTP server
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Failed to start HTTP server")
			cancel()
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case <-ctx.Done():
		log.Info().Msg("Context cancelled")
	}

	// Graceful shutdown
	log.Info().Msg("Starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Stop accepting commands first
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping HTTP server")
	}

	if paymentConsumer != nil {
		paymentConsumer.Close()
		log.Info().Msg("Payment consumer stopped")
	}

	// Stop auction scheduler; pending timers stay in the job store
	auctionScheduler.Stop()
	log.Info().Msg("Auction scheduler stopped")

	if redisBroadcaster != nil {
		if err := redisBroadcaster.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing broadcaster")
		}
	}

	log.Info().Msg("Graceful shutdown completed")
}

func initLogging(cfg *config.Config) {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Set log format
	if cfg.Logging.Format == "json" {
		// JSON format (default)
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	} else {
		// Console format for development
		output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global logger
	zerolog.DefaultContextLogger = &log.Logger
}
