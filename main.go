package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bidledger/internal/bus"
	"bidledger/internal/bus/membus"
	"bidledger/internal/bus/natsbus"
	"bidledger/internal/config"
	"bidledger/internal/database/db_client"
	"bidledger/internal/database/migrations"
	"bidledger/internal/http/auctionhandler"
	"bidledger/internal/http/bidhandler"
	"bidledger/internal/http/http_server"
	"bidledger/internal/models"
	"bidledger/internal/redis/redis_client"
	"bidledger/internal/redis/redis_scripts"
	"bidledger/internal/redis/redislock"
	"bidledger/internal/redis/watcher/auctionwatcher"
	"bidledger/internal/services/auction"
	"bidledger/internal/services/bidding"
	"bidledger/internal/store"
	"bidledger/internal/store/memstore"
	"bidledger/internal/store/pgstore"
	"bidledger/internal/store/redisreplica"
	"bidledger/internal/ws"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	Log, _ = zap.NewDevelopment()
)

const (
	replicaConsumer    = "bidding-replica"
	projectionConsumer = "auction-projection"
	deadLetterConsumer = "auction-dead-letters"

	duplicateWindow = 2 * time.Minute
)

type messageBus interface {
	bus.Publisher
	bus.Subscriber
}

// backends are the shared connections. In memory mode rdb and db are nil.
type backends struct {
	bus messageBus
	rdb *redis.Client
	db  *sql.DB
}

func main() {
	zap.ReplaceGlobals(Log)

	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		Log.Fatal("Failed to load configuration", zap.Error(err))
	}
	if cfg.LogEnv == "production" {
		if prod, err := zap.NewProduction(); err == nil {
			Log = prod
			zap.ReplaceGlobals(Log)
		}
	}
	defer Log.Sync()
	Log.Debug("Configuration loaded successfully", zap.Any("config", cfg))

	// 2. Context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGINT, syscall.SIGTERM,
	)
	defer stop()

	// 3. Bus, Redis and Postgres
	be, closeAll := openBackends(ctx, cfg)
	defer closeAll()

	routes := http_server.Routes{Role: cfg.ServiceRole}

	// 4. Services of the configured role
	if cfg.RunsBidding() {
		routes.Bids = startBidding(ctx, cfg, be)
	}
	if cfg.RunsAuction() {
		routes.Auctions, routes.Ws = startAuction(ctx, cfg, be)
	}

	// 5. HTTP + WS server
	httpServer := http_server.NewHttpServer(ctx, cfg.HttpServerPort, routes)
	errCh := make(chan error, 1)
	go func() { errCh <- httpServer.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			Log.Fatal("Failed to start HTTP server", zap.Error(err))
		}
	case <-ctx.Done():
		Log.Info("shutting_down")
		_ = httpServer.Dispose()
	}
}

func openBackends(ctx context.Context, cfg *config.Config) (*backends, func()) {
	if cfg.InMemory {
		Log.Warn("in_memory_mode", zap.String("role", cfg.ServiceRole))
		return &backends{bus: membus.New(membus.WithDuplicateWindow(duplicateWindow))}, func() {}
	}

	var closers []func()
	be := &backends{}

	nb, err := natsbus.Connect(ctx, cfg.NatsURL, natsbus.Options{
		Stream: cfg.BusStream,
		Subjects: []string{
			models.Wildcard("bids"),
			models.Wildcard("auctions"),
			models.Wildcard(models.SubjectDeadLetter),
		},
		MaxAge:          7 * 24 * time.Hour,
		DuplicateWindow: duplicateWindow,
		PublishRetries:  cfg.PublishRetryAttempts,
		PublishWait:     cfg.PublishRetryBackoff,
	})
	if err != nil {
		Log.Fatal("nats-connect", zap.Error(err))
	}
	be.bus = nb
	closers = append(closers, func() { _ = nb.Close() })

	be.rdb, err = redis_client.NewRedisClient(cfg.RedisAuctionsHost, int(cfg.RedisAuctionsPort))
	if err != nil {
		Log.Fatal("Failed to create Redis client", zap.Error(err))
	}
	closers = append(closers, func() { _ = be.rdb.Close() })

	// Load the Redis lua scripts
	if err := redis_scripts.LoadAll(ctx, be.rdb); err != nil {
		Log.Fatal("load-redis-scripts", zap.Error(err))
	}

	be.db, err = db_client.Open(cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDb)
	if err != nil {
		Log.Fatal("pg-open", zap.Error(err))
	}
	closers = append(closers, func() { _ = be.db.Close() })

	return be, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
}

func subscribe(ctx context.Context, be *backends, sub bus.Subscription, h bus.Handler) {
	go func() {
		if err := be.bus.Subscribe(ctx, sub, h); err != nil {
			Log.Fatal("subscribe", zap.String("consumer", sub.Name), zap.Error(err))
		}
	}()
}

func consumer(cfg *config.Config, name, subject string) bus.Subscription {
	return bus.Subscription{
		Name:           name,
		Subject:        subject,
		RetryInterval:  cfg.ConsumerRetryInterval,
		MaxAttempts:    cfg.ConsumerMaxAttempts,
		HandlerTimeout: cfg.EventHandlerTimeout,
	}
}

func startBidding(ctx context.Context, cfg *config.Config, be *backends) *bidhandler.Handler {
	var (
		bids    store.BidStore
		replica store.AuctionReplica
		lock    bidding.Locker
	)
	if be.db != nil {
		if err := migrations.Up(be.db, migrations.Bidding); err != nil {
			Log.Fatal("migrate-bidding", zap.Error(err))
		}
		bids = pgstore.NewBidStore(be.db)
		replica = redisreplica.New(be.rdb)
		lock = redislock.New(be.rdb)
	} else {
		bids = memstore.NewBidStore()
		replica = memstore.NewReplica()
	}

	subscribe(ctx, be, consumer(cfg, replicaConsumer, models.Wildcard("auctions")),
		bidding.NewReplicaSync(replica).HandleMessage)

	events := bidding.NewEventPublisher(be.bus, cfg.PublishRetryAttempts, cfg.PublishRetryBackoff)

	reconciler := bidding.NewReconciler(bids, events, lock, cfg.ReconcileLookback)
	if err := reconciler.Start(ctx, cfg.ReconcileSchedule); err != nil {
		Log.Fatal("reconcile-schedule", zap.Error(err))
	}

	svc := bidding.NewBiddingService(bids, replica, events, bidding.Options{PlaceTimeout: cfg.BidPlaceTimeout})
	return bidhandler.New(svc, reconciler)
}

type liveNotifier interface {
	auction.LiveNotifier
	auctionwatcher.EndNotifier
}

func startAuction(ctx context.Context, cfg *config.Config, be *backends) (*auctionhandler.Handler, *ws.WsServer) {
	var (
		auctions store.AuctionStore
		failed   store.FailedMessageStore
		timers   auction.EndScheduler
		live     liveNotifier
	)
	hub := ws.NewHub()

	if be.db != nil {
		if err := migrations.Up(be.db, migrations.Auction); err != nil {
			Log.Fatal("migrate-auction", zap.Error(err))
		}
		auctions = pgstore.NewAuctionStore(be.db)
		failed = pgstore.NewFailedMessageStore(be.db)
		live = ws.NewRedisNotifier(be.rdb)
		timers = auctionwatcher.NewTimers(be.rdb)

		// Background: key-expiry watcher -> "ended" push to viewers
		go auctionwatcher.Run(ctx, be.rdb, live)
	} else {
		auctions = memstore.NewAuctionStore()
		failed = memstore.NewFailedMessageStore()
		live = ws.NewHubNotifier(hub)
	}

	pub := bus.WithRetry(be.bus, cfg.PublishRetryAttempts, cfg.PublishRetryBackoff)

	proj := consumer(cfg, projectionConsumer, models.Wildcard(models.SubjectBidAccepted))
	proj.DeadLetterSubject = bus.DeadLetterSubject(models.SubjectDeadLetter, projectionConsumer)
	subscribe(ctx, be, proj, auction.NewProjector(auctions, live).HandleMessage)

	fm := auction.NewFailedMessages(failed, pub)
	subscribe(ctx, be, consumer(cfg, deadLetterConsumer, proj.DeadLetterSubject), fm.HandleMessage)
	if err := fm.Start(ctx, cfg.FailedReplaySchedule); err != nil {
		Log.Fatal("failed-replay-schedule", zap.Error(err))
	}

	svc := auction.NewAuctionService(auctions, pub, timers)
	return auctionhandler.New(svc), ws.NewWsServer(ctx, hub, be.rdb, svc)
}
