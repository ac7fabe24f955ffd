package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cwrk-planet/presence-service/config"
	"github.com/cwrk-planet/presence-service/internal/broadcast"
	"github.com/cwrk-planet/presence-service/internal/cache"
	"github.com/cwrk-planet/presence-service/internal/gateway"
	"github.com/cwrk-planet/presence-service/internal/memory"
	"github.com/cwrk-planet/presence-service/internal/metrics"
	"github.com/cwrk-planet/presence-service/internal/pg"
	"github.com/cwrk-planet/presence-service/internal/postgres"
	"github.com/cwrk-planet/presence-service/internal/relay"
	"github.com/cwrk-planet/presence-service/internal/security"
	"github.com/cwrk-planet/presence-service/internal/service"
	"github.com/cwrk-planet/presence-service/internal/session"
	grpcx "github.com/cwrk-planet/presence-service/internal/transport/grpc"
	httpx "github.com/cwrk-planet/presence-service/internal/transport/http"
	"github.com/cwrk-planet/presence-service/internal/transport/ws"
	"github.com/cwrk-planet/presence-service/pkg/logger"
)

func main() {
	// --- config ---
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	instanceID := logger.NewInstanceID()
	lg := logger.Init(logger.Config{
		Env:        logger.Env(cfg.Logging.Env),
		Service:    cfg.Logging.Service,
		Version:    cfg.Logging.Version,
		InstanceID: instanceID,
		Backend:    logger.Backend(cfg.Logging.Backend),
		Level:      logger.ParseLevel(cfg.Logging.Level),
		AddSource:  cfg.Logging.AddSource,
		Debug:      cfg.Logging.Debug,
	})
	slog.Info("starting presence-service",
		"env", cfg.Logging.Env, "version", cfg.Logging.Version,
		"store", cfg.Backends.Store, "cache", cfg.Backends.Cache, "relay", cfg.Backends.Relay)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	mp, err := metrics.NewProvider(metrics.Resource{
		Service:    cfg.Logging.Service,
		Version:    cfg.Logging.Version,
		InstanceID: instanceID,
	})
	if err != nil {
		log.Fatalf("metrics: %v", err)
	}
	m := mp.Metrics()
	checks := map[string]grpcx.Check{}

	// --- store ---
	var store service.RoomStore
	switch cfg.Backends.Store {
	case "postgres":
		if cfg.Postgres.Migrate {
			if err := postgres.Migrate(cfg.Postgres.DSN); err != nil {
				log.Fatalf("migrate: %v", err)
			}
		}
		pool, err := pg.NewPool(ctx, cfg.Postgres.ToPGConfig())
		if err != nil {
			log.Fatalf("postgres: %v", err)
		}
		defer pool.Close()
		store = postgres.NewRoomStore(pool)
		checks["postgres"] = pg.Check(pool)
	default:
		store = memory.NewRoomStore()
	}

	// --- redis (cache and/or relay) ---
	var rdb *redis.Client
	if cfg.Backends.Cache == "redis" || cfg.Backends.Relay == "redis" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis: %v", err)
		}
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	var steps service.SequenceCache = cache.NewMemory()
	if cfg.Backends.Cache == "redis" {
		steps = cache.NewRedis(rdb, 0)
	}

	// --- broadcast + relay ---
	hub := broadcast.NewHub(lg)
	hub.SetObserver(m)
	// sinks enforce WriteTimeout themselves; this is the outer bound
	hub.SetSendTimeout(2 * cfg.Presence.WriteTimeout)

	var pub service.Publisher = hub
	var tr relay.Transport
	switch cfg.Backends.Relay {
	case "redis":
		tr = relay.NewRedisTransport(rdb)
	case "nats":
		tr, err = relay.DialNATS(cfg.NATS.URL, cfg.Logging.Service+"-"+instanceID)
		if err != nil {
			log.Fatalf("nats: %v", err)
		}
	}
	if tr != nil {
		rl := relay.New(hub, tr, instanceID, lg)
		defer func() { _ = rl.Close() }()
		pub = rl
		go func() {
			if err := rl.Run(ctx); err != nil {
				slog.Error("relay stopped", "err", err)
			}
		}()
	}

	// --- services ---
	dir := service.NewDirectory(store, steps, lg)
	notify := service.NewNotifier(dir, pub, lg)
	presence := service.NewPresence(store, notify, lg)
	presence.SetJoinObserver(m)

	// --- auth ---
	pubKey, err := security.LoadRSAPublicKeyFromPEM(cfg.Auth.JWT.PublicKeyPath)
	if err != nil {
		log.Fatalf("jwt public key: %v", err)
	}
	verifier := security.NewVerifier(pubKey, cfg.Auth.JWT.Issuer, cfg.Auth.JWT.Audience, cfg.Auth.JWT.ClockSkew)

	// --- sessions ---
	reg := session.NewRegistry()
	gw := gateway.New(gateway.Deps{
		Registry:  reg,
		Directory: dir,
		Presence:  presence,
		Notifier:  notify,
		Hub:       hub,
		Verifier:  verifier,
		Observer:  m,
		Log:       lg,
	})
	wsServer := ws.NewServer(gw, ws.Config{
		PingEvery:       cfg.Presence.PingEvery,
		ConnectTimeout:  cfg.Presence.ConnectTimeout,
		WriteTimeout:    cfg.Presence.WriteTimeout,
		MaxMessageBytes: cfg.Presence.MaxMessageBytes,
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
	}, lg)

	watchdog := session.NewWatchdog(reg, wsServer.Expire, cfg.Presence.WatchdogPeriod, cfg.Presence.WatchdogTimeout, lg)
	go watchdog.Run(ctx)

	// --- HTTP ---
	handler := httpx.NewHandler(dir, presence, notify, hub, httpx.HandlerConfig{
		SSELifetime:     cfg.Presence.SSELifetime,
		SSERetry:        cfg.Presence.SSERetry,
		SSEWriteTimeout: cfg.Presence.WriteTimeout,
	})
	router := httpx.NewRouter(httpx.RouterDeps{
		Handler:        handler,
		Verifier:       verifier,
		WS:             wsServer.HandleWS,
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		RouteTimeout:   cfg.HTTP.RouteTimeout,
		Metrics:        mp.Handler(),
	})
	// no server WriteTimeout: SSE and websocket writes carry their own deadlines
	httpSrv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.HTTP.ReadTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	// --- gRPC ---
	grpcServer := grpcx.NewServer()
	health := grpcx.RegisterHealth(grpcServer, checks)
	go health.Watch(ctx, 15*time.Second)

	// --- run both servers ---
	errCh := make(chan error, 2)

	go func() {
		slog.Info("http listen", "addr", cfg.HTTP.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go func() {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			errCh <- err
			return
		}
		slog.Info("grpc listen", "addr", cfg.GRPC.Addr)
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- err
		}
	}()

	// --- graceful shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal", "sig", sig)
	case err := <-errCh:
		slog.Error("server error", "err", err)
	}

	health.Shutdown()
	watchdog.Stop()

	ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// hijacked websockets are not tracked by http.Server
	wsServer.Shutdown()
	_ = httpSrv.Shutdown(ctxShutdown)
	grpcServer.GracefulStop()
	if err := mp.Shutdown(ctxShutdown); err != nil {
		slog.Warn("metrics shutdown", "err", err)
	}
	stop()
	slog.Info("stopped", "connections_left", reg.Len())
}
