package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/vrnetsync/hub/internal/v1/auth"
	"github.com/vrnetsync/hub/internal/v1/broadcast"
	"github.com/vrnetsync/hub/internal/v1/config"
	"github.com/vrnetsync/hub/internal/v1/discovery"
	"github.com/vrnetsync/hub/internal/v1/health"
	"github.com/vrnetsync/hub/internal/v1/lifecycle"
	"github.com/vrnetsync/hub/internal/v1/logging"
	"github.com/vrnetsync/hub/internal/v1/middleware"
	"github.com/vrnetsync/hub/internal/v1/nv"
	"github.com/vrnetsync/hub/internal/v1/ratelimit"
	"github.com/vrnetsync/hub/internal/v1/registry"
	"github.com/vrnetsync/hub/internal/v1/restbridge"
	"github.com/vrnetsync/hub/internal/v1/tracing"
	"github.com/vrnetsync/hub/internal/v1/transport"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the synchronization server",
	RunE:  runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.Int("dealer-port", 0, "client ingress port (overrides config)")
	flags.Int("pub-port", 0, "publish port (overrides config)")
	flags.Int("server-discovery-port", 0, "UDP discovery probe port (overrides config)")
	flags.String("server-name", "", "server name returned in discovery replies (overrides config)")
	flags.StringSlice("allowed-app-id", nil, "permitted appId (repeatable; empty disables the gate)")
	flags.Bool("development", false, "enable human-readable console logging")
	flags.String("rest-bridge-addr", "", "REST preseed bridge listen address (overrides config)")
	flags.String("rest-bridge-token", "", "HMAC secret for REST preseed bridge bearer tokens")
	flags.Bool("redis-enabled", false, "back the rate limiter with Redis instead of memory")
	flags.String("redis-addr", "", "Redis address for the rate limiter store")
	flags.String("tracing-otlp-endpoint", "", "OTLP/gRPC collector address; empty disables tracing")

	v := viper.New()
	bindFlag(v, "dealer_port", flags.Lookup("dealer-port"))
	bindFlag(v, "pub_port", flags.Lookup("pub-port"))
	bindFlag(v, "server_discovery_port", flags.Lookup("server-discovery-port"))
	bindFlag(v, "server_name", flags.Lookup("server-name"))
	bindFlag(v, "allowed_app_ids", flags.Lookup("allowed-app-id"))
	bindFlag(v, "development", flags.Lookup("development"))
	bindFlag(v, "rest_bridge_addr", flags.Lookup("rest-bridge-addr"))
	bindFlag(v, "rest_bridge_token", flags.Lookup("rest-bridge-token"))
	bindFlag(v, "redis_enabled", flags.Lookup("redis-enabled"))
	bindFlag(v, "redis_addr", flags.Lookup("redis-addr"))
	bindFlag(v, "tracing_otlp_endpoint", flags.Lookup("tracing-otlp-endpoint"))
	serveViper = v
}

// serveViper carries the flag bindings set up in init; Load layers its
// defaults/TOML/env beneath whatever flags the user actually passed.
var serveViper *viper.Viper

func bindFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if flag == nil {
		return
	}
	_ = v.BindPFlag(key, flag)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(serveViper, cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := logging.Initialize(cfg.Development); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logging.Info(ctx, "starting hub",
		zap.Int("dealer_port", cfg.DealerPort),
		zap.Int("pub_port", cfg.PubPort),
		zap.String("server_name", cfg.ServerName),
		zap.String("rest_bridge_token", config.RedactSecret(cfg.RestBridgeToken)))

	if cfg.TracingOTLPEndpoint != "" {
		tp, err := tracing.InitTracer(ctx, cfg.ServerName, cfg.TracingOTLPEndpoint)
		if err != nil {
			return fmt.Errorf("initializing tracing: %w", err)
		}
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logging.Warn(ctx, "tracer shutdown error", zap.Error(err))
			}
		}()
	}

	var redisClient *redis.Client
	if cfg.RedisEnabled {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer redisClient.Close()
	}

	limiter, err := ratelimit.New(ratelimit.Config{
		DiscoveryProbeRate: cfg.DiscoveryProbeRate,
		HandshakeRate:      cfg.HandshakeRate,
		NVMonitorRate:      fmt.Sprintf("%d-S", cfg.NVMonitorThreshold),
	}, redisClient)
	if err != nil {
		return fmt.Errorf("initializing rate limiter: %w", err)
	}

	limits := nv.Limits{
		MaxGlobalVars:     cfg.MaxGlobalVars,
		MaxClientVars:     cfg.MaxClientVars,
		MaxVarNameLength:  cfg.MaxVarNameLength,
		MaxVarValueLength: cfg.MaxVarValueLength,
		DeltaRingSize:     cfg.DeltaRingSize,
	}

	pub := transport.NewPublisher()
	reg := registry.New(limits, pub)

	preseedStore := restbridge.NewStore()
	bridge := restbridge.NewBridge(reg, preseedStore)

	hub := transport.NewHub(transport.Config{
		Gate:             discovery.NewGate(cfg.AllowedAppIDs),
		DeviceIDExpiry:   cfg.DeviceIDExpiryTime,
		PublishQueueSize: cfg.PubQueueMaxSize,
		HandshakeLimiter: ratelimit.HandshakeGate{L: limiter},
		Preseed:          bridge,
	}, reg, pub, limiter)
	server := transport.NewServer(hub)

	scheduler := broadcast.New(broadcast.Config{
		TickInterval:          cfg.BaseBroadcastInterval,
		DirtyThreshold:        cfg.DirtyThreshold,
		IdleBroadcastInterval: cfg.IdleBroadcastInterval,
	}, reg, pub)
	scheduler.Start(ctx)
	defer scheduler.Stop()

	flusher := nv.NewFlusher(reg, cfg.NVFlushInterval)
	flusher.Start(ctx)
	defer flusher.Stop()

	lifecycleMgr := lifecycle.New(lifecycle.Config{
		SweepInterval:           time.Second,
		ClientTimeout:           cfg.ClientTimeout,
		EmptyRoomExpiry:         cfg.EmptyRoomExpiry,
		DeviceIDCleanupInterval: cfg.DeviceIDCleanupInterval,
		DeviceIDExpiry:          cfg.DeviceIDExpiryTime,
	}, reg, pub)
	lifecycleMgr.Start(ctx)
	defer lifecycleMgr.Stop()

	var responder *discovery.Responder
	if cfg.EnableServerDiscovery {
		responder, err = discovery.NewResponder(cfg.ServerDiscoveryPort, discovery.NewGate(cfg.AllowedAppIDs), cfg.DealerPort, cfg.PubPort, cfg.ServerName, limiter)
		if err != nil {
			return fmt.Errorf("starting discovery responder: %w", err)
		}
		go responder.Run(ctx)
		defer responder.Wait()
	}

	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.CorrelationID())
	router.GET("/ws/:roomId", server.ServeWs)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	healthHandler := health.NewHandler(reg, redisClient)
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)

	if cfg.RestBridgeToken != "" {
		bridgeHandler := restbridge.NewHandler(bridge, auth.NewValidator(cfg.RestBridgeToken))
		bridgeGroup := router.Group("/v1/rooms")
		bridgeGroup.Use(bridgeHandler.RequireBearer())
		bridgeGroup.POST("/:roomId/devices/:deviceId/client-variables", bridgeHandler.Upsert)
	} else {
		logging.Warn(ctx, "rest_bridge_token not set, preseed endpoint disabled")
	}

	httpSrv := &http.Server{Addr: cfg.RestBridgeAddr, Handler: router}
	serverErr := make(chan error, 1)
	go func() {
		logging.Info(ctx, "http server listening", zap.String("addr", cfg.RestBridgeAddr))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-sigCh:
		logging.Info(ctx, "shutdown signal received")
	case err := <-serverErr:
		logging.Error(ctx, "http server error", zap.Error(err))
		runErr = fmt.Errorf("http server: %w", err)
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logging.Warn(ctx, "http server shutdown error", zap.Error(err))
	}
	return runErr
}
