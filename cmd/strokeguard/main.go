package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/Krimson/strokeguard/internal/config"
	"github.com/Krimson/strokeguard/internal/health"
	"github.com/Krimson/strokeguard/internal/logger"
	"github.com/Krimson/strokeguard/internal/publish"
	"github.com/Krimson/strokeguard/internal/scan"
	"github.com/Krimson/strokeguard/internal/session"
	"github.com/Krimson/strokeguard/internal/source"
	"github.com/Krimson/strokeguard/internal/websocket"

	_ "github.com/Krimson/strokeguard/docs" // Swagger docs
)

const serviceName = "strokeguard"

// @title StrokeGuard Vitals API
// @version 1.0
// @description Camera PPG scans: pulse rate, pulse rate variability and SpO2 from
// @description face or fingertip video, scored into a stroke risk level.
// @description
// @description Scan events are streamed over /ws?session_id=<id>.

// @contact.name API Support

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel, cfg.LogFormat, serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	zap.ReplaceGlobals(log)

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}
	log.Info("configuration loaded",
		zap.String("http_port", cfg.HTTPPort),
		zap.String("grpc_port", cfg.GRPCPort),
		zap.Int("capture_fps", cfg.CaptureFPS),
		zap.Duration("capture_window", cfg.CaptureWindow),
		zap.Int("capture_windows", cfg.CaptureWindows))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("failed to connect to Redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("connected to Redis", zap.String("addr", cfg.RedisAddr))

	repo, err := session.NewPostgresRepositoryFromDSN(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("failed to connect to PostgreSQL", zap.Error(err))
	}
	defer repo.Close()
	if cfg.MigrateOnStart {
		if err := repo.Migrate(ctx); err != nil {
			log.Fatal("failed to migrate PostgreSQL schema", zap.Error(err))
		}
	}
	log.Info("connected to PostgreSQL")

	hub := websocket.NewHub(log.Named("websocket"))
	go hub.Run(ctx)

	sinks := []session.SinkFactory{hub}
	if cfg.NATSURL != "" {
		nc, err := publish.ConnectNATS(cfg.NATSURL, serviceName)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		natsPub := publish.NewNATSPublisher(nc, cfg.NATSSubject, log.Named("nats"))
		defer natsPub.Close()
		sinks = append(sinks, natsPub)
		log.Info("publishing scan events to NATS", zap.String("subject", cfg.NATSSubject))
	}
	if cfg.MQTTBroker != "" {
		mqttCfg := publish.MQTTConfig{
			Broker:      cfg.MQTTBroker,
			ClientID:    cfg.MQTTClientID,
			Username:    cfg.MQTTUsername,
			Password:    cfg.MQTTPassword,
			TopicPrefix: cfg.MQTTTopicPrefix,
			QoS:         byte(cfg.MQTTQoS),
		}
		client, err := publish.ConnectMQTT(mqttCfg, log.Named("mqtt"))
		if err != nil {
			log.Fatal("failed to connect to MQTT broker", zap.Error(err))
		}
		mqttPub := publish.NewMQTTPublisher(client, mqttCfg, log.Named("mqtt"))
		defer mqttPub.Close()
		sinks = append(sinks, mqttPub)
		log.Info("publishing scan events to MQTT", zap.String("broker", cfg.MQTTBroker))
	}

	capture := scan.DefaultCaptureConfig()
	capture.FPS = cfg.CaptureFPS
	capture.Window = cfg.CaptureWindow
	capture.Windows = cfg.CaptureWindows
	capture.Width = cfg.CaptureWidth
	capture.Height = cfg.CaptureHeight
	capture.LiveEvery = cfg.LiveEveryFrames

	manager := session.NewManager(
		session.NewRedisStore(redisClient),
		repo,
		newSourceFactory(cfg.PushBufferFrames),
		session.WithLogger(log.Named("session")),
		session.WithSinks(sinks...),
		session.WithCaptureConfig(capture),
		session.WithSessionTTL(cfg.SessionTTL()),
		session.WithLocation(cfg.Location()),
		session.WithDefaults(cfg.DefaultMode, cfg.DefaultSource),
	)

	healthServer := health.NewHealthServer(log.Named("health"))
	healthServer.AddProbe("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	healthServer.AddProbe("postgres", repo.Ping)
	healthServer.SetServingStatus(serviceName)
	go healthServer.Run(ctx, cfg.HealthCheckInterval)

	grpcServer := grpc.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	reflection.Register(grpcServer)

	router := mux.NewRouter()
	session.NewHTTPHandler(manager, log.Named("http")).RegisterRoutes(router)
	router.HandleFunc("/ws", hub.HandleWebSocket)
	router.Handle("/healthz", healthServer).Methods("GET")
	router.PathPrefix("/swagger/").Handler(httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
		httpSwagger.DeepLinking(true),
		httpSwagger.DocExpansion("list"),
		httpSwagger.DomID("swagger-ui"),
	))

	httpServer := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      enableCORS(router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	grpcAddr := fmt.Sprintf(":%s", cfg.GRPCPort)
	listener, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		log.Fatal("failed to listen", zap.String("addr", grpcAddr), zap.Error(err))
	}

	serverErrChan := make(chan error, 2)
	go func() {
		log.Info("gRPC server listening", zap.String("addr", grpcAddr))
		if err := grpcServer.Serve(listener); err != nil {
			serverErrChan <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()
	go func() {
		log.Info("HTTP server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrChan:
		log.Error("server error", zap.Error(err))
	case sig := <-shutdownChan:
		log.Info("received signal, starting graceful shutdown", zap.String("signal", sig.String()))
	}

	healthServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server forced to shutdown", zap.Error(err))
	}
	manager.Shutdown(shutdownCtx)

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		log.Warn("graceful shutdown timeout, forcing stop")
		grpcServer.Stop()
	}

	cancel()
	log.Info("server stopped")
}

// newSourceFactory builds frame sources for new sessions.
func newSourceFactory(pushBuffer int) session.SourceFactory {
	return func(kind string) (scan.FrameSource, error) {
		switch kind {
		case session.SourceSynthetic:
			return source.NewSynthetic(source.DefaultSyntheticConfig())
		case session.SourcePush:
			return source.NewPush(pushBuffer), nil
		default:
			return nil, fmt.Errorf("%w: %s", session.ErrUnknownSource, kind)
		}
	}
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			return
		}

		next.ServeHTTP(w, r)
	})
}
