package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	grpc "google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/chat"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/config"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/db"
	grpcclient "github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/grpc"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/handlers"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/identity"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/logging"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/middleware"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/notify"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/observability"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/presence"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/rabbitmq"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/ratelimit"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/repositories"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/telemetry"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/ws"
)

const auditRoutingKey = "audit.chat"

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel, cfg.Environment)
	if err != nil {
		panic(err)
	}

	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		logger.Fatal("failed to init tracing", zap.Error(err))
	}

	database, err := db.Connect(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		logger.Fatal("failed to connect to db", zap.Error(err))
	}

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	logger.Info("event publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(publisher)),
		zap.String("noop_reason", rabbitmq.PublisherNoopReason(publisher)))
	audit := telemetry.NewAuditEmitter(publisher, auditRoutingKey, cfg.ServiceName, cfg.Environment, logger)
	events := observability.NewEventPublisher(publisher, logger)

	var grpcConns []*grpc.ClientConn
	dial := func(addr string) *grpc.ClientConn {
		conn, err := grpc.Dial(addr,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
			grpc.WithUnaryInterceptor(observability.GRPCClientMetricsUnaryInterceptor()),
		)
		if err != nil {
			logger.Fatal("failed to connect to grpc", zap.String("addr", addr), zap.Error(err))
		}
		grpcConns = append(grpcConns, conn)
		return conn
	}

	var provider identity.Provider
	switch cfg.IdentityMode {
	case "grpc":
		provider = grpcclient.NewAuthClient(dial(cfg.AuthGRPCAddr))
	default:
		if cfg.JWTSecret == "" {
			logger.Fatal("JWT_SECRET is required when IDENTITY_MODE=jwt")
		}
		provider = identity.NewJWTProvider(cfg.JWTSecret, "")
	}

	opts := chat.Options{
		Notifier: notify.NewAMQPSink(publisher),
		Audit:    audit,
		Logger:   logger,
	}
	if cfg.UserGRPCAddr != "" {
		opts.Directory = grpcclient.NewUserClient(dial(cfg.UserGRPCAddr))
	}

	var redisClose func() error
	if cfg.RedisURL != "" {
		client, err := ratelimit.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Warn("rate limiting disabled", zap.Error(err))
		} else {
			opts.Limiter = ratelimit.NewSlidingWindowLimiter(client, cfg.SendRateLimit, cfg.SendRateWindow, cfg.RateLimitPrefix)
			redisClose = client.Close
		}
	}

	convRepo := repositories.NewConversationRepo(database)
	msgRepo := repositories.NewMessageRepo(database)

	registry := presence.NewRegistry()
	router := ws.NewRouter(registry, convRepo, logger)
	opts.Broadcaster = router
	opts.Presence = registry

	service := chat.NewService(convRepo, msgRepo, opts)
	gateway := ws.NewGateway(provider, service, registry, router, events, logger, ws.GatewayConfig{
		SendQueue:           cfg.WSSendQueue,
		SweepInterval:       cfg.PresenceSweepInterval,
		InactivityThreshold: cfg.PresenceInactivityThreshold,
	})

	conversationHandler := handlers.NewConversationHandler(service, service)
	messageHandler := handlers.NewMessageHandler(service)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware(cfg.ServiceName))
	engine.Use(middleware.RequestID())
	engine.Use(observability.HTTPMetricsMiddleware())

	engine.GET("/healthz", handlers.Health(database))
	engine.GET("/metrics", observability.MetricsHandler())
	handlers.RegisterDebugRoutes(engine, audit, registry, cfg.DebugRoutes)

	authMiddleware := middleware.AuthMiddleware(provider)

	api := engine.Group("/", authMiddleware)
	api.POST("/conversations", conversationHandler.CreateConversation)
	api.GET("/conversations", conversationHandler.ListConversations)
	api.GET("/conversations/:conversation_id", conversationHandler.GetConversation)
	api.POST("/conversations/:conversation_id/members", conversationHandler.AddMember)
	api.DELETE("/conversations/:conversation_id/members/:user_id", conversationHandler.RemoveMember)
	api.PATCH("/conversations/:conversation_id/members/:user_id/role", conversationHandler.UpdateRole)
	api.POST("/conversations/:conversation_id/leave", conversationHandler.Leave)
	api.PUT("/conversations/:conversation_id/mute", conversationHandler.SetMute)
	api.POST("/conversations/:conversation_id/read", messageHandler.MarkRead)
	api.POST("/conversations/:conversation_id/messages", messageHandler.PostMessage)
	api.GET("/conversations/:conversation_id/messages", messageHandler.ListMessages)
	api.PATCH("/messages/:message_id", messageHandler.EditMessage)
	api.DELETE("/messages/:message_id", messageHandler.DeleteMessage)

	engine.GET("/ws", gateway.Handle)

	server := &http.Server{Addr: ":" + cfg.Port, Handler: engine}
	go func() {
		logger.Info("chat service listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sweepCtx, stopSweeper := context.WithCancel(ctx)
	go gateway.RunSweeper(sweepCtx)

	wait := gfshutdown.GracefulShutdown(ctx, cfg.ShutdownTimeout, map[string]gfshutdown.Operation{
		"http": func(ctx context.Context) error {
			stopSweeper()
			gateway.Shutdown()
			return server.Shutdown(ctx)
		},
		"tracing": func(ctx context.Context) error {
			return shutdownTracing(ctx)
		},
	})

	exitCode := <-wait

	for _, conn := range grpcConns {
		_ = conn.Close()
	}
	if redisClose != nil {
		_ = redisClose()
	}
	if err := publisher.Close(); err != nil {
		logger.Warn("publisher close failed", zap.Error(err))
	}
	if err := database.Close(); err != nil {
		logger.Warn("db close failed", zap.Error(err))
	}
	logger.Info("chat service stopped", zap.Int("exit_code", exitCode))
	_ = logger.Sync()
	os.Exit(exitCode)
}
