package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goevery/collabtodo/internal/auth"
	"github.com/goevery/collabtodo/internal/broadcaster"
	"github.com/goevery/collabtodo/internal/handler"
	"github.com/goevery/collabtodo/internal/mail"
	"github.com/goevery/collabtodo/internal/persistence"
	"github.com/goevery/collabtodo/internal/persistence/memory"
	"github.com/goevery/collabtodo/internal/persistence/mongodb"
	"github.com/goevery/collabtodo/internal/persistence/postgres"
	"github.com/goevery/collabtodo/internal/server"
	"github.com/goevery/collabtodo/internal/todo"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"
)

type App struct {
	logger          *zap.Logger
	settings        Settings
	engine          persistence.Engine
	metricsRegistry *prometheus.Registry
	registry        *broadcaster.InMemoryRegistry
	dispatcher      *broadcaster.Dispatcher
	livenessMonitor *broadcaster.LivenessMonitor
	websocketServer *server.WebSocketServer
	restServer      *server.RESTServer
}

func NewApp(logger *zap.Logger, settings Settings, engine persistence.Engine) (*App, error) {
	metrics := broadcaster.NewMetrics()

	metricsRegistry := prometheus.NewRegistry()
	metricsRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := metrics.Register(metricsRegistry); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	registry := broadcaster.NewInMemoryRegistry(logger, metrics)
	dispatcher := broadcaster.NewDispatcher(
		logger,
		registry,
		metrics,
		settings.NotificationWorkers,
		settings.NotificationQueueSize,
	)
	livenessMonitor := broadcaster.NewLivenessMonitor(
		logger,
		registry,
		metrics,
		settings.SweepInterval,
		settings.HeartbeatTimeout,
	)

	authenticator := auth.NewAuthenticator(
		settings.JWTSecret,
		settings.JWTIssuer,
		settings.JWTAudience,
		settings.TokenTTL,
	)

	mailer := mail.New(logger, mail.SMTPConfig{
		Host:      settings.SMTPHost,
		Port:      settings.SMTPPort,
		Username:  settings.SMTPUsername,
		Password:  settings.SMTPPassword,
		FromEmail: settings.SMTPFromEmail,
		FromName:  settings.SMTPFromName,
	})

	validator := todo.NewValidator()
	accounts := todo.NewAccountService(
		logger,
		engine,
		authenticator,
		auth.NewPasswordHasher(auth.DefaultPasswordCost),
		validator,
	)
	tasks := todo.NewTaskService(logger, engine, dispatcher, mailer, validator, settings.ShareLinkBase)

	router := server.NewRouter(
		logger,
		handler.NewPingHandler(),
		handler.NewHeartbeatHandler(registry),
		handler.NewTypingHandler(logger, registry, dispatcher),
		handler.NewReadHandler(),
		handler.NewAckHandler(),
	)

	websocketUpgrader := &websocket.Upgrader{
		ReadBufferSize:    1024,
		WriteBufferSize:   1024,
		CheckOrigin:       server.OriginChecker(settings.Origins()),
		EnableCompression: true,
	}

	websocketServer := server.NewWebSocketServer(
		logger,
		websocketUpgrader,
		authenticator,
		registry,
		router,
		metrics,
		settings.SendBufferSize,
	)
	restServer := server.NewRESTServer(
		logger,
		authenticator,
		accounts,
		tasks,
		registry,
		settings.Version,
		settings.AuthRateLimit,
	)

	return &App{
		logger:          logger,
		settings:        settings,
		engine:          engine,
		metricsRegistry: metricsRegistry,
		registry:        registry,
		dispatcher:      dispatcher,
		livenessMonitor: livenessMonitor,
		websocketServer: websocketServer,
		restServer:      restServer,
	}, nil
}

func (a *App) run(ctx context.Context) error {
	notifyCtx, notifyCtxCancel := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer notifyCtxCancel()

	if err := a.engine.Setup(notifyCtx); err != nil {
		return fmt.Errorf("failed to set up storage: %w", err)
	}

	supervisor := suture.New("collabtodo", suture.Spec{
		EventHook: func(event suture.Event) {
			a.logger.Warn("supervisor event", zap.String("event", event.String()))
		},
		Timeout: 10 * time.Second,
	})
	supervisor.Add(a.dispatcher)
	supervisor.Add(a.livenessMonitor)

	supervisorErrors := supervisor.ServeBackground(notifyCtx)

	a.startHttpServer(notifyCtx)

	a.registry.CloseAll(broadcaster.CloseShutdown)

	if err := <-supervisorErrors; err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("supervisor stopped with error", zap.Error(err))
	}

	closeCtx, closeCtxCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer closeCtxCancel()

	return a.engine.Close(closeCtx)
}

func (a *App) startHttpServer(ctx context.Context) {
	address := fmt.Sprintf("0.0.0.0:%d", a.settings.Port)

	router := mux.NewRouter().
		PathPrefix(a.settings.BasePath).
		Subrouter()

	a.websocketServer.Register(ctx, router)
	a.restServer.Register(router)
	router.Handle("/metrics", promhttp.HandlerFor(a.metricsRegistry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	httpHandler := server.RequestLogger(a.logger)(server.CORS(a.settings.Origins())(router))

	httpServer := &http.Server{
		Addr:              address,
		Handler:           httpHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	a.logger.Info("starting http server",
		zap.String("address", address))

	go func() {
		err := httpServer.ListenAndServe()

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Fatal("failed to start http server",
				zap.Error(err))
		}
	}()

	<-ctx.Done()

	a.logger.Info("stopping http server")

	shutdownCtx, shutdownCtxCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCtxCancel()

	err := httpServer.Shutdown(shutdownCtx)
	if err != nil {
		a.logger.Error("http server shutdown failed",
			zap.Error(err))
	}

	a.logger.Info("http server stopped")
}

func openEngine(ctx context.Context, settings Settings) (persistence.Engine, error) {
	switch settings.StorageDriver {
	case "memory":
		return memory.NewPersistenceEngine(), nil
	case "postgres":
		return postgres.Open(ctx, settings.DatabaseURL)
	case "mongodb":
		return mongodb.Open(ctx, settings.MongoDBURI, settings.MongoDBDatabase)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", settings.StorageDriver)
	}
}

func main() {
	ctx := context.Background()

	configPath := pflag.StringP("config", "c", "", "path to a YAML settings file")
	pflag.Parse()

	settings, err := loadSettings(*configPath, os.Environ())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger, err := buildZapLogger(settings.LogEncoding)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to build logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	engine, err := openEngine(ctx, settings)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}

	app, err := NewApp(logger, settings, engine)
	if err != nil {
		logger.Fatal("failed to setup", zap.Error(err))
	}

	err = app.run(ctx)
	if err != nil {
		logger.Fatal("failed to run", zap.Error(err))
	}
}
