package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"coinkiosk/internal/config"
	cronrunner "coinkiosk/internal/cron"
	"coinkiosk/internal/db"
	"coinkiosk/internal/handler"
	"coinkiosk/internal/logger"
	"coinkiosk/internal/mqttconn"
	"coinkiosk/internal/notify"
	"coinkiosk/internal/pulse"
	gormrepository "coinkiosk/internal/repository/gorm"
	"coinkiosk/internal/service"
)

func main() {
	cfgPath := os.Getenv("KIOSK_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("KIOSK_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}
	if err := db.SeedSlots(dbConn, cfg.Acceptor.Slots); err != nil {
		logger.Fatal("slot seeding failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)

	coinValue, err := decimal.NewFromString(cfg.Acceptor.CoinValue)
	if err != nil {
		logger.Fatal("invalid acceptor.coin_value", zap.String("value", cfg.Acceptor.CoinValue), zap.Error(err))
	}

	hub := notify.NewWSHub(logger)
	publisher := notify.Fanout{
		&notify.StorePublisher{Repo: store, Logger: logger},
		hub,
	}

	var edgeSource *pulse.MQTTEdgeSource
	var ack pulse.Acknowledger
	if cfg.MQTT.Enabled {
		client, err := mqttconn.Connect(cfg.MQTT)
		if err != nil {
			logger.Fatal("mqtt connect failed", zap.String("broker", cfg.MQTT.BrokerURL), zap.Error(err))
		}
		defer client.Disconnect(250)

		publisher = append(publisher, &notify.MQTTPublisher{
			Client: client,
			Topic:  cfg.MQTT.EventTopic,
			Logger: logger,
		})
		edgeSource = &pulse.MQTTEdgeSource{
			Client: client,
			Topic:  cfg.MQTT.EdgeTopic,
			Logger: logger,
		}
		ack = &pulse.MQTTAcknowledger{
			Client:      client,
			TopicPrefix: cfg.MQTT.AckTopicPrefix,
			Logger:      logger,
		}
	}

	leaseSvc := &service.LeaseService{
		Repo:                store,
		Publisher:           publisher,
		Logger:              logger,
		DefaultLeaseSeconds: cfg.Lease.DefaultSeconds,
		MaxLeaseSeconds:     cfg.Lease.MaxSeconds,
	}
	queueSvc := &service.QueueService{
		Repo:      store,
		Publisher: publisher,
		Logger:    logger,
		Leases:    leaseSvc,
		Retention: cfg.Queue.Retention,
	}
	calibrationSvc := &service.CalibrationService{Repo: store, Logger: logger}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	slotHandler := &handler.SlotHandler{
		Repo:      store,
		Leases:    leaseSvc,
		Queue:     queueSvc,
		Logger:    logger,
		RateLimit: cfg.RateLimit,
	}
	slotHandler.Register(engine)
	clientHandler := &handler.ClientHandler{Queue: queueSvc}
	clientHandler.Register(engine)
	maintenanceHandler := &handler.MaintenanceHandler{Queue: queueSvc}
	maintenanceHandler.Register(engine)
	calibrationHandler := &handler.CalibrationHandler{Service: calibrationSvc}
	calibrationHandler.Register(engine)
	eventsHandler := &handler.EventsHandler{Hub: hub}
	eventsHandler.Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Hardware ingestion path: edge stream -> interpreter -> router -> queue.
	router := &pulse.Router{
		Repo:      store,
		Queue:     queueSvc,
		Publisher: publisher,
		Logger:    logger,
	}
	interpreter := &pulse.Interpreter{
		Rules:  store,
		Sink:   router,
		Ack:    ack,
		Logger: logger,
		Config: pulse.Config{
			DebounceTime:  cfg.Acceptor.DebounceTime,
			PulseDuration: cfg.Acceptor.PulseDuration,
			IdleFactor:    cfg.Acceptor.IdleFactor,
			PulsesPerCoin: cfg.Acceptor.PulsesPerCoin,
			CoinValue:     coinValue,
		},
	}
	edges := make(chan pulse.Edge, 256)
	if edgeSource != nil {
		if err := edgeSource.Subscribe(edges); err != nil {
			logger.Fatal("edge subscribe failed", zap.Error(err))
		}
	}
	go func() {
		if err := interpreter.Run(ctx, edges); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("pulse interpreter stopped", zap.Error(err))
		}
	}()

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		_, err := cronRunner.Add(cfg.Cron.Cleanup, func(ctx context.Context) {
			result, err := queueSvc.Cleanup(ctx)
			if err != nil {
				logger.Warn("cron cleanup failed", zap.Error(err))
				return
			}
			if result.ReleasedSlots > 0 || result.ExpiredEntries > 0 {
				logger.Info("cron cleanup ok",
					zap.Int("released_slots", result.ReleasedSlots),
					zap.Int64("expired_entries", result.ExpiredEntries),
				)
			}
		})
		if err != nil {
			logger.Warn("cron register cleanup failed", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-Client-Identity")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
