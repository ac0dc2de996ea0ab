package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	config "github.com/avvvet/expiry-services/configs"
	"github.com/avvvet/expiry-services/internal/cardsvc/broker"
	cardcfg "github.com/avvvet/expiry-services/internal/cardsvc/config"
	"github.com/avvvet/expiry-services/internal/cardsvc/db"
	"github.com/avvvet/expiry-services/internal/cardsvc/handlers"
	"github.com/avvvet/expiry-services/internal/cardsvc/ocr"
	"github.com/avvvet/expiry-services/internal/cardsvc/scanlog"
	"github.com/avvvet/expiry-services/internal/cardsvc/service"
	"github.com/avvvet/expiry-services/internal/cardsvc/store"
	mongodb "github.com/avvvet/expiry-services/internal/db"
	"github.com/avvvet/expiry-services/internal/nats"
)

const SERVICE_NAME = "card"

var instanceId string

func init() {
	config.LoadEnv(SERVICE_NAME)
	instanceId = config.CreateUniqueInstance(SERVICE_NAME)
}

func main() {
	cfg, err := cardcfg.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	config.Logging(SERVICE_NAME+"_service_"+instanceId, cfg.LogLevel)

	// pg connection
	dbpool, err := db.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer db.ClosePool()
	log.Printf("pg connection established successfully")

	if cfg.Database.AutoMigrate {
		if err := db.Migrate(context.Background(), dbpool); err != nil {
			log.Fatalf("Failed to migrate DB: %v", err)
		}
	}

	// events are optional for the API
	var publisher service.EventPublisher
	n, err := nats.Connect(cfg.NATS.URL, cfg.NATS.Token, SERVICE_NAME+"_service_"+instanceId)
	if err != nil {
		log.Warnf("NATS unavailable, card events are disabled: %v", err)
	} else {
		defer n.Close()
		log.Printf("NATS connection established successfully %s", n.Url)
		publisher = broker.NewBroker(n.Conn)
	}

	cardStore := store.NewCardStore(dbpool)
	cardService := service.NewCardService(cardStore, cfg.Location(), publisher)

	ocrClient := ocr.NewClient(ocr.Config{
		URL:     cfg.OCR.URL,
		Secret:  cfg.OCR.Secret,
		Timeout: cfg.OCR.Timeout,
	})
	if !ocrClient.Configured() {
		log.Warn("OCR API is not configured, /api/ocr/process will report failures")
	}

	// scan history is optional
	var scans handlers.ScanRecorder
	if cfg.Mongo.URI != "" {
		mdb, err := mongodb.ConnectMongo(context.Background(), cfg.Mongo.URI)
		if err != nil {
			log.Warnf("MongoDB unavailable, OCR scan history is disabled: %v", err)
		} else {
			defer mdb.Client().Disconnect(context.Background())
			scanLog := scanlog.New(mdb, cfg.Mongo.ScanTTL)
			if err := scanLog.EnsureIndexes(context.Background()); err != nil {
				log.Warnf("OCR scan TTL index not created: %v", err)
			}
			scans = scanLog
		}
	}

	handlers.RegisterMetrics(prometheus.DefaultRegisterer)
	ocr.RegisterMetrics(prometheus.DefaultRegisterer)

	// Setup router
	r := chi.NewRouter()
	c := config.CORS(cfg.CORS.AllowedOrigins)

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(handlers.MonitorMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(c.Handler)

	// to protect the service api from any over requests
	r.Use(httprate.LimitByIP(cfg.Server.RateLimit, 1*time.Minute))

	// Init handlers and routes
	h := handlers.NewHandler(cardService, ocrClient, scans)
	h.InitAuth(cfg.Auth.JWTSecret)
	h.SetRoutes(r)

	// Create server with timeout settings
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe(): %v", err)
		}
	}()
	log.Infof("%s service running at port %s", SERVICE_NAME, server.Addr)

	// Wait for interrupt signal to gracefully shutdown the server
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
