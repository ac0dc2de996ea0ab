package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avvvet/expiry-services/internal/comm"
	"github.com/avvvet/expiry-services/internal/nats"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"
	log "github.com/sirupsen/logrus"

	config "github.com/avvvet/expiry-services/configs"
	cardcfg "github.com/avvvet/expiry-services/internal/cardsvc/config"

	"github.com/avvvet/expiry-services/internal/socketsvc/broker"
	"github.com/avvvet/expiry-services/internal/socketsvc/routes"
	"github.com/avvvet/expiry-services/internal/socketsvc/ws"
)

const SERVICE_NAME = "socket"

var instanceId string

func init() {
	config.LoadEnv(SERVICE_NAME)
	instanceId = config.CreateUniqueInstance(SERVICE_NAME)
}

func main() {
	cfg, err := cardcfg.LoadRelay()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	config.Logging(SERVICE_NAME+"_service_"+instanceId, cfg.LogLevel)

	// Connect to NATS
	n, err := nats.Connect(cfg.NATS.URL, cfg.NATS.Token, SERVICE_NAME+"_service_"+instanceId)
	if err != nil {
		log.Errorf("Error: unable to connect to NATS server %v", err)
		os.Exit(1)
	}
	defer n.Close()
	log.Printf("NATS connection established successfully %s", n.Url)

	// Setup router
	r := chi.NewRouter()
	c := config.CORS(cfg.CORS.AllowedOrigins)

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(config.CustomLoggerMiddleware())
	r.Use(c.Handler)

	// to protect the service api from any over requests
	r.Use(httprate.LimitByIP(cfg.Server.RateLimit, 1*time.Minute))

	// Initialize websocket handler
	s := ws.NewWs()

	// Initialize routes
	routes.SetRoutes(r, s)

	// relay card events to the owners' sockets
	b := broker.NewBroker(n.Conn, s.Send, s.GetUserSockets)

	subCards, err := b.Subscribe(comm.SubjectCardEvents)
	if err != nil {
		log.Errorf("Error: unable to subscribe to %s %v", comm.SubjectCardEvents, err)
		os.Exit(1)
	}
	subReminders, err := b.Subscribe(comm.SubjectExpiringSoon)
	if err != nil {
		log.Errorf("Error: unable to subscribe to %s %v", comm.SubjectExpiringSoon, err)
		os.Exit(1)
	}

	// Create server with timeout settings; no write timeout on long-lived sockets
	server := &http.Server{
		Addr:        ":" + cfg.Server.SocketPort,
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
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

	subCards.Unsubscribe()
	subReminders.Unsubscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("%s service shutdown Failed:%+v", SERVICE_NAME, err)
	}
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
