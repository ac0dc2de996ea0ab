package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	config "github.com/avvvet/expiry-services/configs"
	"github.com/avvvet/expiry-services/internal/cardsvc/broker"
	cardcfg "github.com/avvvet/expiry-services/internal/cardsvc/config"
	"github.com/avvvet/expiry-services/internal/cardsvc/db"
	"github.com/avvvet/expiry-services/internal/cardsvc/service"
	"github.com/avvvet/expiry-services/internal/cardsvc/store"
	"github.com/avvvet/expiry-services/internal/cardsvc/sweeper"
	natscli "github.com/avvvet/expiry-services/internal/nats"
)

const SERVICE_NAME = "sweep"

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

	// NATS is optional here; without it cards still expire but nobody is told
	var (
		publisher service.EventPublisher
		b         *broker.Broker
	)
	n, err := natscli.Connect(cfg.NATS.URL, cfg.NATS.Token, SERVICE_NAME+"_service_"+instanceId)
	if err != nil {
		log.Warnf("NATS unavailable, sweeping without events or reminders: %v", err)
	} else {
		defer n.Close()
		log.Printf("NATS connection established successfully %s", n.Url)
		b = broker.NewBroker(n.Conn)
		publisher = b
	}

	cardService := service.NewCardService(store.NewCardStore(dbpool), cfg.Location(), publisher)

	sweeper.RegisterMetrics(prometheus.DefaultRegisterer)
	sw := sweeper.NewSweeper(cardService, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// catch up on anything that expired while the service was down
	sw.Run(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Daily(ctx, cfg.Location(), cfg.Sweeper.Hour, "expiration sweep", sw.Run)
	}()
	if b != nil {
		reminder := sweeper.NewReminder(cardService, b, cfg.Sweeper.ReminderDays)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sweeper.Daily(ctx, cfg.Location(), cfg.Sweeper.ReminderHour, "expiring-soon reminder", reminder.Run)
		}()
	}

	// metrics only
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:        ":" + cfg.Sweeper.MetricsPort,
		Handler:     mux,
		ReadTimeout: cfg.Server.ReadTimeout,
	}
	if cfg.Sweeper.MetricsPort != "" {
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorf("metrics server: %v", err)
			}
		}()
	}
	log.Infof("%s service running, sweep at %02d:00 and reminder at %02d:00 %s",
		SERVICE_NAME, cfg.Sweeper.Hour, cfg.Sweeper.ReminderHour, cfg.TimeZone)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	cancel()
	wg.Wait()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)
	log.Infof("%s service gracefully stopped", SERVICE_NAME)
}
