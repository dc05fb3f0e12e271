package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/treebus/treebus/internals/broker"
	"github.com/treebus/treebus/internals/config"
	"github.com/treebus/treebus/internals/logging"
	"github.com/treebus/treebus/internals/metrics"
	"github.com/treebus/treebus/internals/psqueue"
	"github.com/treebus/treebus/subscriberService"
	subscriberHTTP "github.com/treebus/treebus/subscriberService/http"
	"github.com/treebus/treebus/topicManagerService"
	topicManagerHTTP "github.com/treebus/treebus/topicManagerService/http"
)

var configFile = flag.String("config", ".env", "Path to configuration file")

func main() {
	flag.Parse()

	if err := godotenv.Load(*configFile); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load %s: %v\n", *configFile, err)
	}

	cfg := config.NewConfig()
	cfg.ParseFlags()

	log, err := logging.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting treebus server",
		zap.String("host", cfg.Host),
		zap.String("port", cfg.Port),
		zap.String("queue_kind", cfg.QueueKind))

	m := metrics.New()

	queueFactory := func(size int) psqueue.Queue { return psqueue.NewBucket(size) }
	if cfg.QueueKind == config.QueueKindFIFO {
		queueFactory = func(size int) psqueue.Queue { return psqueue.NewFIFO(size) }
	}
	b := broker.New(
		broker.WithQueue(queueFactory),
		broker.WithLogger(log.Named("broker")),
		broker.WithMetrics(m),
	)

	topicMgrSvc := topicManagerService.NewTopicManagerService(b)
	subscriberSvc := subscriberService.NewSubscriberService(b, cfg, log.Named("bridge"))

	if err := subscriberSvc.Start(); err != nil {
		log.Fatal("subscriber service start failed", zap.Error(err))
	}

	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		metricsHandler = m.Handler()
	}

	router := chi.NewRouter()
	topicManagerHTTP.NewHandler(topicMgrSvc, metricsHandler).RegisterRoutes(router)
	subscriberHTTP.RegisterSubscriberRoutes(router, subscriberSvc)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("http server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("http server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Warn("http shutdown error", zap.Error(err))
	}
	if err := subscriberSvc.Shutdown(ctx); err != nil && err != context.DeadlineExceeded {
		log.Warn("subscriber service shutdown error", zap.Error(err))
	}
	b.Close()

	log.Info("shutdown complete")
}
