package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tokenflow/accounts"
	"tokenflow/archive"
	"tokenflow/automation"
	"tokenflow/config"
	"tokenflow/exchange"
	"tokenflow/feed"
	"tokenflow/hub"
	"tokenflow/logger"
	"tokenflow/store"
	"tokenflow/trader"
)

func main() {
	log := logger.New()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Tokenflow.Name,
		"version": cfg.Tokenflow.Version,
	}).Info("starting tokenflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	if cfg.Archive.Region != "" || os.Getenv("AWS_REGION") != "" {
		logger.InitCloudWatch(log, cfg.Archive.Region, cfg.Logging.DashboardName)
	}

	tradeAPI := accounts.NewClient(cfg.Accounts.BaseURL, cfg.Accounts.Timeout, log)

	ruleStore, err := store.Open(cfg.Database, tradeAPI, log)
	if err != nil {
		log.WithError(err).Error("failed to open rule store")
		os.Exit(1)
	}

	adapters := exchange.NewRegistry(
		exchange.NewMEXCAdapter(tradeAPI, log),
		exchange.NewBinanceAdapter(log),
	)

	fanout := hub.NewHub(cfg.Hub.SubscriberBuffer, log)
	hubServer := hub.NewServer(fanout, cfg.Hub, log)

	dispatcher := trader.NewDispatcher(cfg.Automation, tradeAPI, adapters, fanout, log)

	var tradeArchive *archive.Writer
	if cfg.Archive.Enabled {
		tradeArchive, err = archive.NewWriter(cfg.Archive, log)
		if err != nil {
			log.WithError(err).Error("failed to create trade archive")
			os.Exit(1)
		}
		dispatcher.SetRecorder(tradeArchive)
	} else {
		log.WithComponent("main").Info("trade archive disabled; skipping writer")
	}

	engine := automation.NewEngine(ruleStore, dispatcher, exchange.DefaultAliases(), log)
	connector := feed.NewConnector(cfg.Feed, engine, fanout, log)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hubServer.Run(ctx); err != nil {
			log.WithError(err).Warn("hub server exited with error")
		}
	}()

	if tradeArchive != nil {
		if err := tradeArchive.Start(ctx); err != nil {
			log.WithError(err).Warn("trade archive failed to start")
		}
	}

	connector.Start(ctx)

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")

	log.Info("stopping feed connector")
	connector.Stop()

	cancel()

	if tradeArchive != nil {
		log.Info("stopping trade archive")
		tradeArchive.Stop()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("tokenflow stopped")
}
