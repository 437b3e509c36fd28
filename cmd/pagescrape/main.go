// Package main wires together the pagescrape service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagescrape/internal/api"
	"github.com/JakeFAU/pagescrape/internal/config"
	collyfetcher "github.com/JakeFAU/pagescrape/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/pagescrape/internal/fetcher/headless"
	"github.com/JakeFAU/pagescrape/internal/headless/detector"
	"github.com/JakeFAU/pagescrape/internal/id/uuid"
	"github.com/JakeFAU/pagescrape/internal/logging"
	"github.com/JakeFAU/pagescrape/internal/metrics"
	"github.com/JakeFAU/pagescrape/internal/robots"
	"github.com/JakeFAU/pagescrape/internal/scrape"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gate := robots.NewGate(robots.Config{
		Timeout:  cfg.HTTPTimeout(),
		MaxBytes: cfg.Robots.MaxBytes,
	}, logger.Named("robots"))
	probeFetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:   cfg.Scrape.UserAgent,
		Timeout:     cfg.HTTPTimeout(),
		MaxBodySize: cfg.HTTP.MaxBodyBytes,
	})

	var (
		headless scrape.Fetcher
		detect   scrape.HeadlessDetector
	)
	if cfg.Headless.Enabled {
		headlessFetcher, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.Scrape.UserAgent,
			NavigationTimeout: cfg.NavTimeout(),
		})
		if err != nil {
			logger.Warn("headless fetcher init failed", zap.Error(err))
		} else {
			defer headlessFetcher.Close()
			headless = headlessFetcher
			detect = detector.NewHeuristic(cfg.Headless.PromotionThresh)
		}
	}

	service := scrape.NewService(gate, probeFetcher, headless, detect, logger.Named("scrape"))
	apiServer := api.NewServer(service, uuid.New(), cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")
	apiServer.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
