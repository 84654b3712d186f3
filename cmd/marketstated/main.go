// Package main provides the entry point for the market-state
// reconciliation daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/tildenfx/marketstate/internal/config"
	"github.com/tildenfx/marketstate/internal/restapi"
	"github.com/tildenfx/marketstate/internal/session"
	"github.com/tildenfx/marketstate/internal/statusserver"
	"github.com/tildenfx/marketstate/internal/wsfeed"
)

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string
	flag.StringVar(&configPath, "config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		return 1
	}

	logger := log.New(os.Stdout, "[marketstated] ", log.LstdFlags|log.Lshortfile)
	dashLogger := newDashLogger(cfg)

	logger.Printf("starting market-state engine, log level %s", cfg.Environment.LogLevel)

	httpClient := restapi.NewHTTPClient(restapi.Config{
		APIBase:       cfg.Exchange.APIBase,
		WebsocketBase: cfg.Exchange.WebsocketBase,
		LegacyAPIBase: cfg.Exchange.LegacyAPIBase,
		APIKey:        cfg.Exchange.APIKey,
		VerifySSL:     cfg.Exchange.VerifySSL,
		DefaultLimit:  cfg.Exchange.DefaultLimit,
		DelaySeconds:  cfg.Exchange.DelaySeconds,
	}, nil, logger)

	restClient := restapi.NewRetryingClient(httpClient, logger, restapi.DefaultRetryConfig)

	sessionCfg := session.Config{
		HeartbeatStaleAfter: cfg.Session.HeartbeatStaleAfter,
		MaxDeferredPerTick:  cfg.Session.MaxDeferredPerTick,
		MaxBookLoadsPerTick: cfg.Session.MaxBookLoadsPerTick,
	}
	ctrl := session.New(logger, sessionCfg, restClient)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Println("shutdown signal received, stopping engine...")
		cancel()
	}()

	logger.Println("loading initial market snapshot...")
	loadCtx, loadCancel := context.WithTimeout(ctx, 60*time.Second)
	err = ctrl.LoadMarket(loadCtx, true)
	loadCancel()
	if err != nil {
		logger.Printf("initial market load failed: %v", err)
		return 1
	}

	low, high := ctrl.NetToClose()
	logger.Printf("net to close at startup: low=%d high=%d", low, high)

	var statusSrv *statusserver.Server
	if cfg.Status.Enabled {
		statusSrv = statusserver.NewServer(statusserver.Config{Port: cfg.Status.Port}, ctrl, dashLogger)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runFeedLoop(gctx, cfg, ctrl, logger)
	})

	if statusSrv != nil {
		g.Go(func() error {
			if err := statusSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("status server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := statusSrv.Shutdown(shutdownCtx); err != nil {
				logger.Printf("error shutting down status server: %v", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Printf("engine stopped with error: %v", err)
		return 1
	}

	logger.Println("engine stopped successfully")
	return 0
}

// runFeedLoop dials the websocket feed and pumps decoded actions into
// the dispatcher until ctx is canceled. A dropped connection is not
// retried with backoff here: a fresh Source is dialed immediately and
// the session controller's run_id check absorbs the resulting restart.
func runFeedLoop(ctx context.Context, cfg *config.Config, ctrl *session.Controller, logger *log.Logger) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		src, err := wsfeed.Dial(ctx, cfg.Exchange.WebsocketBase, cfg.Exchange.APIKey)
		if err != nil {
			logger.Printf("warn: websocket dial failed: %v", err)
			select {
			case <-time.After(time.Second):
				continue
			case <-ctx.Done():
				return nil
			}
		}

		for {
			action, err := src.Next(ctx)
			if err != nil {
				if ctx.Err() != nil {
					_ = src.Close()
					return nil
				}
				logger.Printf("warn: websocket read failed, reconnecting: %v", err)
				_ = src.Close()
				break
			}
			if err := ctrl.HandleAction(ctx, action); err != nil {
				logger.Printf("warn: dispatch failed: %v", err)
			}
		}
	}
}

func newDashLogger(cfg *config.Config) *logrus.Logger {
	dashLogger := logrus.New()
	dashLogger.SetOutput(os.Stdout)
	dashLogger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if lvl, err := logrus.ParseLevel(cfg.Environment.LogLevel); err == nil {
		dashLogger.SetLevel(lvl)
	} else {
		dashLogger.SetLevel(logrus.InfoLevel)
	}
	return dashLogger
}
