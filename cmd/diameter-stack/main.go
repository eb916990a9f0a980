package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hsdfat/diam-stack/diam"
	"github.com/hsdfat/diam-stack/internal/config"
	"github.com/hsdfat/diam-stack/pkg/capture"
	"github.com/hsdfat/diam-stack/pkg/logger"
	"github.com/hsdfat/diam-stack/stack"
)

func main() {
	// Command line flags
	configPath := flag.String("config", "", "Path to a YAML config file (default: search diameter-stack.yaml)")
	mode := flag.String("mode", "", "Working mode, server or client (overrides the config file)")
	remote := flag.String("remote", "", "Remote peer host:port in client mode (overrides the config file)")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Log.Errorw("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Stack.Mode = *mode
	}
	if *remote != "" {
		cfg.Stack.RemoteAddr = *remote
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		logger.Log.Errorw("Invalid configuration", "error", err)
		os.Exit(1)
	}

	log := logger.New("diameter-stack", cfg.Logging.Level)
	log.Infow("Starting Diameter stack...", "mode", cfg.Stack.Mode)

	if err := run(cfg, log); err != nil {
		log.Errorw("Diameter stack failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log logger.Logger) error {
	dict, err := cfg.Dictionary.Load()
	if err != nil {
		return err
	}
	log.Infow("Dictionary loaded", "name", dict.Name(), "avps", dict.Len(), "commands", len(dict.Commands()))

	hostIP, err := cfg.Identity.HostIP()
	if err != nil {
		log.Warnw("No Host-IP-Address available", "error", err)
	}

	factory := diam.NewFactory(dict)
	app := newPeerApp(&cfg.Identity, hostIP, log)
	s, err := stack.New(cfg.Stack.StackConfig(), app, factory)
	if err != nil {
		return err
	}
	s.SetLogger(log)
	s.Use(stack.RecoveryMiddleware(s), stack.LoggingMiddleware(s), stack.MetricsMiddleware(s))

	if cfg.Capture.Enabled {
		w, err := capture.Create(cfg.Capture.Path)
		if err != nil {
			return err
		}
		defer w.Close()
		s.SetCapture(w)
		log.Infow("Capturing traffic", "path", cfg.Capture.Path)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cfg.Stack.Mode {
	case "server":
		if err := s.Listen(ctx); err != nil {
			return err
		}
	case "client":
		ans, err := s.SendRequest(ctx, app.CER(factory))
		if err != nil {
			s.Shutdown()
			return err
		}
		log.Infow("Capabilities exchange completed",
			"peer", avpText(ans, avpOriginHost),
			"result_code", avpText(ans, avpResultCode),
			"latency_p50", s.Stats().RequestLatency.P50.String())
	}

	if cfg.Metrics.Enabled {
		go reportMetrics(ctx, s, cfg.Metrics.Interval, log)
	}

	<-ctx.Done()
	log.Infow("Shutting down...")
	s.Shutdown()
	s.Wait()

	stats := s.Stats()
	log.Infow("Diameter stack stopped",
		"connections", stats.TotalConnections,
		"messages_sent", stats.MessagesSent,
		"messages_received", stats.MessagesReceived,
		"decode_errors", stats.DecodeErrors,
		"errors", stats.Errors)
	if cfg.Metrics.Enabled {
		fmt.Print(s.MetricsReport())
	}
	return nil
}

func avpText(m *diam.Message, code uint32) string {
	if a := m.Find(code, 0); a != nil && a.Data != nil {
		return a.Data.Text()
	}
	return ""
}

// reportMetrics logs a per-command summary every interval
func reportMetrics(ctx context.Context, s *stack.Stack, interval time.Duration, log logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Infow("Metrics", "summary", s.MetricsSummary(), "state", s.State().String())
		}
	}
}
