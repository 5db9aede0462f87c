package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"calllog-dashboard/internal/loadgen"
	"calllog-dashboard/pkg/logger"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	target := flag.String("url", "http://localhost:3001/webhook/elevenlabs", "Ingest endpoint URL")
	secret := flag.String("secret", os.Getenv("WEBHOOK_SECRET"), "HMAC secret used to sign deliveries (empty sends unsigned)")
	agents := flag.String("agents", "agent_demo", "Comma-separated agent ids to spread deliveries across")
	rate := flag.Int("rate", 10, "Deliveries per second")
	total := flag.Int("total", 0, "Stop after this many deliveries (0 = no limit)")
	duration := flag.Duration("duration", time.Minute, "Stop after this long (0 = no limit)")
	concurrency := flag.Int("concurrency", 4, "Concurrent senders")
	retries := flag.Uint64("retries", 3, "Retries per delivery on transport errors and 5xx")
	seed := flag.Int64("seed", 0, "Fake data seed (0 = random)")
	metricsPort := flag.Int("metrics-port", 0, "Expose Prometheus metrics on this port (0 = disabled)")
	env := flag.String("env", "local", "Log environment (local and dev enable debug)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Synthetic post-call webhook generator\n")
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *rate <= 0 || *rate > loadgen.MaxRate {
		fmt.Fprintf(os.Stderr, "-rate must be between 1 and %d\n", loadgen.MaxRate)
		os.Exit(2)
	}

	log := logger.New(*env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *metricsPort > 0 {
		srv := &http.Server{Addr: fmt.Sprintf(":%d", *metricsPort), Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	var agentIDs []string
	for _, a := range strings.Split(*agents, ",") {
		if a = strings.TrimSpace(a); a != "" {
			agentIDs = append(agentIDs, a)
		}
	}

	log.Info("load generation starting",
		"url", *target, "rate", *rate, "total", *total, "duration", duration.String(),
		"concurrency", *concurrency, "agents", agentIDs, "signed", *secret != "")

	sum, err := loadgen.Run(ctx, loadgen.NewGenerator(*seed, agentIDs),
		loadgen.Sender{URL: *target, Secret: *secret, MaxRetries: *retries},
		loadgen.Options{Rate: *rate, Total: *total, Duration: *duration, Concurrency: *concurrency, Log: log})
	if err != nil {
		log.Error("load generation failed", "err", err)
		os.Exit(1)
	}

	log.Info("load generation finished",
		"attempted", sum.Attempted, "delivered", sum.Delivered, "failed", sum.Failed,
		"elapsed", sum.Elapsed.String())
	if sum.Failed > 0 {
		os.Exit(2)
	}
}
