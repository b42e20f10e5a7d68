// Command yeet-agent runs the per-host reconcile loop: enrollment with
// the coordinator, polling for desired-state changes, and materializing
// secrets and activating new store paths as they're published.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/yeet-sh/yeet/pkg/agentd"
	"github.com/yeet-sh/yeet/pkg/reqsig"
	"github.com/yeet-sh/yeet/pkg/statussvc"
)

func main() {
	serverURL := os.Getenv("YEET_SERVER")
	if serverURL == "" {
		log.Fatal("yeet-agent: YEET_SERVER is required (coordinator base URL)")
	}
	keyPath := getenvDefault("YEET_AGENT_KEY", "/etc/yeet/agent.key")

	key, err := reqsig.LoadOrGenerateKey(keyPath)
	if err != nil {
		log.Fatalf("yeet-agent: load key: %v", err)
	}

	cfg := agentd.Config{
		ServerURL:   serverURL,
		Key:         key,
		Interval:    intervalFromEnv("YEET_INTERVAL", 30*time.Second),
		SecretRoot:  os.Getenv("YEET_SECRET_ROOT"),
		SymlinkPath: os.Getenv("YEET_SECRET_SYMLINK"),
	}
	if os.Getenv("YEET_FACTER") == "1" {
		cfg.Facts = agentd.FacterCollector{}
	}

	agent := agentd.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	socketPath := getenvDefault("YEET_STATUS_SOCKET", "/run/yeet-agent.sock")
	go serveStatus(ctx, socketPath, agent)

	slog.Info("yeet-agent starting", "server", serverURL, "key", keyPath)
	if err := agent.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("yeet-agent: %v", err)
	}
	slog.Info("yeet-agent stopped")
}

func serveStatus(ctx context.Context, socketPath string, source statussvc.Source) {
	svc := statussvc.New(socketPath, source)
	ln, err := svc.Listen()
	if err != nil {
		slog.Error("status service: listen", "error", err, "socket", socketPath)
		return
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	if err := svc.Serve(ln); err != nil && ctx.Err() == nil {
		slog.Error("status service: serve", "error", err)
	}
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intervalFromEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		slog.Warn("invalid interval, using default", "env", key, "value", v, "default", fallback)
		return fallback
	}
	return time.Duration(secs) * time.Second
}
