// Command yeet-server runs the coordinator: the authoritative store of
// hosts, policy, and encrypted secrets, served over the signed HTTP API
// agents poll against.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yeet-sh/yeet/pkg/coordinator"
	"github.com/yeet-sh/yeet/pkg/reqsig"
)

const shutdownGrace = 5 * time.Second

func main() {
	statePath := getenvDefault("YEET_STATE", "state.json")
	host := getenvDefault("YEET_HOST", "localhost")
	port := getenvDefault("YEET_PORT", "4337")

	state, err := coordinator.LoadAppState(statePath)
	if err != nil {
		log.Fatalf("yeet-server: load state: %v", err)
	}

	if !state.HasAdminCredential() {
		initKey := os.Getenv("YEET_INIT_KEY")
		if initKey == "" {
			log.Fatal("yeet-server: state has no admin credential; set YEET_INIT_KEY to bootstrap one")
		}
		identity, err := reqsig.ResolvePublicKeyHex(initKey)
		if err != nil {
			log.Fatalf("yeet-server: resolve YEET_INIT_KEY: %v", err)
		}
		state.AddAdminKey(identity)
		slog.Info("bootstrapped admin key", "identity", identity)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go coordinator.RunPersistenceLoop(ctx, state, statePath)

	srv := coordinator.NewServer(state)
	addr := host + ":" + port
	httpSrv := &http.Server{Addr: addr, Handler: srv.Handler()}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown", "error", err)
		}
	}()

	slog.Info("yeet-server listening", "addr", addr, "state", statePath)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("yeet-server: %v", err)
	}
	slog.Info("yeet-server stopped")
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
