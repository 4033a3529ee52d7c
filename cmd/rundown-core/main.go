// Command rundown-core serves the UI-independent collaborative-editing
// core (OT engine, per-cell save coordinator, realtime reconnection
// coordinator, auth monitor) over a realtime websocket plus a prometheus
// /metrics endpoint, grounded on go/flow-ingester/main.go's go-flags
// "serve" command and signal-driven shutdown.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/rundownhq/collab-core/internal/authn"
	"github.com/rundownhq/collab-core/internal/realtime"
	"github.com/rundownhq/collab-core/internal/store"
	"github.com/rundownhq/collab-core/internal/telemetry"
)

type cmdServe struct{}

func (cmdServe) Execute(_ []string) error {
	cfg := Config
	telemetry.InitLog(cfg.Log)

	log.WithField("config", fmt.Sprintf("%+v", cfg)).Info("rundown-core configuration")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(ctx, cfg.Store.SqlitePath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer db.Close()

	registry := telemetry.NewRegistry()
	realtimeMetrics := realtime.NewMetrics(registry)

	monitor := authn.New(db, nil)

	newTransport := func(documentID string) realtime.Transport {
		if cfg.Realtime.WebsocketURL == "" {
			return noopTransport{}
		}
		t, err := realtime.NewWebSocketTransport(cfg.Realtime.WebsocketURL)
		if err != nil {
			log.WithError(err).WithField("document", documentID).Warn("failed to build realtime transport; falling back to no-op")
			return noopTransport{}
		}
		return t
	}

	sessions := newSessionRegistry(db, monitor, realtime.DefaultConfig(), realtimeMetrics, newTransport)
	monitor.OnSignedOut(func() {
		log.Warn("session signed out; reconnection pipelines will refuse to proceed until the next sign-in")
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/ws/", func(w http.ResponseWriter, r *http.Request) {
		serveRealtime(sessions, w, r)
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("rundown-core listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-signalCh:
		log.WithField("signal", sig).Info("caught signal")
	case err := <-errCh:
		return fmt.Errorf("serving http: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}

	log.Info("goodbye")
	return nil
}

// noopTransport is used when no upstream realtime endpoint is configured;
// Probe always succeeds so the reconnection pipeline's transport step is
// a no-op rather than a hard failure.
type noopTransport struct{}

func (noopTransport) Probe(ctx context.Context) bool      { return true }
func (noopTransport) Reconnect(ctx context.Context) error { return nil }
func (noopTransport) Close() error                        { return nil }

// Config is the top-level configuration object, mirroring
// go/flow-ingester/main.go's package-level var Config pattern.
var Config = new(config)

func main() {
	parser := flags.NewParser(Config, flags.Default)
	if _, err := parser.AddCommand("serve", "Serve the collaborative-editing core", `
Serve the OT engine, save coordinator, and reconnection coordinator over a
realtime websocket and a prometheus /metrics endpoint, until signaled to
exit (via SIGTERM/SIGINT).
`, &cmdServe{}); err != nil {
		log.WithError(err).Fatal("failed to register serve command")
	}

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}
}
