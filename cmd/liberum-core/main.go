// cmd/liberum-core is the daemon entrypoint: it owns the Node Manager,
// the shared Object Store, and the Control API socket for one process.
//
// Example:
//
//	./liberum-core --data-dir /var/lib/liberum-neto --control-socket /run/liberum-neto.sock
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liberum-neto/liberum-neto/internal/control"
	"github.com/liberum-neto/liberum-neto/internal/logging"
	"github.com/liberum-neto/liberum-neto/internal/manager"
	"github.com/liberum-neto/liberum-neto/internal/nodestore"
	"github.com/liberum-neto/liberum-neto/internal/objectstore"
	"github.com/liberum-neto/liberum-neto/internal/swarm"
)

func main() {
	dataDir := flag.String("data-dir", defaultDataDir(), "Directory for node manifests and object storage")
	socketPath := flag.String("control-socket", "/tmp/liberum-core/core.sock", "Unix socket path for the Control API")
	metricsAddr := flag.String("metrics-addr", "", "Address to serve Prometheus metrics on (empty disables it)")
	fanOut := flag.Int("fan-out", swarm.DefaultConfig().FanOut, "Maximum number of providers tried, one after another, per download")
	autostart := flag.String("autostart", "", "Comma-separated list of previously created node names to load and start at boot")
	flag.Parse()

	log := logging.Named(logging.Control)

	objects, err := objectstore.Open(filepath.Join(*dataDir, "objects"))
	if err != nil {
		log.Fatalf("open object store: %v", err)
	}
	manifests, err := nodestore.Open(*dataDir)
	if err != nil {
		log.Fatalf("open node store: %v", err)
	}

	cfg := swarm.DefaultConfig()
	cfg.FanOut = *fanOut

	mgr := manager.New(manifests, objects, cfg)

	for _, name := range splitNonEmpty(*autostart) {
		if err := mgr.LoadNode(name); err != nil {
			log.Fatalf("load node %q: %v", name, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, name := range splitNonEmpty(*autostart) {
		if err := mgr.Start(ctx, name); err != nil {
			log.Fatalf("start node %q: %v", name, err)
		}
	}

	if *metricsAddr != "" {
		registry := prometheus.NewRegistry()
		registry.MustRegister(objects.Collectors()...)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				log.Errorw("metrics server error", "err", err)
			}
		}()
	}

	srv := control.NewServer(*socketPath, mgr)
	serveErrCh := make(chan error, 1)
	go func() {
		serveErrCh <- srv.Serve(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Infow("shutdown signal received")
	case err := <-serveErrCh:
		if err != nil {
			log.Errorw("control server exited", "err", err)
		}
	}

	cancel()
	srv.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := mgr.Close(shutdownCtx); err != nil {
		log.Errorw("error stopping nodes", "err", err)
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".liberum-neto"
	}
	return filepath.Join(home, ".liberum-neto")
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
