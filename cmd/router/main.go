// Copyright 2024 BrokerRouter Authors. Licensed under Apache-2.0.

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

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/brokerrouter/routingtable/internal/config"
	"github.com/brokerrouter/routingtable/internal/coordclient"
	"github.com/brokerrouter/routingtable/internal/routing"
	"github.com/brokerrouter/routingtable/pkg/log"
)

func panicf(format string, args ...any) {
	panic(fmt.Sprintf(format, args...))
}

func main() {
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	cfg, err := config.Parse(*configPath)
	if err != nil {
		panicf("failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Dev)
	if err != nil {
		panicf("failed to init logger: %v", err)
	}
	log.InitLogger(logger)
	defer logger.Sync() //nolint:errcheck
	log.Info("router starting", zap.Strings("etcd-endpoints", cfg.EtcdEndpoints), zap.String("root-path", cfg.RootPath))

	etcd, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.EtcdEndpoints,
		DialTimeout: cfg.RequestTimeout,
	})
	if err != nil {
		panicf("failed to connect to etcd: %v", err)
	}
	defer etcd.Close()

	coordinator := coordclient.New(etcd, cfg.RootPath, cfg.RequestTimeout)
	manager := routing.NewManager(coordinator, cfg.TimeBoundaryGranularity, routing.WithHostID(hostID()))
	mediator := routing.NewChangeMediator(manager, cfg.NotificationMinInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go coordclient.WatchLoop(ctx, coordinator, mediator)
	go runReconcileLoop(ctx, mediator, cfg.ReconcileInterval)

	httpServer := newDebugServer(cfg.HTTPAddr, manager)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("debug http server stopped", zap.Error(err))
		}
	}()

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	sig := <-sc
	log.Info("got signal to exit", zap.String("signal", sig.String()))

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func hostID() string {
	name, err := os.Hostname()
	if err != nil {
		return "unknown-host"
	}
	return name
}

// runReconcileLoop periodically re-derives "what changed" from the
// coordinator's current state, catching anything the watch loop's
// real-time push missed across a connection drop.
func runReconcileLoop(ctx context.Context, mediator *routing.ChangeMediator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			mediator.NotifyExternalViewChange(ctx)
			mediator.OnInstanceConfigChange(ctx)
		}
	}
}

// newDebugServer serves the operator-facing routing table dump; not part
// of the query path.
func newDebugServer(addr string, manager *routing.Manager) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/snapshot", func(w http.ResponseWriter, r *http.Request) {
		snapshot, err := manager.DumpSnapshot(r.URL.Query().Get("table_prefix"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(snapshot))
	})
	return &http.Server{Addr: addr, Handler: mux}
}
