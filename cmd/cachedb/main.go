// Command cachedb is a Redis-compatible in-memory key/value store with
// pluggable eviction policies, AOF + encrypted snapshot durability, a
// HyperLogLog cardinality estimator, and hash-based cluster routing.
//
// Usage:
//
//	./cachedb
//
//	# Custom ports, policy
//	CACHEDB_PORT=7000 CACHEDB_CACHE_POLICY=ARC ./cachedb
package main

import (
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	"cachedb/internal/admin"
	"cachedb/internal/config"
	"cachedb/internal/conn"
	"cachedb/internal/db"
	"cachedb/internal/logger"
)

func main() {
	cfg := config.Load()
	printBanner(cfg)

	engine, err := db.Open(cfg)
	if err != nil {
		log.Fatalf("[CACHEDB] Fatal: %v", err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Printf("[CACHEDB] Shutdown close error: %v", err)
		}
	}()

	registry := admin.NewClusterRegistry(cfg)
	adminSrv := admin.New(cfg, registry, engine.Stats)
	go func() {
		if err := adminSrv.ListenAndServe(); err != nil {
			log.Printf("[ADMIN] Fatal: %v", err)
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("[CACHEDB] Listen on %s: %v", addr, err)
	}
	if cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, cfg.MaxConnections)
	}
	log.Printf("[CACHEDB] Listening on %s (policy=%s capacity=%d)", addr, cfg.CachePolicy, cfg.CacheSize)

	connLog := logger.New("CONN", cfg.LogLevel)

	var wg sync.WaitGroup
	go acceptLoop(ln, engine, cfg, connLog, &wg)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Printf("[CACHEDB] Shutting down…")
	_ = ln.Close() // stop accepting new connections

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(15 * time.Second):
		log.Printf("[CACHEDB] Timed out waiting for in-flight connections to finish")
	}
}

func acceptLoop(ln net.Listener, engine *db.Engine, cfg *config.Config, connLog *logger.Logger, wg *sync.WaitGroup) {
	for {
		c, err := ln.Accept()
		if err != nil {
			return // listener closed during shutdown
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer c.Close() //nolint:errcheck // best-effort close on handler return
			conn.NewHandler(c, engine, cfg, connLog).Serve()
		}()
	}
}

func printBanner(cfg *config.Config) {
	fmt.Printf(`
╔══════════════════════════════════════════════════════╗
║              cachedb  (Go)                            ║
╚══════════════════════════════════════════════════════╝
  Port            : %d
  Admin port      : %d
  Cache policy    : %s
  Cache size      : %d
  Cluster nodes   : %d
  Max connections : %d

  Connect:
    nc localhost %d

  Admin status:
    curl http://localhost:%d/status
`, cfg.Port, cfg.AdminPort, cfg.CachePolicy, cfg.CacheSize,
		len(cfg.ClusterNodes), cfg.MaxConnections, cfg.Port, cfg.AdminPort)
}
