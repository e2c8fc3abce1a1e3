// Package admin provides a lightweight HTTP API for runtime inspection
// of the running store.
//
// Endpoints:
//
//	GET /status   - store health, uptime, configured cache policy, cluster nodes
//	GET /metrics  - full metrics snapshot
//
// The admin surface is bound to loopback by default and is independent of
// the TCP data-plane listener: a failure to bind it must not prevent the
// store itself from serving traffic.
package admin

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"cachedb/internal/config"
	"cachedb/internal/metrics"
)

// Server is the admin API server.
type Server struct {
	cfg       *config.Config
	startTime time.Time
	cluster   *ClusterRegistry
	token     string // bearer token for auth; empty = no auth
	metrics   *metrics.Metrics
}

// ClusterRegistry holds the set of peer cluster nodes (host:port) that keys
// may be routed to. It is shared between the router and the admin server.
type ClusterRegistry struct {
	mu    sync.RWMutex
	nodes map[string]bool
}

// NewClusterRegistry creates a registry seeded from the configured node list.
func NewClusterRegistry(cfg *config.Config) *ClusterRegistry {
	r := &ClusterRegistry{nodes: make(map[string]bool, len(cfg.ClusterNodes))}
	for _, n := range cfg.ClusterNodes {
		r.nodes[n] = true
	}
	return r
}

// Has returns true if the node is a registered cluster peer.
func (r *ClusterRegistry) Has(node string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.nodes[node]
}

// All returns a sorted slice of all registered cluster nodes.
func (r *ClusterRegistry) All() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.nodes))
	for n := range r.nodes {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// New creates an admin server.
func New(cfg *config.Config, cluster *ClusterRegistry, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:       cfg,
		startTime: time.Now(),
		cluster:   cluster,
		token:     cfg.AdminToken,
		metrics:   m,
	}
	if s.token != "" {
		log.Printf("[ADMIN] Bearer token authentication enabled")
	}
	return s
}

// Handler returns the HTTP handler for the admin API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/metrics", s.handleMetrics)
	return s.authMiddleware(mux)
}

// authMiddleware checks for a valid Bearer token if one is configured.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) ||
			subtle.ConstantTimeCompare([]byte(strings.TrimSpace(auth[len(prefix):])), []byte(s.token)) != 1 {
			log.Printf("[ADMIN] Unauthorized access attempt from %s to %s", r.RemoteAddr, r.URL.Path)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	type response struct {
		Status       string   `json:"status"`
		Uptime       string   `json:"uptime"`
		Port         int      `json:"port"`
		CachePolicy  string   `json:"cachePolicy"`
		CacheSize    int      `json:"cacheSize"`
		ClusterNodes []string `json:"clusterNodes"`
	}

	resp := response{
		Status:       "running",
		Uptime:       time.Since(s.startTime).Round(time.Second).String(),
		Port:         s.cfg.Port,
		CachePolicy:  s.cfg.CachePolicy,
		CacheSize:    s.cfg.CacheSize,
		ClusterNodes: s.cluster.All(),
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	if s.metrics == nil {
		http.Error(w, "metrics not enabled", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[ADMIN] JSON encode error: %v", err)
	}
}

// ListenAndServe starts the admin HTTP server, bound to loopback.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.cfg.AdminPort)
	log.Printf("[ADMIN] Listening on %s", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}
