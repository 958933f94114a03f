// Package opsserver provides the ingest pipeline's operational HTTP
// surface: liveness/readiness probes and a small status dashboard
// over the BrokerSessions and GroupBuffer. It never exposes a
// device-data query endpoint — that surface belongs to a separate
// read path, out of scope here.
package opsserver

import (
	"context"
	"net"
	"net/http"

	"github.com/pico-cs/mesh-ingest/internal/logger"
)

// DefaultHost/DefaultPort are used when Config leaves them unset.
const (
	DefaultHost = ""
	DefaultPort = "8090"
)

// Config describes the ops HTTP listener address.
type Config struct {
	Host string
	Port string
}

func (c Config) port() string {
	if c.Port == "" {
		return DefaultPort
	}
	return c.Port
}

func (c Config) addr() string { return net.JoinHostPort(c.Host, c.port()) }

// BrokerStatus is one row of the dashboard's broker table.
type BrokerStatus struct {
	Name  string
	State string
}

// StatusSource supplies the live data the dashboard renders. The
// Supervisor implements it; tests can substitute a stub.
type StatusSource interface {
	BrokerStatuses() []BrokerStatus
	GroupBufferPending() int
}

// Server is the ops HTTP listener: /healthz, /readyz, and / (status
// dashboard). It embeds *http.ServeMux so additional routes can be
// registered with Handle/HandleFunc.
type Server struct {
	lg     logger.Logger
	addr   string
	source StatusSource
	*http.ServeMux
	svr *http.Server
}

// New returns a Server that is not yet listening; call ListenAndServe.
func New(lg logger.Logger, cfg Config, source StatusSource) *Server {
	if lg == nil {
		lg = logger.Null
	}
	mux := &http.ServeMux{}
	addr := cfg.addr()
	s := &Server{
		lg:       lg,
		addr:     addr,
		source:   source,
		ServeMux: mux,
		svr:      &http.Server{Addr: addr, Handler: mux},
	}
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.HandleFunc("/", s.handleDashboard)
	return s
}

// Addr returns the listener address.
func (s *Server) Addr() string { return s.addr }

// ListenAndServe starts the server in the background: a failure other
// than a clean Shutdown is fatal.
func (s *Server) ListenAndServe() error {
	s.lg.Printf("connect to ops http server %s", s.addr)
	go func() {
		if err := s.svr.ListenAndServe(); err != http.ErrServerClosed {
			s.lg.Fatalf("ops http server ListenAndServe: %s", err)
		}
	}()
	return nil
}

// Close shuts the server down gracefully.
func (s *Server) Close() error {
	s.lg.Println("shutdown ops http server...")
	if err := s.svr.Shutdown(context.Background()); err != nil {
		s.lg.Printf("ops http server Shutdown: %v", err)
	}
	s.lg.Printf("disconnected from ops http server %s", s.addr)
	return nil
}

// handleHealthz always reports ok once the process is up: liveness,
// not readiness.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

// handleReadyz reports unready if no BrokerSession has reached
// Subscribed, since the pipeline cannot receive packets until at
// least one broker connection is live.
func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	for _, b := range s.source.BrokerStatuses() {
		if b.State == "subscribed" {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Write([]byte("ready"))
			return
		}
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte("not ready: no broker session subscribed"))
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := dashboardData{
		Brokers: s.source.BrokerStatuses(),
		Pending: s.source.GroupBufferPending(),
	}
	if err := dashboardTpl.Execute(w, data); err != nil {
		s.lg.Printf("render dashboard: %s", err)
	}
}
