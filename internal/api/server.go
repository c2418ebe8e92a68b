package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/lora-alert/internal/bridges/lora"
	"github.com/nerrad567/lora-alert/internal/catalog"
	"github.com/nerrad567/lora-alert/internal/infrastructure/config"
	"github.com/nerrad567/lora-alert/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// defaultRecentAlerts is how many dispatch reports /alerts/recent keeps.
const defaultRecentAlerts = 100

// StatsProvider supplies ingest counters. *lora.Bridge satisfies it.
type StatsProvider interface {
	Stats() lora.Stats
}

// ConnectionStatus reports whether an optional upstream is connected.
// *mqtt.Client satisfies it.
type ConnectionStatus interface {
	IsConnected() bool
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Catalog *catalog.Catalog
	Stats   StatsProvider
	MQTT    ConnectionStatus // optional
	Version string

	// RecentAlerts caps the in-memory list behind /alerts/recent. Default: 100.
	RecentAlerts int
}

// Server is the HTTP status server.
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	catalog   *catalog.Catalog
	stats     StatsProvider
	mqtt      ConnectionStatus
	version   string
	startTime time.Time
	hub       *Hub

	recent    []lora.AlertMessage
	recentCap int
	recentMu  sync.RWMutex

	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New creates a new API server. It is not listening until Start is called,
// but reports may be recorded at once.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if deps.Stats == nil {
		return nil, fmt.Errorf("stats provider is required")
	}

	recentCap := deps.RecentAlerts
	if recentCap <= 0 {
		recentCap = defaultRecentAlerts
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		catalog:   deps.Catalog,
		stats:     deps.Stats,
		mqtt:      deps.MQTT,
		version:   deps.Version,
		startTime: time.Now(),
		hub:       NewHub(deps.WS, deps.Logger),
		recentCap: recentCap,
	}, nil
}

// Start binds the listener and serves in the background.
//
// Returns:
//   - error: If the address cannot be bound (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server listening", "address", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// RecordReport keeps a dispatch report for /alerts/recent and streams it
// to WebSocket clients.
func (s *Server) RecordReport(r lora.DispatchReport) {
	msg := lora.NewAlertMessage(r)

	s.recentMu.Lock()
	s.recent = append(s.recent, msg)
	if over := len(s.recent) - s.recentCap; over > 0 {
		s.recent = append(s.recent[:0], s.recent[over:]...)
	}
	s.recentMu.Unlock()

	s.hub.Broadcast(ChannelAlerts, msg)
}

// RecordStatus streams a gateway status line to WebSocket clients.
func (s *Server) RecordStatus(text string) {
	s.hub.Broadcast(ChannelStatus, lora.NewStatusMessage(text))
}

// recentAlerts returns the kept reports, newest first.
func (s *Server) recentAlerts() []lora.AlertMessage {
	s.recentMu.RLock()
	defer s.recentMu.RUnlock()

	out := make([]lora.AlertMessage, len(s.recent))
	for i, msg := range s.recent {
		out[len(s.recent)-1-i] = msg
	}
	return out
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
