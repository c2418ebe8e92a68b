package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/lora-alert/internal/bridges/lora"
	"github.com/nerrad567/lora-alert/internal/catalog"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Get("/{id}", s.handleGetDevice)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", s.handleListAlerts)
			r.Get("/recent", s.handleRecentAlerts)
		})
	})

	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = "/api/v1/ws"
	}
	r.Get(wsPath, s.handleWebSocket)

	return r
}

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status        string     `json:"status"`
	Version       string     `json:"version"`
	State         lora.State `json:"state"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	MQTT          *bool      `json:"mqtt_connected,omitempty"`
	WSClients     int        `json:"websocket_clients"`
}

// handleHealth reports "ok", "degraded" (MQTT down) or "stopping".
// It answers 503 once the ingest loop has stopped.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	state := s.stats.Stats().State

	resp := HealthResponse{
		Status:        "ok",
		Version:       s.version,
		State:         state,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		WSClients:     s.hub.ClientCount(),
	}
	if s.mqtt != nil {
		connected := s.mqtt.IsConnected()
		resp.MQTT = &connected
		if !connected {
			resp.Status = "degraded"
		}
	}

	code := http.StatusOK
	if state == lora.StateDraining || state == lora.StateTerminated {
		resp.Status = "stopping"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.stats.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"state":          stats.State,
		"lines_read":     stats.LinesRead,
		"events":         stats.Events,
		"status_lines":   stats.StatusLines,
		"suppressed":     stats.Suppressed,
		"malformed":      stats.Malformed,
		"outcomes":       stats.Outcomes,
		"queue_depth":    stats.QueueDepth,
		"uptime_seconds": int64(stats.Uptime.Seconds()),
	})
}

func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.catalog.Devices()
	writeJSON(w, http.StatusOK, map[string]any{
		"devices": devices,
		"count":   len(devices),
	})
}

// deviceDetail is a device with the alerts configured for its location.
type deviceDetail struct {
	catalog.Device
	Alerts []catalog.Rule `json:"alerts"`
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeBadRequest(w, "device id must be a non-negative integer")
		return
	}

	loc, ok := s.catalog.Location(catalog.DeviceID(id))
	if !ok {
		writeNotFound(w, "device not found")
		return
	}

	detail := deviceDetail{
		Device: catalog.Device{ID: catalog.DeviceID(id), Location: loc},
		Alerts: []catalog.Rule{},
	}
	for _, rule := range s.catalog.Rules() {
		if rule.Location == loc {
			detail.Alerts = append(detail.Alerts, rule)
		}
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, _ *http.Request) {
	rules := s.catalog.Rules()
	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": rules,
		"count":  len(rules),
	})
}

func (s *Server) handleRecentAlerts(w http.ResponseWriter, r *http.Request) {
	alerts := s.recentAlerts()

	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		if limit < len(alerts) {
			alerts = alerts[:limit]
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"alerts": alerts,
		"count":  len(alerts),
	})
}
