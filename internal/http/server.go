package http

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/route-beacon/bgp-control/internal/rtargetmgr"
)

// CoreStatus reports whether the BGP core has finished its initial
// config-delta apply and is accepting sessions. Readiness gates on this
// alone: internal/audit and internal/telemetry are best-effort side
// listeners and never hold /readyz down.
type CoreStatus interface {
	Ready() bool
}

type Server struct {
	srv      *http.Server
	core     CoreStatus
	rtargets *rtargetmgr.Manager
	logger   *zap.Logger
}

// NewServer builds the operational HTTP surface: health/readiness probes,
// Prometheus scraping, and the route-target inverted-index query endpoint.
// rtargets may be nil, in which case /rtarget-groups always reports an
// empty page.
func NewServer(addr string, core CoreStatus, rtargets *rtargetmgr.Manager, logger *zap.Logger) *Server {
	s := &Server{
		core:     core,
		rtargets: rtargets,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.HandleFunc("/rtarget-groups", s.handleRtargetGroups)
	mux.Handle("/metrics", promhttp.Handler())

	s.srv = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	return s
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.logger.Info("HTTP server listening", zap.String("addr", s.srv.Addr))
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleReadyz reports readiness from the core alone. A nil core (the
// server constructed before a BgpServer exists, e.g. in tests) is treated
// as ready.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ready := s.core == nil || s.core.Ready()

	w.Header().Set("Content-Type", "application/json")
	status := "ready"
	httpStatus := http.StatusOK
	if !ready {
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	w.WriteHeader(httpStatus)
	json.NewEncoder(w).Encode(map[string]any{"status": status})
}

type rtargetGroupEntry struct {
	RouteTarget string   `json:"route_target"`
	Tables      []string `json:"tables"`
	Peers       []string `json:"peers"`
}

type rtargetGroupsResponse struct {
	RouteTargets []rtargetGroupEntry `json:"rtargets"`
	NextCursor   string              `json:"next_cursor"`
}

// handleRtargetGroups implements the operational route-target query:
// {search_string?, iter_cursor?, page_limit?} -> {rtargets[], next_cursor}.
// search_string filters by substring match against the route-target's
// string form after pagination, matching the inverted index's cursor order.
func (s *Server) handleRtargetGroups(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cursor := q.Get("iter_cursor")
	search := q.Get("search_string")

	limit := 0
	if raw := q.Get("page_limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	resp := rtargetGroupsResponse{RouteTargets: []rtargetGroupEntry{}}
	if s.rtargets != nil {
		entries, next := s.rtargets.Query(cursor, limit)
		for _, e := range entries {
			rt := e.RouteTarget.String()
			if search != "" && !strings.Contains(rt, search) {
				continue
			}
			resp.RouteTargets = append(resp.RouteTargets, rtargetGroupEntry{
				RouteTarget: rt,
				Tables:      e.Tables,
				Peers:       e.Peers,
			})
		}
		resp.NextCursor = next
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(resp)
}
