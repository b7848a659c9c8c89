package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"poolscope/internal/application"
	"poolscope/internal/config"
	"poolscope/internal/domain"
)

// Browser is the orchestrator surface the HTTP layer drives: it pushes a
// filter-state change and reads back the published snapshot.
type Browser interface {
	Refresh(ctx context.Context, state application.FilterState)
	Snapshot() application.Snapshot
}

type HealthStore interface {
	Ping(ctx context.Context) error
}

type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

type Server struct {
	cfg       config.Config
	browser   Browser
	store     HealthStore
	metrics   *Metrics
	buildInfo BuildInfo
}

func NewServer(cfg config.Config, browser Browser, store HealthStore, metrics *Metrics, buildInfo BuildInfo) (*Server, error) {
	if browser == nil || store == nil {
		return nil, errors.New("http server dependencies must not be nil")
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Server{cfg: cfg, browser: browser, store: store, metrics: metrics, buildInfo: buildInfo}, nil
}

func (s *Server) MetricsObserver() *Metrics {
	return s.metrics
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/readyz", s.handleReady)
	mux.HandleFunc("/logs", s.handleLogs)
	mux.HandleFunc("/options", s.handleOptions)
	mux.HandleFunc("/state", s.handleState)
	mux.HandleFunc("/metrics", s.handleMetrics)
	mux.HandleFunc("/version", s.handleVersion)
	return mux
}

func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		respondError(w, http.StatusServiceUnavailable, "store not ready")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type logsResponse struct {
	Logs            []domain.Log `json:"logs"`
	NetworkOptions  []string     `json:"network_options"`
	StrategyOptions []string     `json:"strategy_options"`
	Error           string       `json:"error,omitempty"`
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	state, err := parseFilterState(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.browser.Refresh(r.Context(), state)
	snap := s.browser.Snapshot()

	response := logsResponse{
		Logs:            snap.Logs,
		NetworkOptions:  snap.NetworkOptions,
		StrategyOptions: snap.StrategyOptions,
	}
	if snap.Err != nil {
		// previously published rows are still served alongside the error
		response.Error = snap.Err.Error()
	}
	respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	snap := s.browser.Snapshot()
	respondJSON(w, http.StatusOK, map[string][]string{
		"network":  snap.NetworkOptions,
		"strategy": snap.StrategyOptions,
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	snap := s.browser.Snapshot()
	respondJSON(w, http.StatusOK, map[string]any{
		"published_logs": len(snap.Logs),
		"config": map[string]any{
			"store_driver":  s.cfg.StoreDriver,
			"db_path":       s.cfg.DBPath,
			"http_addr":     s.cfg.HTTPAddr,
			"kafka_topic":   s.cfg.KafkaTopic,
			"query_timeout": s.cfg.QueryTimeout.String(),
		},
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	snap := s.metrics.Snapshot()

	uptime := time.Since(snap.StartTime).Seconds()
	fmt.Fprintf(w, "poolscope_uptime_seconds %.0f\n", uptime)
	fmt.Fprintf(w, "poolscope_refreshes_total %d\n", snap.Refreshes)
	fmt.Fprintf(w, "poolscope_refresh_errors_total %d\n", snap.RefreshErrs)
	fmt.Fprintf(w, "poolscope_stale_results_total %d\n", snap.StaleResults)
	fmt.Fprintf(w, "poolscope_last_refresh_seconds %.3f\n", snap.LastRefreshDuration.Seconds())
	fmt.Fprintf(w, "poolscope_last_refresh_rows %d\n", snap.LastRefreshCount)
	for column, count := range snap.OptionsErrs {
		fmt.Fprintf(w, "poolscope_options_errors_total{column=%q} %d\n", column, count)
	}
	fmt.Fprintf(w, "poolscope_kafka_messages_total %d\n", snap.KafkaMessages)
	fmt.Fprintf(w, "poolscope_kafka_decode_errors_total %d\n", snap.KafkaDecodeErrs)
	fmt.Fprintf(w, "poolscope_kafka_apply_errors_total %d\n", snap.KafkaApplyErrs)
	fmt.Fprintf(w, "poolscope_kafka_fetch_errors_total %d\n", snap.KafkaFetchErrs)
	fmt.Fprintf(w, "poolscope_logs_ingested_total %d\n", snap.LogsIngested)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.buildInfo)
}

func parseFilterState(r *http.Request) (application.FilterState, error) {
	query := r.URL.Query()

	state := application.FilterState{
		Network:  query.Get("network"),
		Strategy: query.Get("strategy"),
		TxHash:   query.Get("tx_hash"),
	}

	if raw := query.Get("block_number"); raw != "" {
		value, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return application.FilterState{}, errors.New("invalid block_number")
		}
		state.BlockNumber = value
	}

	if raw := query.Get("removed"); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return application.FilterState{}, errors.New("invalid removed")
		}
		state.Removed = &value
	}

	if raw := query.Get("created_after"); raw != "" {
		value, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return application.FilterState{}, errors.New("invalid created_after")
		}
		utc := value.UTC()
		state.CreatedAfter = &utc
	}

	if raw := query.Get("show_duplicates"); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return application.FilterState{}, errors.New("invalid show_duplicates")
		}
		state.ShowDuplicates = value
	}

	return state, nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
