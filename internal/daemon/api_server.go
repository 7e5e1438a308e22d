package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"dcmrelay/internal/config"
	"dcmrelay/internal/journal"
	"dcmrelay/internal/logging"
	"dcmrelay/internal/relay"
)

type apiServer struct {
	bind    string
	logger  *slog.Logger
	daemon  *Daemon
	metrics http.Handler

	listener net.Listener
	server   *http.Server
}

type statusPayload struct {
	Running      bool                `json:"running"`
	PID          int                 `json:"pid"`
	LockPath     string              `json:"lock_path"`
	JournalPath  string              `json:"journal_path,omitempty"`
	JournalStats map[string]int      `json:"journal_stats,omitempty"`
	Relay        relay.Status        `json:"relay"`
	Dependencies []dependencyPayload `json:"dependencies"`
}

type dependencyPayload struct {
	Name      string `json:"name"`
	Command   string `json:"command"`
	Optional  bool   `json:"optional"`
	Available bool   `json:"available"`
	Detail    string `json:"detail,omitempty"`
}

type historyPayload struct {
	Entries []historyEntry `json:"entries"`
}

type historyEntry struct {
	ID         int64     `json:"id"`
	At         time.Time `json:"at"`
	Route      string    `json:"route"`
	BatchID    string    `json:"batch_id"`
	File       string    `json:"file"`
	Endpoint   string    `json:"endpoint"`
	Outcome    string    `json:"outcome"`
	Detail     string    `json:"detail,omitempty"`
	DurationMS int64     `json:"duration_ms"`
}

func newAPIServer(cfg *config.Config, d *Daemon, metrics http.Handler, logger *slog.Logger) *apiServer {
	if cfg == nil || d == nil {
		return nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}

	mux := http.NewServeMux()
	srv := &apiServer{
		bind:    bind,
		logger:  logger,
		daemon:  d,
		metrics: metrics,
	}

	mux.HandleFunc("/api/status", srv.handleStatus)
	mux.HandleFunc("/api/history", srv.handleHistory)
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	payload := statusPayload{
		Running:      status.Running,
		PID:          status.PID,
		LockPath:     status.LockPath,
		JournalPath:  status.JournalPath,
		JournalStats: status.JournalStats,
		Relay:        status.Relay,
		Dependencies: make([]dependencyPayload, 0, len(status.Dependencies)),
	}
	for _, dep := range status.Dependencies {
		payload.Dependencies = append(payload.Dependencies, dependencyPayload{
			Name:      dep.Name,
			Command:   dep.Command,
			Optional:  dep.Optional,
			Available: dep.Available,
			Detail:    dep.Detail,
		})
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	query := journal.Query{
		Route:   strings.TrimSpace(r.URL.Query().Get("route")),
		Outcome: strings.TrimSpace(r.URL.Query().Get("outcome")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		query.Limit = limit
	}

	entries, err := s.daemon.History(r.Context(), query)
	if err != nil {
		if errors.Is(err, ErrJournalDisabled) {
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	payload := historyPayload{Entries: make([]historyEntry, 0, len(entries))}
	for _, entry := range entries {
		payload.Entries = append(payload.Entries, historyEntry{
			ID:         entry.ID,
			At:         entry.OccurredAt,
			Route:      entry.Route,
			BatchID:    entry.BatchID,
			File:       entry.File,
			Endpoint:   entry.Endpoint,
			Outcome:    entry.Outcome,
			Detail:     entry.Detail,
			DurationMS: entry.Duration.Milliseconds(),
		})
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String("component", "api-server"))
	}
	return logging.NewNop()
}
