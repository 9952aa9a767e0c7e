// Package web is the operational command surface: account and mode status,
// the performance leaderboard, a decision SSE stream and guarded mutating
// endpoints for halt, resume and mode changes.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/vadiminshakov/verdict/internal/domain"
	"github.com/vadiminshakov/verdict/internal/storage/history"
	"github.com/vadiminshakov/verdict/internal/storage/performance"
	"go.uber.org/zap"
)

const decisionPollInterval = 3 * time.Second

// statusView is the read-only slice of the orchestrator the server exposes.
type statusView interface {
	Live() string
	Allocation() float64
	Accounts() map[string]domain.AccountState
	Leaderboard() []performance.Stats
}

// accountControl mutates the live account.
type accountControl interface {
	Halt(reason string) error
	Resume() error
	Mode() domain.Mode
}

// decisionReader streams recorded decisions.
type decisionReader interface {
	DecisionsAfter(index uint64) ([]history.DecisionRecord, error)
}

// Server exposes the HTTP command surface.
type Server struct {
	addr      string
	view      statusView
	control   accountControl
	decisions decisionReader
	logger    *zap.Logger
}

// NewServer wires the surface to the orchestrator view, the live account
// control and the decision history.
func NewServer(addr string, view statusView, control accountControl, decisions decisionReader, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{addr: addr, view: view, control: control, decisions: decisions, logger: logger}
}

// Start runs the HTTP server until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("GET /leaderboard", s.handleLeaderboard)
	mux.HandleFunc("GET /decisions/stream", s.handleDecisionStream)
	mux.HandleFunc("POST /mode", s.handleMode)
	mux.HandleFunc("POST /halt", s.handleHalt)
	mux.HandleFunc("POST /resume", s.handleResume)

	server := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
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

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"live":       s.view.Live(),
		"allocation": s.view.Allocation(),
		"mode":       s.control.Mode().String(),
		"accounts":   s.view.Accounts(),
	})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.view.Leaderboard())
}

// modeRequest must carry confirm=true: mode changes control real capital and
// a bare request is treated as accidental.
type modeRequest struct {
	Mode    string `json:"mode"`
	Reason  string `json:"reason,omitempty"`
	Confirm bool   `json:"confirm"`
}

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !req.Confirm {
		http.Error(w, "mode change requires confirm=true", http.StatusPreconditionRequired)
		return
	}

	mode, err := domain.ParseMode(req.Mode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// only the terminal states are directly settable; the intermediate
	// modes are derived from drawdown and cannot be forced
	switch mode {
	case domain.ModeHalted:
		reason := req.Reason
		if reason == "" {
			reason = "manual mode change"
		}
		err = s.control.Halt(reason)
	case domain.ModeNormal:
		err = s.control.Resume()
	default:
		http.Error(w, "only halted and normal can be requested", http.StatusBadRequest)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mode": s.control.Mode().String()})
}

func (s *Server) handleHalt(w http.ResponseWriter, r *http.Request) {
	if err := s.control.Halt("manual halt via api"); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mode": s.control.Mode().String()})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.control.Resume(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"mode": s.control.Mode().String()})
}

func (s *Server) handleDecisionStream(w http.ResponseWriter, r *http.Request) {
	if s.decisions == nil {
		http.Error(w, "decision history not available", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	heartbeat := time.NewTicker(20 * time.Second)
	defer heartbeat.Stop()
	poll := time.NewTicker(decisionPollInterval)
	defer poll.Stop()

	lastIndex := parseLastEventID(r.Header.Get("Last-Event-ID"), r.URL.Query().Get("last_event_id"))
	send := func() error {
		records, err := s.decisions.DecisionsAfter(lastIndex)
		if err != nil {
			return err
		}
		for _, record := range records {
			payload, err := json.Marshal(record.Decision)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "id: %d\n", record.Index)
			fmt.Fprintf(w, "event: decision\n")
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
			lastIndex = record.Index
		}
		return nil
	}

	if err := send(); err != nil {
		s.logger.Warn("decision stream initial load failed", zap.Error(err))
		http.Error(w, "failed to load decisions", http.StatusInternalServerError)
		return
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case <-poll.C:
			if err := send(); err != nil {
				s.logger.Warn("decision stream poll failed", zap.Error(err))
			}
		}
	}
}

func parseLastEventID(header, query string) uint64 {
	for _, candidate := range []string{header, query} {
		if candidate == "" {
			continue
		}
		if idx, err := strconv.ParseUint(candidate, 10, 64); err == nil {
			return idx
		}
	}
	return 0
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
