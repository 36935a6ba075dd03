package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/specialistvlad/pipegrid/internal/model"
)

const shutdownTimeout = 5 * time.Second

// instanceStatus is one entry of the /status response.
type instanceStatus struct {
	ID       string             `json:"id"`
	Status   model.Status       `json:"status"`
	Reason   model.SkipReason   `json:"reason,omitempty"`
	Agent    string             `json:"agent,omitempty"`
	Started  time.Time          `json:"started_at,omitzero"`
	Finished time.Time          `json:"finished_at,omitzero"`
	Error    string             `json:"error,omitempty"`
	Steps    []model.StepResult `json:"steps,omitempty"`
}

type statusResponse struct {
	RunID     string           `json:"run_id"`
	Running   bool             `json:"running"`
	Instances []instanceStatus `json:"instances"`
}

// Handler returns the control server routes.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/health", a.healthHandler)
	r.Get("/status", a.statusHandler)
	r.Post("/abort", a.abortHandler)
	r.Method(http.MethodGet, "/metrics", a.metrics.Handler())
	return r
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (a *App) statusHandler(w http.ResponseWriter, r *http.Request) {
	records, err := a.store.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	a.mu.Lock()
	running := a.sched != nil
	a.mu.Unlock()

	resp := statusResponse{RunID: a.runID, Running: running, Instances: make([]instanceStatus, 0, len(records))}
	for _, rec := range records {
		st := instanceStatus{
			ID:       rec.ID.String(),
			Status:   rec.Status,
			Reason:   rec.Reason,
			Agent:    rec.Agent,
			Started:  rec.Started,
			Finished: rec.Finished,
			Steps:    rec.Steps,
		}
		if rec.Err != nil {
			st.Error = rec.Err.Error()
		}
		resp.Instances = append(resp.Instances, st)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		a.logger.Warn("Failed to write status response.", "error", err)
	}
}

func (a *App) abortHandler(w http.ResponseWriter, r *http.Request) {
	if !a.Abort() {
		http.Error(w, "no run in progress", http.StatusConflict)
		return
	}
	a.logger.Warn("🛑 Abort requested.", "remote_addr", r.RemoteAddr)
	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintln(w, "aborting")
}

// startServer binds addr and serves the control routes in the background.
func (a *App) startServer(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to start control server: %w", err)
	}
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	a.mu.Lock()
	a.server = srv
	a.mu.Unlock()

	go func() {
		a.logger.Info("🩺 Control server starting", "address", fmt.Sprintf("http://%s", ln.Addr()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Control server failed unexpectedly", "error", err)
		}
	}()
	return nil
}

func (a *App) closeServer(ctx context.Context) {
	a.mu.Lock()
	srv := a.server
	a.server = nil
	a.mu.Unlock()
	if srv == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	a.logger.Debug("Shutting down control server...")
	if err := srv.Shutdown(ctx); err != nil {
		a.logger.Error("Control server shutdown failed", "error", err)
		return
	}
	a.logger.Debug("Control server shut down gracefully.")
}
