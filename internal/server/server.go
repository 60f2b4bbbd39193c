package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cwbudde/metagen/internal/opt"
	"github.com/cwbudde/metagen/internal/problems"
	"github.com/cwbudde/metagen/internal/store"
)

// Server represents the HTTP server
type Server struct {
	jobManager *JobManager
	addr       string
	server     *http.Server

	checkpointStore store.Store
	traceDir        string

	// jobsCtx is the parent of every job context; Shutdown cancels it.
	jobsCtx    context.Context
	cancelJobs context.CancelFunc
}

// Option configures a Server.
type Option func(*Server)

// WithCheckpointStore enables checkpoints and resume. Traces are written
// below traceDir when it is not empty.
func WithCheckpointStore(s store.Store, traceDir string) Option {
	return func(srv *Server) {
		srv.checkpointStore = s
		srv.traceDir = traceDir
	}
}

// NewServer creates a new HTTP server
func NewServer(addr string, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		jobManager: NewJobManager(),
		addr:       addr,
		jobsCtx:    ctx,
		cancelJobs: cancel,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.loggingMiddleware)
	r.Use(s.corsMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/problems", s.handleListProblems)
		r.Get("/algorithms", s.handleListAlgorithms)

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", s.handleCreateJob)
			r.Get("/", s.handleListJobs)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetJobStatus)
				r.Get("/status", s.handleGetJobStatus)
				r.Get("/stream", s.handleJobStream)
				r.Get("/trace", s.handleGetTrace)
				r.Post("/cancel", s.handleCancelJob)
				r.Post("/resume", s.handleResumeJob)
			})
		})

		r.Route("/checkpoints", func(r chi.Router) {
			r.Get("/", s.handleListCheckpoints)
			r.Get("/{id}", s.handleGetCheckpoint)
			r.Delete("/{id}", s.handleDeleteCheckpoint)
		})
	})
	return r
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("Starting HTTP server", "addr", s.addr, "checkpoints", s.checkpointStore != nil)
	return s.server.ListenAndServe()
}

// Shutdown cancels running jobs and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server", "running_jobs", len(s.jobManager.GetRunningJobs()))
	s.cancelJobs()
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) handleListProblems(w http.ResponseWriter, r *http.Request) {
	type problemInfo struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	infos := []problemInfo{}
	for _, name := range problems.Names() {
		p, _ := problems.Get(name)
		infos = append(infos, problemInfo{Name: p.Name, Description: p.Description})
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleListAlgorithms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, opt.Algorithms())
}

// handleCreateJob handles POST /api/v1/jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var config JobConfig
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if err := normalizeJobConfig(&config); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	job := s.startJob(config, nil, "")
	writeJSON(w, http.StatusCreated, job)
}

// startJob registers a job and runs it in the background.
func (s *Server) startJob(config JobConfig, incumbent *store.Checkpoint, resumedFrom string) Job {
	job := s.jobManager.CreateJob(config)
	ctx, cancel := context.WithCancel(s.jobsCtx)
	s.jobManager.UpdateJob(job.ID, func(j *Job) {
		j.cancel = cancel
		j.ResumedFrom = resumedFrom
		if incumbent != nil {
			best := incumbent.Best
			j.incumbent = &best
			j.baseIterations, j.Iterations = incumbent.Iteration, incumbent.Iteration
			j.baseEvaluations, j.Evaluations = incumbent.Evaluations, incumbent.Evaluations
		}
	})

	go func() {
		defer cancel()
		if err := runJob(ctx, s.jobManager, s.checkpointStore, s.traceDir, job.ID); err != nil {
			slog.Debug("Job ended with error", "job_id", job.ID, "error", err)
		}
	}()

	job, _ = s.jobManager.GetJob(job.ID)
	return job
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// handleGetJobStatus handles GET /api/v1/jobs/{id}/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request) {
	job, exists := s.jobManager.GetJob(chi.URLParam(r, "id"))
	if !exists {
		writeError(w, http.StatusNotFound, errors.New("job not found"))
		return
	}

	var elapsed time.Duration
	if job.EndTime != nil {
		elapsed = job.EndTime.Sub(job.StartTime)
	} else {
		elapsed = time.Since(job.StartTime)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":             job.ID,
		"state":          job.State,
		"config":         job.Config,
		"best":           job.Best,
		"bestFitness":    job.BestFitness(),
		"initialFitness": job.InitialFitness,
		"iterations":     job.Iterations,
		"evaluations":    job.Evaluations,
		"elapsed":        elapsed.Seconds(),
		"eps":            evaluationsPerSecond(job),
		"startTime":      job.StartTime,
		"endTime":        job.EndTime,
		"error":          job.Error,
		"resumedFrom":    job.ResumedFrom,
	})
}

// handleCancelJob handles POST /api/v1/jobs/{id}/cancel
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, exists := s.jobManager.GetJob(id)
	if !exists {
		writeError(w, http.StatusNotFound, errors.New("job not found"))
		return
	}
	if !s.jobManager.CancelJob(id) {
		writeError(w, http.StatusConflict, fmt.Errorf("job is %s", job.State))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "cancelling"})
}

// handleResumeJob handles POST /api/v1/jobs/{id}/resume. It starts a new
// job seeded with the checkpoint of job id. An optional JSON body overrides
// the algorithm and budget; the problem must stay the same.
func (s *Server) handleResumeJob(w http.ResponseWriter, r *http.Request) {
	if s.checkpointStore == nil {
		writeError(w, http.StatusNotImplemented, errors.New("checkpoints are disabled"))
		return
	}
	id := chi.URLParam(r, "id")
	checkpoint, err := s.checkpointStore.LoadCheckpoint(id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	config := checkpoint.Config
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid JSON: %w", err))
		return
	}
	if err := checkpoint.IsCompatible(config); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	if err := normalizeJobConfig(&config); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	slog.Info("Resuming job", "from", id, "best_fitness", checkpoint.Best.Fitness, "iteration", checkpoint.Iteration)
	job := s.startJob(config, checkpoint, id)
	writeJSON(w, http.StatusCreated, job)
}

// handleGetTrace handles GET /api/v1/jobs/{id}/trace
func (s *Server) handleGetTrace(w http.ResponseWriter, r *http.Request) {
	if s.traceDir == "" {
		writeError(w, http.StatusNotFound, errors.New("traces are disabled"))
		return
	}
	reader, err := store.NewTraceReader(s.traceDir, chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer reader.Close()

	entries, err := reader.ReadAll()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []store.TraceEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleListCheckpoints(w http.ResponseWriter, r *http.Request) {
	if s.checkpointStore == nil {
		writeJSON(w, http.StatusOK, []store.CheckpointInfo{})
		return
	}
	infos, err := s.checkpointStore.ListCheckpoints()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

func (s *Server) handleGetCheckpoint(w http.ResponseWriter, r *http.Request) {
	if s.checkpointStore == nil {
		writeError(w, http.StatusNotFound, errors.New("checkpoints are disabled"))
		return
	}
	checkpoint, err := s.checkpointStore.LoadCheckpoint(chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, checkpoint)
}

func (s *Server) handleDeleteCheckpoint(w http.ResponseWriter, r *http.Request) {
	if s.checkpointStore == nil {
		writeError(w, http.StatusNotFound, errors.New("checkpoints are disabled"))
		return
	}
	err := s.checkpointStore.DeleteCheckpoint(chi.URLParam(r, "id"))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"duration", time.Since(start),
		)
	})
}
