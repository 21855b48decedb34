// Package launcher implements the loopback HTTP service that starts donation
// workers and hands their results back to a polling client.
package launcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Klingon-tech/night-consolidator/internal/donation"
	klog "github.com/Klingon-tech/night-consolidator/internal/log"
)

// Defaults for the launcher service.
const (
	DefaultAddr       = "127.0.0.1:3002"
	DefaultCORSOrigin = "http://localhost:3000"

	ResultFileName = "consolidation-result.json"
	BatchFileName  = "batch-data.json"
)

// maxBodySize is the maximum allowed request body size (1 MB).
const maxBodySize = 1 << 20

// Config holds launcher server settings.
type Config struct {
	Addr string
	// CORSOrigins lists origins allowed to call the service. "*" allows any.
	CORSOrigins []string
	// WorkDir holds the batch input and result files.
	WorkDir string
	Spawner Spawner
}

// Server is the launcher HTTP server.
type Server struct {
	addr        string
	corsOrigins []string
	resultFile  string
	batchFile   string
	spawner     Spawner
	validate    *validator.Validate

	// launchMu serializes launches so file resets never interleave.
	launchMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	server   *http.Server
	logger   zerolog.Logger
	ln       net.Listener
	done     chan struct{}
	stopOnce sync.Once
}

// singleRequest is the body of POST /consolidate.
type singleRequest struct {
	Source       string `json:"source" validate:"required"`
	Dest         string `json:"dest" validate:"required"`
	Signature    string `json:"signature" validate:"required,hexadecimal"`
	SessionLabel string `json:"sessionLabel,omitempty"`
}

// batchRequest is the body of POST /consolidate-batch.
type batchRequest struct {
	Dest         string          `json:"dest" validate:"required"`
	AddressBatch []donation.Item `json:"addressBatch" validate:"required,min=1,dive"`
	SessionLabel string          `json:"sessionLabel,omitempty"`
}

// launchResponse is returned by both launch endpoints.
type launchResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// resultResponse is returned by GET /result.
type resultResponse struct {
	Ready bool            `json:"ready"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// New creates a launcher server. The previous result file is removed so a
// stale result is never served.
func New(cfg Config) (*Server, error) {
	if cfg.Spawner == nil {
		return nil, fmt.Errorf("launcher needs a spawner")
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if err := os.MkdirAll(cfg.WorkDir, 0700); err != nil {
		return nil, fmt.Errorf("create launcher work dir: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:        cfg.Addr,
		corsOrigins: cfg.CORSOrigins,
		resultFile:  filepath.Join(cfg.WorkDir, ResultFileName),
		batchFile:   filepath.Join(cfg.WorkDir, BatchFileName),
		spawner:     cfg.Spawner,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		ctx:         ctx,
		cancel:      cancel,
		logger:      klog.WithComponent("launcher"),
		done:        make(chan struct{}),
	}
	if err := s.resetResult(); err != nil {
		cancel()
		return nil, err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/consolidate", s.handleConsolidate)
	mux.HandleFunc("/consolidate-batch", s.handleConsolidateBatch)
	mux.HandleFunc("/result", s.handleResult)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/shutdown", s.handleShutdown)
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{
		Handler:      s.withCORS(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s, nil
}

// Start begins listening and serving in a background goroutine.
// It returns immediately after the listener is bound.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("launcher listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Launcher server error")
		}
	}()

	s.logger.Info().Str("addr", s.Addr()).Str("result_file", s.resultFile).Msg("Launcher listening")
	return nil
}

// Addr returns the listener address (useful when bound to :0).
func (s *Server) Addr() string {
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.addr
}

// ResultFile is the path workers write their result to.
func (s *Server) ResultFile() string {
	return s.resultFile
}

// Done is closed once the server has stopped.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Stop gracefully shuts down the server and cancels inline workers.
func (s *Server) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = s.server.Shutdown(ctx)
		s.cancel()
		close(s.done)
		s.logger.Info().Msg("Launcher stopped")
	})
	return err
}

func (s *Server) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req singleRequest
	if err := s.decode(r, &req); err != nil {
		s.logger.Debug().Err(err).Msg("Rejected single launch")
		writeJSON(w, http.StatusBadRequest, launchResponse{Error: "Missing parameters"})
		return
	}

	job := Job{
		Destination:  req.Dest,
		Items:        []donation.Item{{SourceAddress: req.Source, Signature: req.Signature}},
		Single:       true,
		ResultFile:   s.resultFile,
		SessionLabel: req.SessionLabel,
	}
	if err := s.launch(job); err != nil {
		writeJSON(w, http.StatusInternalServerError, launchResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, launchResponse{Success: true, Message: "Terminal launched"})
}

func (s *Server) handleConsolidateBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req batchRequest
	if err := s.decode(r, &req); err != nil {
		s.logger.Debug().Err(err).Msg("Rejected batch launch")
		writeJSON(w, http.StatusBadRequest, launchResponse{Error: "Missing or invalid parameters"})
		return
	}

	job := Job{
		Destination:  req.Dest,
		Items:        req.AddressBatch,
		BatchFile:    s.batchFile,
		ResultFile:   s.resultFile,
		SessionLabel: req.SessionLabel,
	}
	if err := s.launch(job); err != nil {
		writeJSON(w, http.StatusInternalServerError, launchResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, launchResponse{Success: true, Message: "Batch terminal launched"})
}

// launch resets the result file, writes the batch input and starts a worker.
func (s *Server) launch(job Job) error {
	s.launchMu.Lock()
	defer s.launchMu.Unlock()

	if !job.Single {
		if err := donation.WriteResult(job.BatchFile, job.Items); err != nil {
			s.logger.Error().Err(err).Msg("Failed to write batch file")
			return err
		}
	}
	if err := s.resetResult(); err != nil {
		s.logger.Error().Err(err).Msg("Failed to reset result file")
		return err
	}
	if err := s.spawner.Spawn(s.ctx, job); err != nil {
		s.logger.Error().Err(err).Msg("Failed to start worker")
		return err
	}
	s.logger.Info().Bool("single", job.Single).Int("items", len(job.Items)).Msg("Worker launched")
	return nil
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	data, err := os.ReadFile(s.resultFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn().Err(err).Msg("Failed to read result file")
		}
		writeJSON(w, http.StatusOK, resultResponse{Ready: false})
		return
	}
	if !json.Valid(data) {
		writeJSON(w, http.StatusOK, resultResponse{Ready: false})
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{Ready: true, Data: data})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, launchResponse{Success: true, Message: "Shutting down..."})
	s.logger.Info().Msg("Shutdown requested")
	go func() {
		time.Sleep(100 * time.Millisecond)
		if err := s.Stop(); err != nil {
			s.logger.Warn().Err(err).Msg("Launcher shutdown")
		}
	}()
}

// decode reads a size-limited JSON body into v and validates it.
func (s *Server) decode(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("parse body: %w", err)
	}
	return s.validate.Struct(v)
}

func (s *Server) resetResult() error {
	if err := os.Remove(s.resultFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove old result: %w", err)
	}
	return nil
}

// withCORS sets CORS headers and answers preflight requests.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.setCORSHeaders(w, r)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// setCORSHeaders adds CORS headers based on the configured origins.
func (s *Server) setCORSHeaders(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.corsOrigins) == 0 {
		return
	}
	for _, o := range s.corsOrigins {
		if o == "*" || o == origin {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
