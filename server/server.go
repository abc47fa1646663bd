// Package server exposes meal analysis and retrospective parsing over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"mealagent"
	"mealagent/storage"
)

const defaultMaxBodyBytes = 20 << 20

// Analyzer runs one analysis and streams its progress.
type Analyzer interface {
	Analyze(ctx context.Context, req mealagent.AnalysisRequest) (mealagent.AnalysisResult, error)
	Subscribe() (<-chan mealagent.PipelineState, func())
}

type RetrospectiveParser interface {
	ParseMeals(ctx context.Context, description string, windows []mealagent.MealWindow) []mealagent.MealRecord
}

type RecordPublisher interface {
	PublishRecords(ctx context.Context, records []mealagent.MealRecord) error
}

type Options struct {
	// NewAnalyzer is called once per analyze request so progress streams never mix.
	NewAnalyzer func() Analyzer
	Retro       RetrospectiveParser
	Records     RecordPublisher
	// ResolveImage turns an image_ref into a source. Requests with a reference are
	// rejected when it is nil.
	ResolveImage func(ref string) (storage.ImageSource, error)
	MaxBodyBytes int64
}

type Server struct {
	opts Options
}

func New(opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	return &Server{opts: opts}
}

// Routes builds the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", s.handleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/analyze", s.handleAnalyze)
		r.Post("/retrospective", s.handleRetrospective)
	})
	return r
}

// ListenAndServe runs the server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("SERVER: Listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("SERVER: Shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// analyzeRequest is the wire form of an analysis request. The image is either inline
// (base64 in JSON) or referenced.
type analyzeRequest struct {
	mealagent.AnalysisRequest
	ImageRef string `json:"image_ref,omitempty"`
}

type retrospectiveRequest struct {
	Description string                 `json:"description"`
	Windows     []mealagent.MealWindow `json:"windows"`
}

type retrospectiveResponse struct {
	Meals []mealagent.MealRecord `json:"meals"`
}

type errorResponse struct {
	Error string         `json:"error"`
	Stage mealagent.Tool `json:"stage,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	req, err := s.decodeAnalyze(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	analyzer := s.opts.NewAnalyzer()
	if r.URL.Query().Get("stream") == "true" {
		s.streamAnalyze(w, r, analyzer, req)
		return
	}

	res, err := analyzer.Analyze(r.Context(), req)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) decodeAnalyze(w http.ResponseWriter, r *http.Request) (mealagent.AnalysisRequest, error) {
	var in analyzeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)).Decode(&in); err != nil {
		return mealagent.AnalysisRequest{}, fmt.Errorf("invalid request body: %w", err)
	}

	req := in.AnalysisRequest
	if in.ImageRef != "" {
		if len(req.Image) > 0 {
			return req, errors.New("image and image_ref are mutually exclusive")
		}
		if s.opts.ResolveImage == nil {
			return req, errors.New("image_ref is not supported by this server")
		}
		src, err := s.opts.ResolveImage(in.ImageRef)
		if err != nil {
			return req, err
		}
		img, err := src.Load(r.Context())
		if err != nil {
			return req, fmt.Errorf("failed to load %s: %w", in.ImageRef, err)
		}
		req.Image = img
	}

	if len(req.Image) > 0 && req.ImageMIME == "" {
		req.ImageMIME = storage.DetectMIME(req.Image)
	}
	if len(req.Image) == 0 && strings.TrimSpace(req.Transcript) == "" {
		return req, mealagent.ErrEmptyRequest
	}
	return req, nil
}

type outcome struct {
	result mealagent.AnalysisResult
	err    error
}

// streamAnalyze writes server-sent events: "state" for every observed pipeline state,
// then exactly one "result" or "error".
func (s *Server) streamAnalyze(w http.ResponseWriter, r *http.Request, analyzer Analyzer, req mealagent.AnalysisRequest) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	send := func(event string, v any) {
		data, err := json.Marshal(v)
		if err != nil {
			slog.Error("SERVER: Failed to encode event", "event", event, "error", err)
			return
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
		if err := rc.Flush(); err != nil {
			slog.Debug("SERVER: Flush not supported", "error", err)
		}
	}

	states, unsubscribe := analyzer.Subscribe()
	defer unsubscribe()

	done := make(chan outcome, 1)
	go func() {
		res, err := analyzer.Analyze(r.Context(), req)
		done <- outcome{result: res, err: err}
	}()

	for {
		select {
		case st := <-states:
			send("state", st)
		case out := <-done:
			// the terminal state is published before Analyze returns
			select {
			case st := <-states:
				send("state", st)
			default:
			}
			if out.err != nil {
				send("error", errorBody(out.err))
				return
			}
			send("result", out.result)
			return
		}
	}
}

func (s *Server) handleRetrospective(w http.ResponseWriter, r *http.Request) {
	var in retrospectiveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if strings.TrimSpace(in.Description) == "" {
		writeError(w, http.StatusBadRequest, errors.New("description is required"))
		return
	}
	if len(in.Windows) == 0 {
		writeError(w, http.StatusBadRequest, errors.New("at least one meal window is required"))
		return
	}

	meals := s.opts.Retro.ParseMeals(r.Context(), in.Description, in.Windows)

	if s.opts.Records != nil && len(meals) > 0 {
		if err := s.opts.Records.PublishRecords(r.Context(), meals); err != nil {
			slog.Warn("SERVER: Failed to publish meal records", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, retrospectiveResponse{Meals: meals})
}

// statusFor maps analysis errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, mealagent.ErrEmptyRequest):
		return http.StatusBadRequest
	case errors.Is(err, mealagent.ErrEmptyResult):
		return http.StatusUnprocessableEntity
	case errors.Is(err, mealagent.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	default:
		return http.StatusBadGateway
	}
}

func errorBody(err error) errorResponse {
	body := errorResponse{Error: err.Error()}
	var fatal *mealagent.FatalInferenceError
	if errors.As(err, &fatal) {
		body.Stage = fatal.Stage
	}
	return body
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorBody(err))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("SERVER: Failed to encode response", "error", err)
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Info("SERVER: Request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
