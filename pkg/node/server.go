package node

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

/*
Server exposes the node over HTTP.

  POST   /upload        replace the active batch; body is types.UploadRequest
  GET    /file/{index}  file name, content and inclusion proof for one leaf
  DELETE /delete_all    drop the active batch
  GET    /health        active batch summary and store health

Every response carries an X-Request-ID. Errors are JSON types.ErrorResponse.
*/
type Server struct {
	node           *Node
	httpServer     *http.Server
	limiter        *rate.Limiter
	maxUploadBytes int64
}

const (
	readHeaderTimeout = 10 * time.Second
	defaultMaxUpload  = 64 << 20
)

// NewServer creates a new server instance
func NewServer(node *Node, cfg Config) *Server {
	s := &Server{
		node:           node,
		maxUploadBytes: cfg.MaxUploadBytes,
	}
	if s.maxUploadBytes <= 0 {
		s.maxUploadBytes = defaultMaxUpload
	}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/upload", s.handleUpload)
	mux.HandleFunc("/file/{index}", s.handleGetFile)
	mux.HandleFunc("/delete_all", s.handleDeleteAll)
	mux.HandleFunc("/health", s.handleHealth)

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.withRequestID(s.withLogging(s.withRateLimit(mux))),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return s
}

// Start starts the HTTP server in the background
func (s *Server) Start() error {
	go func() {
		s.node.logger.Sugar().Infow("Starting HTTP server", "address", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.node.logger.Sugar().Errorw("HTTP server error", "error", err)
		}
	}()
	return nil
}

// Stop waits for in-flight requests, up to ctx's deadline
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// GetHandler returns the HTTP handler (for testing)
func (s *Server) GetHandler() http.Handler {
	return s.httpServer.Handler
}
