package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/bimaindrawans/binance-algo/internal/domain"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// StateReader is the read side of the position manager.
type StateReader interface {
	Snapshot() domain.AccountSnapshot
	OpenPositions() []domain.Position
	LastPrice(symbol string) (float64, bool)
}

type Server struct {
	router  *mux.Router
	server  *http.Server
	state   StateReader
	journal domain.TradeJournal
	metrics http.Handler
	symbols []string
	dryRun  bool
	started time.Time
	logger  *zap.Logger
}

type Options struct {
	Port        int
	Symbols     []string
	DryRun      bool
	CORSOrigins []string
	// Metrics is mounted on /metrics when set.
	Metrics http.Handler
}

func NewServer(opts Options, state StateReader, journal domain.TradeJournal, logger *zap.Logger) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		state:   state,
		journal: journal,
		metrics: opts.Metrics,
		symbols: opts.Symbols,
		dryRun:  opts.DryRun,
		started: time.Now(),
		logger:  logger.With(zap.String("component", "web")),
	}
	s.routes()

	var h http.Handler = s.router
	if len(opts.CORSOrigins) > 0 {
		h = handlers.CORS(
			handlers.AllowedOrigins(opts.CORSOrigins),
			handlers.AllowedMethods([]string{http.MethodGet}),
		)(h)
	}
	h = handlers.RecoveryHandler(handlers.RecoveryLogger(zap.NewStdLog(s.logger)))(h)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/positions", s.handlePositions).Methods(http.MethodGet)
	api.HandleFunc("/trades", s.handleTrades).Methods(http.MethodGet)
}

// Handler returns the full handler chain.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Run serves until ctx is cancelled, then shuts down with a 5s grace period.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
