package admin

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mnohosten/laura-mtm/pkg/node"
)

// Server is the administrative HTTP surface for one node.Context
// (§6.4): node add/drop/recover/poll, cluster/node state, make-table-
// local, lock-graph dump, fault injection, and CSN/snapshot
// introspection.
type Server struct {
	config    Config
	nc        *node.Context
	router    *chi.Mux
	httpSrv   *http.Server
	startTime time.Time
	watchHub  *watchHub
}

// New builds a Server for nc. Call Start to begin serving.
func New(config Config, nc *node.Context) *Server {
	s := &Server{
		config:    config,
		nc:        nc,
		router:    chi.NewRouter(),
		startTime: time.Now(),
		watchHub:  newWatchHub(nc),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpSrv = &http.Server{
		Addr:         config.Addr,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s
}

// Router exposes the underlying chi.Mux, mainly for tests that prefer
// httptest.NewServer(s.Router()) over a real listener.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	if s.config.EnableLogging {
		s.router.Use(middleware.Logger)
	}

	if s.config.EnableCORS {
		s.router.Use(s.corsMiddleware)
	}

	s.router.Use(s.requestSizeLimitMiddleware)
	s.router.Use(middleware.Timeout(30 * time.Second))
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := "*"
		if len(s.config.AllowedOrigins) > 0 {
			origin = s.config.AllowedOrigins[0]
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestSizeLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.MaxRequestSize > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) setupRoutes() {
	s.router.Route("/v1", func(r chi.Router) {
		r.Route("/nodes", func(r chi.Router) {
			r.Post("/", s.handleAddNode)
			r.Get("/", s.handleGetNodesState)
			r.Get("/{id}", s.handlePollNode)
			r.Delete("/{id}", s.handleDropNode)
			r.Post("/{id}/recover", s.handleRecoverNode)
		})

		r.Get("/cluster", s.handleGetClusterState)
		r.Get("/cluster/watch", s.handleWatch)

		r.Route("/tables", func(r chi.Router) {
			r.Post("/{name}/local", s.handleMakeTableLocal)
		})

		r.Get("/lock-graph", s.handleDumpLockGraph)

		if s.nc.Config().EnableFaultInjection {
			r.Post("/faults/2pc", s.handleInject2PC)
		}

		r.Get("/csn", s.handleGetCSN)
		r.Get("/snapshot", s.handleGetSnapshot)
		r.Get("/metrics", s.handleMetrics)
	})
}

// Start begins serving on config.Addr and blocks until Shutdown is
// called or an unrecoverable error occurs.
func (s *Server) Start() error {
	go s.watchHub.run()

	log.Printf("admin: listening on %s", s.config.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Printf("admin: received signal %v, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(ctx)
	}
}

// Shutdown gracefully stops the HTTP server and the watch hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.watchHub.stop()
	return s.httpSrv.Shutdown(ctx)
}
