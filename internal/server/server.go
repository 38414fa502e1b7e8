package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/ktagawa/agentq/internal/agent"
	"github.com/ktagawa/agentq/internal/config"
	"github.com/ktagawa/agentq/internal/eventbus"
	"github.com/ktagawa/agentq/internal/health"
	"github.com/ktagawa/agentq/internal/itemlog"
	"github.com/ktagawa/agentq/internal/notifier"
	"github.com/ktagawa/agentq/internal/queue"
	"github.com/ktagawa/agentq/internal/runrecord"
	"github.com/ktagawa/agentq/internal/workitem"
	"github.com/ktagawa/agentq/internal/workspace"
	"github.com/ktagawa/agentq/pkg/cerr"
	"github.com/ktagawa/agentq/pkg/clog"
)

type Server struct {
	server *http.Server
	env    *config.Env

	queue      *queue.Manager
	items      workitem.Repository
	runs       runrecord.Repository
	logs       itemlog.Repository
	agents     agent.Repository
	workspaces workspace.Repository
	subs       notifier.SubscriptionRepository
	bus        *eventbus.Bus
	monitor    *health.Monitor
	logger     *slog.Logger
}

func New(
	env *config.Env,
	q *queue.Manager,
	items workitem.Repository,
	runs runrecord.Repository,
	logs itemlog.Repository,
	agents agent.Repository,
	workspaces workspace.Repository,
	subs notifier.SubscriptionRepository,
	bus *eventbus.Bus,
	monitor *health.Monitor,
	logger *slog.Logger,
) *Server {
	return &Server{
		env:        env,
		queue:      q,
		items:      items,
		runs:       runs,
		logs:       logs,
		agents:     agents,
		workspaces: workspaces,
		subs:       subs,
		bus:        bus,
		monitor:    monitor,
		logger:     logger,
	}
}

// ListenAndServe starts the HTTP server. The provided context is the base
// context for all requests, so cancelling it also ends open event streams.
func (s *Server) ListenAndServe(ctx context.Context) error {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		// The event stream stays open for the client's lifetime; logging it
		// as an access line on close is just noise.
		r.Use(clog.SlogChiMiddleware(clog.WithChiFilter(func(req *http.Request) bool {
			return !strings.HasPrefix(req.URL.Path, "/api/events")
		})))

		r.Route("/workspaces", func(r chi.Router) {
			r.Get("/", s.handleListWorkspaces)
			r.Get("/{id}", s.handleGetWorkspace)
		})

		r.Route("/items", func(r chi.Router) {
			r.Post("/", s.handleCreateItem)
			r.Get("/", s.handleListItems)
			r.Get("/{id}", s.handleGetItem)
			r.Get("/{id}/logs", s.handleGetItemLogs)
			r.Delete("/{id}", s.handleDeleteItem)
			r.Post("/{id}/enqueue", s.handleEnqueue)
			r.Post("/{id}/cancel", s.handleCancel)
			r.Post("/{id}/prioritize", s.handlePrioritize)
			r.Post("/{id}/comment", s.handleComment)
			r.Post("/{id}/approve", s.handleApprove)
			r.Post("/{id}/reopen", s.handleReopen)
		})

		r.Route("/agents", func(r chi.Router) {
			r.Get("/", s.handleListAgents)
			r.Post("/", s.handleCreateAgent)
			r.Put("/{id}", s.handleUpdateAgent)
			r.Delete("/{id}", s.handleDeleteAgent)
			r.Post("/reorder", s.handleReorderAgents)
		})

		r.Route("/push/subscriptions", func(r chi.Router) {
			r.Post("/", s.handleSubscribePush)
			r.Delete("/", s.handleUnsubscribePush)
		})

		r.Get("/health", s.handleHealth)
		r.Post("/health/refresh", s.handleHealthRefresh)
		r.Get("/events", s.handleEvents)

		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			cerr.WriteHTTP(w, cerr.NewError(cerr.NotFound, "not found", nil))
		})
	})

	mux := http.NewServeMux()
	mux.Handle("/healthz", &HealthChecker{})
	mux.Handle("/api/", r)

	addr := net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort)
	s.logger.Info("starting server", slog.String("addr", addr))

	s.server = &http.Server{
		Addr: addr,
		Handler: h2c.NewHandler(cors.New(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"*"},
			AllowCredentials: true,
		}).Handler(mux), &http2.Server{}),
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type HealthChecker struct{}

func (hc *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
