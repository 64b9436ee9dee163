// Package http exposes the meal tracker JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"mealtracker/internal/core"
	"mealtracker/internal/log"
	"mealtracker/internal/metrics"
	"mealtracker/internal/middleware/ratelimit"
	"mealtracker/internal/middleware/security"
	"mealtracker/internal/middleware/trace"
	"mealtracker/internal/services"
)

// MealAPI is the application surface the handlers depend on.
type MealAPI interface {
	ListTeamMembers(ctx context.Context) ([]core.TeamMember, error)
	GetTeamMember(ctx context.Context, id string) (core.TeamMember, error)
	CreateTeamMember(ctx context.Context, employeeID, name string) (core.TeamMember, error)
	UpdateTeamMember(ctx context.Context, id, employeeID, name string) (core.TeamMember, error)
	DeleteTeamMember(ctx context.Context, id string) error
	RecordMeal(ctx context.Context, teamMemberID, date, mealType string) (core.MealEntry, error)
	DailySummary(ctx context.Context, date string) (services.DailySummary, error)
	WeeklySummary(ctx context.Context, reference string) (services.WeeklySummary, error)
	MemberSummary(ctx context.Context, id string) (core.Stats, error)
	TeamSummary(ctx context.Context) (core.TeamStats, error)
	Ping(ctx context.Context) error
}

var _ MealAPI = (*services.MealService)(nil)

type Config struct {
	RateLimitPerMinute int
	TrustedProxies     []string
	Logger             *log.Logger
}

type Server struct {
	http.Server
	api         MealAPI
	rateLimiter *ratelimit.Limiter
	tracer      *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// http.Server.
func NewServer(addr string, api MealAPI, cfg Config) *Server {
	ips := security.NewIPExtractor()
	for _, cidr := range cfg.TrustedProxies {
		if err := ips.AddTrustedProxy(cidr); err != nil {
			log.FromContext(context.Background()).Warn("Ignoring invalid trusted proxy", "cidr", cidr, "error", err)
		}
	}

	limits := ratelimit.DefaultConfig()
	if cfg.RateLimitPerMinute > 0 {
		limits.RequestsPerMinute = cfg.RateLimitPerMinute
	}

	s := &Server{
		api:         api,
		rateLimiter: ratelimit.NewLimiter(limits),
		tracer:      trace.NewMiddleware(cfg.Logger, ips.ClientIP),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/team-members", s.handleListMembers)
	mux.HandleFunc("POST /api/team-members", s.handleCreateMember)
	mux.HandleFunc("GET /api/team-members/{id}", s.handleGetMember)
	mux.HandleFunc("PUT /api/team-members/{id}", s.handleUpdateMember)
	mux.HandleFunc("DELETE /api/team-members/{id}", s.handleDeleteMember)
	mux.HandleFunc("GET /api/team-members/{id}/stats", s.handleMemberStats)

	mux.HandleFunc("POST /api/meals", s.handleRecordMeal)
	mux.HandleFunc("GET /api/meals", s.handleDailyMeals)
	mux.HandleFunc("GET /api/meals/weekly", s.handleWeeklyTotal)
	mux.HandleFunc("GET /api/stats", s.handleTeamStats)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limited := s.rateLimiter.Middleware(ips.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, please try again later").Write(w)
	})

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.tracer.Middleware(headers.Middleware(limited(mux))),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Shutdown stops the rate limiter and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}

// handleReady fails while the store cannot be reached.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.api.Ping(ctx); err != nil {
		logger(r).WarnContext(r.Context(), "Readiness check failed", "error", err)
		ErrorResponse(http.StatusServiceUnavailable, "store unavailable").Write(w)
		return
	}
	NewJSONResponse().Body(map[string]string{"status": "ready"}).Write(w)
}
