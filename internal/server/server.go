package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/njathi/homework-buddy-ai/internal/models"
	"github.com/njathi/homework-buddy-ai/internal/service"
)

type contextKey string

const accountKey contextKey = "account"

type Server struct {
	addr      string
	adminUser string
	adminPass string
	log       *slog.Logger
	auth      *service.AuthService
	ledger    *service.LedgerService
	ask       *service.AskService
	payments  *service.PaymentService
	tracker   *service.TrackerService
	router    *chi.Mux
}

func NewServer(addr, adminUser, adminPass string, log *slog.Logger, auth *service.AuthService, ledger *service.LedgerService, ask *service.AskService, payments *service.PaymentService, tracker *service.TrackerService) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)

	s := &Server{
		addr:      addr,
		adminUser: adminUser,
		adminPass: adminPass,
		log:       log,
		auth:      auth,
		ledger:    ledger,
		ask:       ask,
		payments:  payments,
		tracker:   tracker,
		router:    r,
	}

	r.Post("/webhook/mpesa", s.handleMpesaCallback)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Post("/api/auth/signup", s.handleSignup)
	r.Post("/api/auth/login", s.handleLogin)

	r.Group(func(protected chi.Router) {
		protected.Use(s.authMiddleware())
		protected.Get("/api/user/credits", s.handleCredits)
		protected.Get("/api/user/subscription", s.handleGetSubscription)
		protected.Post("/api/user/subscription", s.handleSetSubscription)
		protected.Get("/api/user/history", s.handleHistory)
		protected.Post("/api/promo", s.handleApplyPromo)
		protected.Post("/api/payments/topup", s.handleTopUp)
		protected.Post("/api/ask", s.handleAsk)
	})

	r.Group(func(admin chi.Router) {
		admin.Use(s.basicAuthMiddleware())
		admin.Get("/admin/intents", s.handleListIntents)
		admin.Get("/admin/intents/{id}", s.handleGetIntent)
	})

	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("server shutdown error", "err", err)
		}
	}()

	s.log.Info("api server listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api listen: %w", err)
	}
	return nil
}

// authMiddleware resolves the bearer token to an account and stores it on
// the request context. Handlers past this point trust the identity as given.
func (s *Server) authMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			acc, err := s.auth.Authenticate(r.Context(), strings.TrimSpace(token))
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), accountKey, acc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || user != s.adminUser || pass != s.adminPass {
				w.Header().Set("WWW-Authenticate", `Basic realm="homework-buddy"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func accountFrom(r *http.Request) *models.Account {
	acc, _ := r.Context().Value(accountKey).(*models.Account)
	return acc
}
