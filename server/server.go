package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrEthical07/otpAuth"
	"github.com/MrEthical07/otpAuth/metrics/export/prometheus"
	"github.com/MrEthical07/otpAuth/middleware"
)

const maxBodyBytes = 1 << 20

// Config controls the HTTP surface. Zero values fall back to the defaults
// documented on each field.
type Config struct {
	// Addr defaults to ":5000".
	Addr string
	// FrontendOrigin is the only origin allowed for credentialed CORS requests.
	FrontendOrigin string
	CookieSecure   bool
	CookieDomain   string
	RateLimit      middleware.RateLimitConfig
	// ShutdownTimeout defaults to 10s.
	ShutdownTimeout   time.Duration
	ReadHeaderTimeout time.Duration
}

// Server owns the routes for one Engine.
type Server struct {
	cfg     Config
	engine  *otpAuth.Engine
	cookies middleware.Cookies
	limiter *middleware.Limiter
	metrics http.Handler
	logger  *slog.Logger
	handler http.Handler
}

// New wires every route. logger may be nil.
func New(engine *otpAuth.Engine, cfg Config, logger *slog.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":5000"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.ReadHeaderTimeout <= 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}
	if cfg.RateLimit.RequestsPerSecond <= 0 {
		cfg.RateLimit = middleware.DefaultRateLimitConfig()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Server{
		cfg:     cfg,
		engine:  engine,
		cookies: middleware.NewCookies(engine, cfg.CookieSecure, cfg.CookieDomain),
		limiter: middleware.NewLimiter(cfg.RateLimit),
		metrics: prometheus.NewPrometheusExporter(engine).Handler(),
		logger:  logger,
	}
	s.handler = s.routes()
	return s
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	guard := middleware.Guard(s.engine, s.cookies)
	csrf := middleware.RequireCSRF(s.engine)
	admin := middleware.RequireRole(otpAuth.RoleAdmin)

	public := func(h http.HandlerFunc) http.Handler { return h }
	authed := func(h http.HandlerFunc) http.Handler { return middleware.Chain(h, guard) }
	protected := func(h http.HandlerFunc) http.Handler { return middleware.Chain(h, guard, csrf) }

	mux.Handle("POST /api/auth/register", public(s.register))
	mux.Handle("POST /api/auth/verify/{token}", public(s.confirmRegistration))
	mux.Handle("POST /api/auth/login", public(s.login))
	mux.Handle("POST /api/auth/verify-otp", public(s.verifyOTP))
	mux.Handle("POST /api/auth/resend-verification", public(s.resendOTP))
	mux.Handle("POST /api/auth/refresh-token", public(s.refresh))
	mux.Handle("POST /api/auth/refresh-csrf", authed(s.refreshCSRF))
	mux.Handle("POST /api/auth/logout", protected(s.logout))
	mux.Handle("POST /api/auth/verify-email/{token}", public(s.verifyEmail))

	mux.Handle("GET /api/users/me", authed(s.me))
	mux.Handle("GET /api/users/check-username", authed(s.checkUsername))
	mux.Handle("PATCH /api/users/username", protected(s.updateUsername))
	mux.Handle("POST /api/users/verify-email", protected(s.requestEmailVerification))

	mux.Handle("POST /api/password/forget", public(s.forgetPassword))
	mux.Handle("POST /api/password/reset/{token}", public(s.resetPassword))
	mux.Handle("PATCH /api/password/update", protected(s.updatePassword))

	mux.Handle("GET /api/admin/users", middleware.Chain(http.HandlerFunc(s.listUsers), guard, admin))
	mux.Handle("PATCH /api/admin/users/{userId}/role", middleware.Chain(http.HandlerFunc(s.updateRole), guard, csrf, admin))

	mux.HandleFunc("GET /healthz", s.healthz)
	mux.Handle("GET /metrics", s.metrics)

	api := middleware.Chain(mux, middleware.RateLimit(s.limiter))
	root := http.NewServeMux()
	root.Handle("/api/", api)
	root.Handle("/", mux)

	return middleware.Chain(root,
		middleware.Logger(s.logger),
		middleware.CORS(s.cfg.FrontendOrigin),
		middleware.RequestContext,
	)
}

// Run serves on cfg.Addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("http server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		s.logger.Info("http server shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	latency, err := s.engine.Ping(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "health check failed", "error", err)
		middleware.WriteJSON(w, http.StatusServiceUnavailable, middleware.Envelope{
			Status:  "error",
			Message: "store unavailable",
			Code:    "STORE_UNAVAILABLE",
		})
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"latencyMs": float64(latency) / float64(time.Millisecond),
	})
}

type successBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func respond(w http.ResponseWriter, status int, message string, data any) {
	middleware.WriteJSON(w, status, successBody{Status: "success", Message: message, Data: data})
}

var errInvalidBody = &otpAuth.Error{Kind: otpAuth.KindValidation, Code: "INVALID_BODY", Message: "Invalid request body."}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		e := *errInvalidBody
		e.Err = err
		return &e
	}
	return nil
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	if otpAuth.KindOf(err) == otpAuth.KindInfrastructure {
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	middleware.WriteError(w, err)
}

func session(r *http.Request) otpAuth.SessionContext {
	sc, _ := middleware.SessionFromContext(r.Context())
	return sc
}
