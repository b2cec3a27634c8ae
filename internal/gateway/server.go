// Package gateway owns the HTTP surface of the voice service: the
// WebSocket relay and telephony endpoints, token issuance, health and
// admin endpoints, and the metrics listener.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/a7isss/hana-voice-saas/internal/auth"
	"github.com/a7isss/hana-voice-saas/internal/config"
	"github.com/a7isss/hana-voice-saas/internal/observability"
	"github.com/a7isss/hana-voice-saas/internal/ratelimit"
	"github.com/a7isss/hana-voice-saas/internal/sessions"
	"github.com/a7isss/hana-voice-saas/internal/speech"
	"github.com/a7isss/hana-voice-saas/internal/survey"
	"github.com/a7isss/hana-voice-saas/pkg/models"
)

// transcoder is the audio conversion surface the handlers need.
type transcoder interface {
	ToCanonical(ctx context.Context, data []byte) ([]byte, error)
	FromCanonical(ctx context.Context, data []byte) ([]byte, error)
	Available(ctx context.Context) bool
}

// submitter delivers a completed questionnaire.
type submitter interface {
	Submit(ctx context.Context, sess *models.Session, now time.Time) error
}

// Deps carries the collaborators the server routes traffic through.
type Deps struct {
	Tokens     *auth.TokenService
	Limiter    *ratelimit.Limiter
	Registry   *sessions.Registry
	Transcoder transcoder
	Speech     speech.Engine
	Survey     *survey.Engine
	Submitter  submitter
	Metrics    *observability.Metrics
	Logger     *slog.Logger
}

// Server hosts every endpoint on a single mux.
type Server struct {
	config *config.Config
	deps   Deps
	logger *slog.Logger

	httpServer   *http.Server
	httpListener net.Listener
	startTime    time.Time
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	return &Server{
		config:    cfg,
		deps:      deps,
		logger:    deps.Logger.With("component", "gateway"),
		startTime: time.Now(),
	}
}

// Start binds the listener and serves until Stop is called.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.HTTPPort)
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/auth/token", s.handleAuthToken)
	mux.HandleFunc("/admin/sessions", s.requireAPISecret(s.handleAdminSessions))
	mux.HandleFunc("/admin/health", s.requireAPISecret(s.handleAdminHealth))

	for _, ep := range wsEndpoints {
		mux.Handle(ep.path, s.newWSHandler(ep))
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gateway: listen: %w", err)
	}

	s.httpServer = server
	s.httpListener = listener

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.logger.Info("gateway listening", "addr", listener.Addr().String())
	return nil
}

// Addr returns the bound listener address, for tests that start on
// port zero.
func (s *Server) Addr() string {
	if s.httpListener == nil {
		return ""
	}
	return s.httpListener.Addr().String()
}

// Stop drains in-flight requests and closes the listener.
func (s *Server) Stop(ctx context.Context) {
	if s.httpServer == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("http shutdown error", "error", err)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "Arabic Healthcare Voice Service",
		"status":  "active",
		"capabilities": []string{
			"Arabic speech recognition",
			"Arabic text-to-speech",
			"Healthcare questionnaire processing",
			"Real-time voice interactions",
		},
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

// handleAuthToken exchanges the static API secret for a session token.
func (s *Server) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	secret := auth.BearerToken(r.Header.Get("Authorization"), "")
	if !auth.VerifyAPISecret(secret, s.config.Auth.APISecret) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	// No point issuing a token the connect-time capacity check would
	// immediately reject.
	if stats := s.deps.Registry.Stats(); stats.ActiveCount >= stats.MaxSessions {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "maximum concurrent sessions reached"})
		return
	}

	sessionID := fmt.Sprintf("pre-%d", time.Now().UnixNano())
	token, err := s.deps.Tokens.Issue(sessionID, clientIP(r))
	if err != nil {
		s.logger.Error("token issuance failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "token issuance failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_in": int(s.config.Auth.TokenExpiry.Seconds()),
		"token_type": "bearer",
	})
}

// requireAPISecret gates the read-only admin endpoints behind the same
// static secret used for token issuance.
func (s *Server) requireAPISecret(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		secret := auth.BearerToken(r.Header.Get("Authorization"), "")
		if !auth.VerifyAPISecret(secret, s.config.Auth.APISecret) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

func (s *Server) handleAdminSessions(w http.ResponseWriter, r *http.Request) {
	stats := s.deps.Registry.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"active_count":              stats.ActiveCount,
		"total_count":               stats.TotalCount,
		"max_sessions":              stats.MaxSessions,
		"per_client_request_counts": s.deps.Limiter.Counts(),
	})
}

func (s *Server) handleAdminHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	transcoderOK := s.deps.Transcoder != nil && s.deps.Transcoder.Available(ctx)
	speechOK := s.deps.Speech != nil && s.deps.Speech.Healthy(ctx)

	status := "ok"
	if !transcoderOK || !speechOK {
		status = "degraded"
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         status,
		"transcoder":     transcoderOK,
		"speech_engine":  speechOK,
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// clientIP is the identity the rate limiter keys on. The remote port
// changes per connection, so only the host part is used.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
