package gateway

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/a7isss/hana-voice-saas/internal/auth"
	"github.com/a7isss/hana-voice-saas/internal/sessions"
	"github.com/a7isss/hana-voice-saas/pkg/models"
)

const (
	wsMaxPayloadBytes = 1 << 20
	wsWriteWait       = 10 * time.Second
)

// authMode selects the credential check an endpoint performs before
// the upgrade.
type authMode int

const (
	authNone authMode = iota
	authSessionToken
	authPeerSecret
)

// agentProfile selects the conversational behavior of an endpoint.
type agentProfile int

const (
	profileGeneric agentProfile = iota
	profileHealthcare
	profileTest
)

// protocolKind selects which state machine runs on the upgraded
// connection.
type protocolKind int

const (
	kindRelay protocolKind = iota
	kindTelephony
)

// wsEndpoint describes one WebSocket route. Every route runs through
// the same handler, parametrized by this descriptor.
type wsEndpoint struct {
	path      string
	kind      protocolKind
	auth      authMode
	profile   agentProfile
	transport models.TransportKind
}

// The telephony routes relay raw codec-encoded audio frames; the calls
// routes speak the JSON call protocol.
var wsEndpoints = []wsEndpoint{
	{"/ws", kindRelay, authNone, profileGeneric, models.TransportPlain},
	{"/ws/secure", kindRelay, authSessionToken, profileGeneric, models.TransportAuthenticated},
	{"/ws/secure/healthcare", kindRelay, authSessionToken, profileHealthcare, models.TransportAuthenticated},
	{"/ws/telephony", kindRelay, authPeerSecret, profileGeneric, models.TransportTelephony},
	{"/ws/telephony/healthcare", kindRelay, authPeerSecret, profileHealthcare, models.TransportTelephony},
	{"/ws/calls", kindTelephony, authPeerSecret, profileGeneric, models.TransportTelephony},
	{"/ws/calls/healthcare", kindTelephony, authPeerSecret, profileHealthcare, models.TransportTelephony},
	{"/ws/calls/test", kindTelephony, authNone, profileTest, models.TransportTelephony},
}

type wsHandler struct {
	server   *Server
	ep       wsEndpoint
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func (s *Server) newWSHandler(ep wsEndpoint) http.Handler {
	return &wsHandler{
		server: s,
		ep:     ep,
		logger: s.logger.With("endpoint", ep.path),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  8192,
			WriteBufferSize: 8192,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
	}
}

// ServeHTTP runs admission in a fixed order (rate limit, credential,
// capacity), upgrades, and hands the connection to the protocol state
// machine. Admission failures are plain HTTP statuses; the socket is
// never upgraded for a connection we will not serve.
func (h *wsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	deps := h.server.deps
	ip := clientIP(r)

	if !deps.Limiter.Allow(ip) {
		deps.Metrics.RateLimitRejected.WithLabelValues(h.ep.path).Inc()
		h.logger.Warn("rate limit exceeded", "client", ip)
		http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
		return
	}

	if !h.authorize(r) {
		h.logger.Warn("authentication failed", "client", ip)
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	sess := sessions.NewSession(h.ep.transport, ip, h.ep.auth != authNone)
	if err := deps.Registry.Register(sess); err != nil {
		if errors.Is(err, sessions.ErrCapacityExceeded) {
			deps.Metrics.CapacityRejections.Inc()
			h.logger.Warn("session cap reached", "client", ip)
			http.Error(w, "too many concurrent sessions", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "session setup failed", http.StatusInternalServerError)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		deps.Registry.Unregister(sess.ID)
		h.logger.Error("upgrade failed", "error", err, "client", ip)
		return
	}

	deps.Metrics.ActiveSessions.WithLabelValues(string(h.ep.transport)).Inc()
	defer func() {
		deps.Metrics.ActiveSessions.WithLabelValues(string(h.ep.transport)).Dec()
		sess.State = models.StateTerminated
		deps.Registry.Unregister(sess.ID)
		conn.Close()
	}()

	conn.SetReadLimit(wsMaxPayloadBytes)

	switch h.ep.kind {
	case kindRelay:
		h.serveRelay(r.Context(), conn, sess)
	case kindTelephony:
		h.serveTelephony(r.Context(), conn, sess)
	}
}

func (h *wsHandler) authorize(r *http.Request) bool {
	tokens := h.server.deps.Tokens
	credential := auth.BearerToken(r.Header.Get("Authorization"), r.URL.Query().Get("token"))

	switch h.ep.auth {
	case authNone:
		return true
	case authSessionToken:
		if credential == "" {
			return false
		}
		_, err := tokens.Verify(credential)
		return err == nil
	case authPeerSecret:
		return tokens.PeerConfigured() && tokens.VerifyPeerSecret(credential)
	}
	return false
}
