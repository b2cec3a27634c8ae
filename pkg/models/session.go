// Package models provides domain types shared across the Hana voice service.
package models

import (
	"time"
)

// TransportKind identifies how a session reached the service.
type TransportKind string

const (
	// TransportPlain is the unauthenticated test relay.
	TransportPlain TransportKind = "plain"

	// TransportAuthenticated is the session-token protected relay.
	TransportAuthenticated TransportKind = "authenticated"

	// TransportTelephony is the shared-secret telephony peer.
	TransportTelephony TransportKind = "telephony"
)

// SessionState represents the lifecycle stage of a session.
// A session moves Created -> Active -> Terminated exactly once and
// never backward.
type SessionState string

const (
	StateCreated    SessionState = "created"
	StateActive     SessionState = "active"
	StateTerminated SessionState = "terminated"
)

// IsTerminal returns true once the session has ended.
func (s SessionState) IsTerminal() bool {
	return s == StateTerminated
}

// CallDirection indicates whether the telephony peer dialed us or we
// dialed out.
type CallDirection string

const (
	DirectionInbound  CallDirection = "inbound"
	DirectionOutbound CallDirection = "outbound"
)

// CallContext carries the call metadata declared in the telephony
// handshake. It is set once at session setup and never mutated after.
type CallContext struct {
	CallerNumber string            `json:"caller_number"`
	CalleeNumber string            `json:"callee_number"`
	Direction    CallDirection     `json:"direction"`
	Custom       map[string]string `json:"custom,omitempty"`
}

// Session is the per-connection state owned exclusively by the goroutine
// handling its transport. The registry keeps only the lightweight
// accounting fields (ID, state, timestamps); everything else is private
// to the owning handler.
type Session struct {
	ID            string        `json:"id"`
	Transport     TransportKind `json:"transport"`
	ClientAddr    string        `json:"client_addr"`
	CreatedAt     time.Time     `json:"created_at"`
	State         SessionState  `json:"state"`
	Authenticated bool          `json:"authenticated"`

	// Telephony sub-state. Nil CallContext means no handshake happened.
	Call *CallContext `json:"call,omitempty"`
	DTMF []string     `json:"dtmf,omitempty"`

	// Survey sub-state for the questionnaire engine.
	Survey SurveyState `json:"survey"`
}

// AppendDTMF records a touch-tone digit received during the call.
func (s *Session) AppendDTMF(digit string) {
	s.DTMF = append(s.DTMF, digit)
}

// Duration returns how long the session has been alive.
func (s *Session) Duration(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}
