package types

import "fmt"

// ConnectionState is the live connectivity state reported by the transport.
type ConnectionState string

const (
	StateConnected  ConnectionState = "CONNECTED"
	StateTimeout    ConnectionState = "TIMEOUT"
	StateUnlaunched ConnectionState = "UNLAUNCHED"
	StateUnpaired   ConnectionState = "UNPAIRED"
)

// EventType tags a lifecycle event emitted by the transport for one session.
type EventType string

const (
	EventQR            EventType = "qr"
	EventAuthenticated EventType = "authenticated"
	EventReady         EventType = "ready"
	EventDisconnected  EventType = "disconnected"
	EventAuthFailure   EventType = "auth_failure"
	EventMessage       EventType = "message"
)

// MessagePayload carries an inbound message attached to an EventMessage event.
type MessagePayload struct {
	From      string `json:"from"`
	To        string `json:"to,omitempty"`
	Body      string `json:"body"`
	FromMe    bool   `json:"fromMe"`
	Timestamp int64  `json:"ts,omitempty"`
}

// Event is the tagged lifecycle event consumed by the session manager's
// single transition entry point.
type Event struct {
	Type    EventType       `json:"type"`
	QR      string          `json:"qr,omitempty"`
	Reason  string          `json:"reason,omitempty"`
	Message *MessagePayload `json:"message,omitempty"`
}

// NumberCheck is the result of a registration lookup for one destination.
type NumberCheck struct {
	Input        string `json:"input"`
	Number       string `json:"number"`
	ChatID       string `json:"waId"`
	IsRegistered bool   `json:"isRegistered"`
	CanonicalID  string `json:"wid,omitempty"`
}

// SessionConfig carries per-session transport settings.
type SessionConfig struct {
	ClientID   string
	DataPath   string
	WebhookURL string
}

// FaultCode classifies transport faults in a structured way so callers never
// have to match on error message text.
type FaultCode string

const (
	// FaultExecutionContextDestroyed means the browser page or session
	// backing the transport is gone. The transport cannot be recovered
	// in-process once its execution context is destroyed.
	FaultExecutionContextDestroyed FaultCode = "EXECUTION_CONTEXT_DESTROYED"

	// FaultEngineUnavailable means the engine API could not be reached.
	FaultEngineUnavailable FaultCode = "ENGINE_UNAVAILABLE"
)

// FaultError is a classified transport fault.
type FaultError struct {
	Code    FaultCode
	Message string
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("transport fault %s: %s", e.Code, e.Message)
}

// Unrecoverable reports whether the fault cannot be repaired in-process and
// should escalate to a supervisor-driven restart.
func (e *FaultError) Unrecoverable() bool {
	return e.Code == FaultExecutionContextDestroyed
}
