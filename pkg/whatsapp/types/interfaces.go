package types

import (
	"context"
	"errors"
)

// Session is the live handle for one chat-network connection. Implementations
// wrap the actual transport; everything above this interface is
// transport-agnostic.
type Session interface {
	// Initialize brings the underlying transport up. It blocks until the
	// transport accepted the session or the launch timed out.
	Initialize(ctx context.Context) error

	// Destroy tears the live connection down. Destroying an already-dead
	// session is not an error.
	Destroy(ctx context.Context) error

	// SendText delivers one text message to the given chat identifier.
	SendText(ctx context.Context, chatID, text string) error

	// GetState reports the live connectivity state.
	GetState(ctx context.Context) (ConnectionState, error)

	// GetNumberID resolves a bare number to its canonical chat identifier,
	// returning empty when the number is not registered on the network.
	GetNumberID(ctx context.Context, number string) (string, error)
}

// RegistrationChecker is the optional secondary registration-lookup
// capability. Sessions that support it are used as a fallback when
// GetNumberID is unavailable on the engine.
type RegistrationChecker interface {
	IsRegisteredUser(ctx context.Context, chatID string) (bool, error)
}

// SessionFactory constructs session handles. The factory is injected into the
// session manager so tests can substitute fakes for the real engine client.
type SessionFactory interface {
	NewSession(cfg SessionConfig) (Session, error)
}

// ErrLookupUnsupported is returned by GetNumberID when the engine does not
// expose the primary lookup endpoint.
var ErrLookupUnsupported = errors.New("number lookup not supported by engine")

// IsUnrecoverable reports whether err carries a transport fault that cannot
// be recovered in-process.
func IsUnrecoverable(err error) bool {
	var fault *FaultError
	return errors.As(err, &fault) && fault.Unrecoverable()
}
