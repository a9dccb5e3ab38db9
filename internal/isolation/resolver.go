package isolation

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/session"
)

// Resolution is the outcome of resolving a request's isolation key.
type Resolution struct {
	// Key is the tenant's isolation key. Empty in none mode.
	Key string

	// Echo reports whether the key must be emitted back to the caller
	// (session mode only, so the client can persist it).
	Echo bool

	// Generated reports whether a fresh key was minted for this request.
	Generated bool
}

// Resolver derives isolation keys according to the configured mode.
type Resolver struct {
	mode     Mode
	registry *session.Registry
	logger   *zap.Logger
}

// NewResolver creates a resolver. A session registry is required in session
// mode and ignored otherwise.
func NewResolver(mode Mode, registry *session.Registry, logger *zap.Logger) (*Resolver, error) {
	if mode == ModeSession && registry == nil {
		return nil, fmt.Errorf("session registry is required in session mode")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{mode: mode, registry: registry, logger: logger}, nil
}

// Mode returns the configured isolation mode.
func (r *Resolver) Mode() Mode {
	return r.mode
}

// Resolve derives the isolation key from the incoming value.
//
// The incoming value is the x-session-id header in session mode and the
// caller-asserted key (request context value, falling back to the
// x-isolation-key header) in custom mode; it is ignored in none mode.
//
// Session mode: a malformed or absent incoming key is replaced by a freshly
// generated one. The resolved key is registered with the session registry
// and must be echoed to the caller. Registration failures are logged, not
// surfaced; losing one refresh only risks earlier expiry.
//
// Custom mode: the key passes through untouched apart from a storage-safety
// check; no registration, no echo. The registry and its expiry are a
// session-mode-only concern.
func (r *Resolver) Resolve(incoming string) (Resolution, error) {
	switch r.mode {
	case ModeNone:
		return Resolution{}, nil

	case ModeSession:
		key := incoming
		generated := false
		if !ValidSessionKey(key) {
			fresh, err := NewSessionKey()
			if err != nil {
				return Resolution{}, err
			}
			key = fresh
			generated = true
		}

		if err := r.registry.Track(key); err != nil {
			r.logger.Warn("session tracking failed",
				zap.String("session_id", key),
				zap.Error(err),
			)
		}

		return Resolution{Key: key, Echo: true, Generated: generated}, nil

	case ModeCustom:
		if incoming == "" {
			return Resolution{}, nil
		}
		if err := SafeKey(incoming); err != nil {
			return Resolution{}, err
		}
		return Resolution{Key: incoming}, nil

	default:
		return Resolution{}, fmt.Errorf("%w: %q", ErrInvalidMode, r.mode)
	}
}
