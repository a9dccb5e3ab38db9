// Package isolation derives per-tenant isolation keys from request metadata.
//
// Three modes are supported:
//   - none: no isolation, every caller shares one store.
//   - session: automatic session keys, generated server-side, echoed to the
//     caller via the x-session-id header and tracked for expiry.
//   - custom: the caller's own authentication layer asserts a key; ragd
//     treats it as opaque and never tracks or echoes it.
package isolation

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Mode selects how isolation keys are resolved.
type Mode string

const (
	// ModeNone routes all traffic to the single shared store.
	ModeNone Mode = "none"
	// ModeSession derives keys from the x-session-id header, generating and
	// registering them as needed.
	ModeSession Mode = "session"
	// ModeCustom consumes a caller-asserted key without validation,
	// registration, or echo. The caller owns key issuance and lifecycle.
	ModeCustom Mode = "custom"
)

// Errors returned by this package.
var (
	ErrInvalidMode = errors.New("invalid isolation mode")
	ErrUnsafeKey   = errors.New("isolation key not safe for storage paths")
)

// sessionKeyPattern matches valid session-mode keys: 32 lowercase hex chars
// (16 random bytes hex-encoded). Anything else is treated as absent.
var sessionKeyPattern = regexp.MustCompile(`^[a-f0-9]{32}$`)

// ParseMode parses a mode string from config.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeNone, ModeSession, ModeCustom:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
}

// ValidSessionKey reports whether s is a well-formed session key.
func ValidSessionKey(s string) bool {
	return sessionKeyPattern.MatchString(s)
}

// NewSessionKey generates a cryptographically random session key.
func NewSessionKey() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("generating session key: %w", err)
	}
	return hex.EncodeToString(b[:]), nil
}

// SafeKey validates that a caller-supplied key cannot escape the isolated/
// directory when used as a path segment. Custom-mode keys are otherwise
// opaque; this is a storage-safety check, not a format contract.
func SafeKey(key string) error {
	if key == "" || len(key) > 255 {
		return ErrUnsafeKey
	}
	if key == "." || key == ".." {
		return ErrUnsafeKey
	}
	if strings.ContainsAny(key, "/\\\x00") {
		return ErrUnsafeKey
	}
	if filepath.Clean(key) != key {
		return ErrUnsafeKey
	}
	return nil
}

// IsolatedPath returns the storage path for an isolation key under base.
//
// The same convention applies to the vector store root and the upload root:
// shared data under {base}/shared, tenant data under {base}/isolated/{key}.
// Removing isolated/{key} under both roots removes all tenant residue.
func IsolatedPath(base, key string) string {
	if key == "" {
		return filepath.Join(base, "shared")
	}
	return filepath.Join(base, "isolated", key)
}
