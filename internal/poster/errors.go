package poster

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupported marks operations a platform cannot perform in this tool.
var ErrUnsupported = errors.New("unsupported operation")

// MissingCredentialsError is returned when required configuration is missing.
type MissingCredentialsError struct {
	Provider string
	Fields   []string
}

func (e MissingCredentialsError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s credentials not configured", e.Provider)
	}
	return fmt.Sprintf("%s credentials not configured (missing %s)", e.Provider, strings.Join(e.Fields, ", "))
}

// ValidationError captures provider-specific validation issues.
type ValidationError struct {
	Provider string
	Reason   string
	Err      error
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s validation failed: %s", e.Provider, e.Reason)
}

func (e ValidationError) Unwrap() error { return e.Err }

// APIError is a structured rejection returned by a remote API.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "unknown error"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s API error (HTTP %d): %s", e.Provider, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s API error: %s", e.Provider, msg)
}

// TransportError wraps network level failures (DNS, TLS, timeouts).
type TransportError struct {
	Provider string
	Err      error
}

func (e TransportError) Error() string {
	return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
}

func (e TransportError) Unwrap() error { return e.Err }

// RequireFields returns a MissingCredentialsError naming every empty field, in order.
// Fields are passed as name/value pairs.
func RequireFields(provider string, pairs ...string) error {
	var missing []string
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			missing = append(missing, pairs[i])
		}
	}
	if len(missing) > 0 {
		return MissingCredentialsError{Provider: provider, Fields: missing}
	}
	return nil
}
