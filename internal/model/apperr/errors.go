package apperr

import (
	"errors"
	"fmt"
)

// ErrAuth marks a webhook request whose shared secret or signature did not match.
var ErrAuth = errors.New("webhook authentication failed")

// MalformedPayloadError reports a webhook body that could not be decoded.
type MalformedPayloadError struct {
	Err error
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed webhook payload: %v", e.Err)
}

func (e *MalformedPayloadError) Unwrap() error {
	return e.Err
}

// UpstreamError is the single error kind surfaced for failures of an external
// HTTP service: completion providers, the Graph API and the live data APIs.
// StatusCode is zero when no HTTP response was received.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("%s upstream error: status=%d body=%s", e.Provider, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s upstream error: status=%d", e.Provider, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s upstream error: %v", e.Provider, e.Err)
	default:
		return fmt.Sprintf("%s upstream error: %s", e.Provider, e.Body)
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// AsUpstream wraps err as an UpstreamError for provider unless it already is one.
func AsUpstream(provider string, err error) error {
	if err == nil {
		return nil
	}
	var upstream *UpstreamError
	if errors.As(err, &upstream) {
		return err
	}
	return &UpstreamError{Provider: provider, Err: err}
}

// DeliveryError means the user-facing apology itself could not be sent.
type DeliveryError struct {
	Recipient string
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s failed: %v", e.Recipient, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Truncate shortens upstream bodies before they are logged or wrapped.
func Truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
