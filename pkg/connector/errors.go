package connector

import "fmt"

// maxProviderMessage bounds how much of a provider-supplied error message is
// surfaced to callers.
const maxProviderMessage = 600

// TransportError means the provider could not be reached at all: DNS
// failure, connection refused, timeout. There was no HTTP response.
type TransportError struct {
	Provider string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("no response from %s server: %v", e.Provider, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProviderError is a non-2xx HTTP response. The provider's own message is
// surfaced verbatim, bounded in size, with the status code as fallback when
// the body carried no message.
type ProviderError struct {
	Provider string
	Status   int
	Message  string
}

func (e *ProviderError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s error: %s", e.Provider, bounded(e.Message, maxProviderMessage))
	}

	return fmt.Sprintf("%s request failed with status %d", e.Provider, e.Status)
}

// RateLimitError is an HTTP 429. It is absorbed by the retry controller and
// reaches callers only once the attempt ceiling is exhausted.
type RateLimitError struct {
	Provider string
	Hint     float64
}

func (e *RateLimitError) Error() string {
	if e.Hint > 0 {
		return fmt.Sprintf("%s rate limit exceeded, retry after %.0fs", e.Provider, e.Hint)
	}

	return fmt.Sprintf("%s rate limit exceeded", e.Provider)
}

// RetryAfterSeconds returns the server-supplied hint, 0 when absent. It
// satisfies the retry controller's RateLimited surface.
func (e *RateLimitError) RetryAfterSeconds() float64 {
	return e.Hint
}

func bounded(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}

	return string(runes[:limit])
}
