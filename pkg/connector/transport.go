package connector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

const defaultTimeoutSeconds = 120

// Exchange is one provider HTTP call: everything protocol-specific about
// the request, assembled by a provider's BuildExchange.
type Exchange struct {
	Provider string
	URL      string
	Headers  map[string]string
	Body     any
}

// Transport posts exchanges and converts HTTP-level failures into the typed
// error taxonomy: unreachable server → TransportError, 429 → RateLimitError
// with the server's retry hint, other non-2xx → ProviderError. Successful
// response bodies come back raw; decoding them is provider-specific.
type Transport struct {
	client *http.Client
	logger *slog.Logger
}

// NewTransport creates a transport with the default request timeout.
func NewTransport(logger *slog.Logger) *Transport {
	return &Transport{
		client: &http.Client{Timeout: defaultTimeoutSeconds * time.Second},
		logger: logger.With("module", "connector"),
	}
}

// Do posts the exchange and returns the raw response body of a 2xx reply.
// Request URLs are never logged; provider credentials may be embedded in
// them.
func (t *Transport) Do(ctx context.Context, ex Exchange) ([]byte, error) {
	payload, err := json.Marshal(ex.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request body: %w", ex.Provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ex.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", ex.Provider, err)
	}

	req.Header.Set("Content-Type", "application/json")

	for key, value := range ex.Headers {
		req.Header.Set(key, value)
	}

	t.logger.DebugContext(ctx, "Calling AI provider", "provider", ex.Provider, "body_bytes", len(payload))

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &TransportError{Provider: ex.Provider, Err: err}
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Provider: ex.Provider, Err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &RateLimitError{
			Provider: ex.Provider,
			Hint:     retryAfterHint(resp.Header, body),
		}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, &ProviderError{
			Provider: ex.Provider,
			Status:   resp.StatusCode,
			Message:  providerMessage(body),
		}
	}

	return body, nil
}

// retryAfterHint extracts a retry-after hint in seconds: the Retry-After
// header when present, otherwise a retry field in the error body. Returns 0
// when the server gave no usable hint.
func retryAfterHint(header http.Header, body []byte) float64 {
	if raw := header.Get("Retry-After"); raw != "" {
		if seconds, err := strconv.ParseFloat(raw, 64); err == nil && seconds >= 0 {
			return seconds
		}
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return 0
	}

	for _, key := range []string{"retry_after", "retryAfter"} {
		if seconds, ok := asSeconds(decoded[key]); ok {
			return seconds
		}
	}

	if nested, ok := decoded["error"].(map[string]any); ok {
		for _, key := range []string{"retry_after", "retryAfter"} {
			if seconds, ok := asSeconds(nested[key]); ok {
				return seconds
			}
		}
	}

	return 0
}

func asSeconds(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		if v >= 0 {
			return v, true
		}
	case string:
		if seconds, err := strconv.ParseFloat(v, 64); err == nil && seconds >= 0 {
			return seconds, true
		}
	}

	return 0, false
}

// providerMessage pulls a human-readable message out of a provider error
// body. The common shapes are {"error":{"message":...}} (OpenAI, Azure,
// Google, Anthropic) and {"error":"..."} or {"message":"..."}.
func providerMessage(body []byte) string {
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		return ""
	}

	switch errValue := decoded["error"].(type) {
	case map[string]any:
		if message, ok := errValue["message"].(string); ok && message != "" {
			return message
		}
	case string:
		if errValue != "" {
			return errValue
		}
	}

	if message, ok := decoded["message"].(string); ok {
		return message
	}

	return ""
}
