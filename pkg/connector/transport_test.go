package connector

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTransport() *Transport {
	return NewTransport(slog.Default())
}

func TestTransportSuccess(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	body, err := testTransport().Do(context.Background(), Exchange{
		Provider: "openai",
		URL:      server.URL,
		Headers:  map[string]string{"Authorization": "Bearer sk-test"},
		Body:     map[string]string{"model": "gpt-4o"},
	})

	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestTransportRateLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		header   string
		body     string
		wantHint float64
	}{
		{
			name:     "hint from header",
			header:   "30",
			body:     `{}`,
			wantHint: 30,
		},
		{
			name:     "hint from body field",
			body:     `{"retry_after": 5}`,
			wantHint: 5,
		},
		{
			name:     "hint from nested error body",
			body:     `{"error":{"retryAfter":"2.5"}}`,
			wantHint: 2.5,
		},
		{
			name:     "no hint",
			body:     `{"error":{"message":"slow down"}}`,
			wantHint: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				if tt.header != "" {
					w.Header().Set("Retry-After", tt.header)
				}

				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, err := testTransport().Do(context.Background(), Exchange{Provider: "openai", URL: server.URL})

			var rateLimitErr *RateLimitError

			require.ErrorAs(t, err, &rateLimitErr)
			assert.InDelta(t, tt.wantHint, rateLimitErr.RetryAfterSeconds(), 0.001)
		})
	}
}

func TestTransportProviderError(t *testing.T) {
	t.Parallel()

	t.Run("message surfaced verbatim", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"model gpt-9 does not exist"}}`))
		}))
		defer server.Close()

		_, err := testTransport().Do(context.Background(), Exchange{Provider: "openai", URL: server.URL})

		var providerErr *ProviderError

		require.ErrorAs(t, err, &providerErr)
		assert.Equal(t, http.StatusBadRequest, providerErr.Status)
		assert.Contains(t, err.Error(), "model gpt-9 does not exist")
	})

	t.Run("status fallback when body carries no message", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`<html>bad gateway</html>`))
		}))
		defer server.Close()

		_, err := testTransport().Do(context.Background(), Exchange{Provider: "anthropic", URL: server.URL})

		var providerErr *ProviderError

		require.ErrorAs(t, err, &providerErr)
		assert.Contains(t, err.Error(), "status 502")
	})

	t.Run("oversized message is bounded", func(t *testing.T) {
		t.Parallel()

		long := strings.Repeat("x", 2000)
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"message":"` + long + `"}}`))
		}))
		defer server.Close()

		_, err := testTransport().Do(context.Background(), Exchange{Provider: "openai", URL: server.URL})

		require.Error(t, err)
		assert.Less(t, len(err.Error()), 700)
	})
}

func TestTransportUnreachableServer(t *testing.T) {
	t.Parallel()

	_, err := testTransport().Do(context.Background(), Exchange{
		Provider: "google",
		URL:      "http://127.0.0.1:1/unreachable",
	})

	var transportErr *TransportError

	require.ErrorAs(t, err, &transportErr)
	assert.Contains(t, err.Error(), "no response from google server")
}
