package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sigweihq/memespin/pkg/constants"
)

// CreateHTTPClientWithTimeouts returns a client with bounded TLS and header timeouts
// and redirects disabled.
func CreateHTTPClientWithTimeouts(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			TLSHandshakeTimeout:   constants.TLSHandshakeTimeout,
			ResponseHeaderTimeout: constants.ResponseHeaderTimeout,
			ExpectContinueTimeout: constants.ExpectContinueTimeout,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse // Disable redirects to prevent redirect-based SSRF
		},
	}
}

// ValidateEndpointURL validates that an RPC or relay URL is secure.
// Plain http and ws are only accepted for localhost.
func ValidateEndpointURL(url string) error {
	if strings.HasPrefix(url, "https://") || strings.HasPrefix(url, "wss://") {
		return nil
	}
	for _, scheme := range []string{"http://", "ws://"} {
		if strings.HasPrefix(url, scheme+"localhost") ||
			strings.HasPrefix(url, scheme+"127.0.0.1") ||
			strings.HasPrefix(url, scheme+"[::1]") {
			return nil
		}
	}
	return fmt.Errorf("endpoint URL must use https or wss: %s", url)
}

// GetJSON fetches url and decodes a JSON body into T.
// The body is capped at MaxResponseBodySize.
func GetJSON[T any](ctx context.Context, client *http.Client, url string, name string) (*T, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send %s request: %w", name, err)
	}
	defer resp.Body.Close()

	limitedReader := io.LimitReader(resp.Body, int64(constants.MaxResponseBodySize))

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(limitedReader)
		return nil, fmt.Errorf("%s request failed with status %d: %s", name, resp.StatusCode, string(body))
	}

	var result T
	if err := json.NewDecoder(limitedReader).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", name, err)
	}

	return &result, nil
}
