package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrRateUnavailable indicates a source answered but had no usable quote
// for the requested currency pair.
var ErrRateUnavailable = errors.New("exchange rate unavailable")

// Client fetches spot rates from public exchange-rate APIs. All supported
// sources answer with a top-level "rates" object keyed by currency code.
type Client struct {
	http *http.Client
}

// NewClient creates a rate client with the given per-request timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Client{http: &http.Client{Timeout: timeout}}
}

type ratesPayload struct {
	Rates map[string]float64 `json:"rates"`
}

// Fetch queries one source URL for the base/target rate. The {base}
// placeholder in the URL is replaced with the base currency code.
func (c *Client) Fetch(ctx context.Context, sourceURL, base, target string) (float64, error) {
	reqURL := strings.ReplaceAll(sourceURL, "{base}", base)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("rate request: %w", err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, fmt.Errorf("read response: %w", err)
	}
	if res.StatusCode >= 400 {
		return 0, fmt.Errorf("rate source error: status=%d body=%s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload ratesPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("decode rates: %w", err)
	}

	rate, ok := payload.Rates[strings.ToUpper(target)]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("%w: %s/%s not in response", ErrRateUnavailable, base, target)
	}
	return rate, nil
}
