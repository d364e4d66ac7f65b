package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Client translates outgoing messages via a LibreTranslate-compatible
// endpoint. Translation is strictly best effort: any failure, including an
// unconfigured endpoint, returns the original text so the bot always answers.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// Config holds translation client settings. An empty BaseURL disables
// translation entirely.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// New creates a translation client.
func New(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With("component", "translate"),
	}
}

type translateRequest struct {
	Query  string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
}

type translateResponse struct {
	TranslatedText string `json:"translatedText"`
}

// Translate renders text in the target language. "en" and unknown targets
// pass through unchanged, as does every error path.
func (c *Client) Translate(ctx context.Context, text, targetLang string) string {
	targetLang = strings.ToLower(strings.TrimSpace(targetLang))
	if c.baseURL == "" || text == "" || targetLang == "" || targetLang == "en" {
		return text
	}

	payload, err := json.Marshal(translateRequest{
		Query:  text,
		Source: "en",
		Target: targetLang,
		Format: "text",
	})
	if err != nil {
		return text
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/translate", bytes.NewReader(payload))
	if err != nil {
		return text
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("translation request failed", "lang", targetLang, "error", err)
		return text
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		c.logger.Warn("translation rejected", "lang", targetLang, "status", res.StatusCode)
		return text
	}

	var out translateResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil || out.TranslatedText == "" {
		return text
	}
	return out.TranslatedText
}
