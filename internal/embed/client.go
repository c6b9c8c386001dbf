// Package embed calls an OpenAI compatible embeddings endpoint.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/joshsymonds/inboxledger/internal/gmail"
	"github.com/joshsymonds/inboxledger/internal/rate"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "text-embedding-ada-002"
	DefaultTimeout = 30 * time.Second

	// maxInputChars keeps requests under the model's token limit.
	maxInputChars = 24000
)

// Client embeds text through POST {BaseURL}/embeddings.
type Client struct {
	BaseURL string
	APIKey  string
	Model   string
	HTTP    *http.Client
	Limiter rate.Limiter
	Logger  *slog.Logger
}

func NewClient(baseURL, apiKey, model string, timeout time.Duration, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Model:   model,
		HTTP:    &http.Client{Timeout: timeout},
		Logger:  logger,
	}
}

type request struct {
	Input string `json:"input"`
	Model string `json:"model"`
}

type response struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float64, error) {
	if strings.TrimSpace(text) == "" {
		return nil, gmail.Errorf(gmail.ErrProcessing, "embed", "empty input")
	}
	text = truncateUTF8(text, maxInputChars)
	if err := rate.Wait(ctx, c.Limiter); err != nil {
		return nil, err
	}
	payload, err := json.Marshal(request{Input: text, Model: c.Model})
	if err != nil {
		return nil, fmt.Errorf("encode embedding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, gmail.Wrap(gmail.ErrProcessing, "embed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, gmail.Wrap(gmail.ErrProcessing, "embed", fmt.Errorf("read response: %w", err))
	}
	var out response
	decodeErr := json.Unmarshal(body, &out)

	if resp.StatusCode != http.StatusOK {
		msg := http.StatusText(resp.StatusCode)
		if decodeErr == nil && out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		return nil, gmail.Errorf(statusKind(resp.StatusCode), "embed", "status %d: %s", resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return nil, gmail.Wrap(gmail.ErrProcessing, "embed", fmt.Errorf("decode response: %w", decodeErr))
	}
	if len(out.Data) == 0 || len(out.Data[0].Embedding) == 0 {
		return nil, gmail.Errorf(gmail.ErrProcessing, "embed", "response carried no embedding")
	}
	c.Logger.DebugContext(ctx, "embedded text",
		slog.Int("chars", len(text)),
		slog.Int("dims", len(out.Data[0].Embedding)),
		slog.Duration("elapsed", time.Since(start)))
	return out.Data[0].Embedding, nil
}

func statusKind(code int) error {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return gmail.ErrAuth
	case http.StatusTooManyRequests:
		return gmail.ErrRateLimit
	default:
		return gmail.ErrProcessing
	}
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
