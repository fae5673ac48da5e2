// internal/clients/genai/client.go
package genai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	stderrors "caserank/internal/common/errors"
	"caserank/internal/common/logger"
)

// Generator produces a completion for a prompt. The production
// implementation calls the GenAI HTTP API; tests substitute stubs.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Client implements Generator against the GenAI text endpoint.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	timeout     time.Duration
	maxRetries  int
	temperature float64
	client      *http.Client
	logger      logger.Logger
}

func NewClient(baseURL, apiKey, model string, timeout time.Duration, log logger.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		apiKey:      apiKey,
		model:       model,
		timeout:     timeout,
		maxRetries:  2,
		temperature: 0.1,
		// No transport timeout, the context carries the deadline.
		client: &http.Client{},
		logger: log.WithFields(map[string]interface{}{"client": "genai"}),
	}
}

func (c *Client) Model() string {
	return c.model
}

type generateRequest struct {
	Contents []content `json:"contents"`
	Config   genConfig `json:"generationConfig"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type genConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type generateResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Generate sends the prompt and returns the raw completion text. Transport
// failures and non-OK statuses are retried with exponential backoff until
// the context deadline wins.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqBody := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
		Config: genConfig{
			Temperature:     c.temperature,
			MaxOutputTokens: 8192,
		},
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", stderrors.NewScorerUnavailableError(err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", stderrors.NewScorerTimeoutError()
			}
		}

		req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if reqErr != nil {
			return "", stderrors.NewScorerUnavailableError(reqErr)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, lastErr = c.client.Do(req)
		if lastErr == nil {
			if resp.StatusCode == http.StatusOK {
				break
			}
			respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d: %s", resp.StatusCode, respBody)
			resp = nil

			c.logger.Warn("Generation attempt failed", map[string]interface{}{
				"attempt": attempt,
				"error":   lastErr.Error(),
			})
		}

		if ctx.Err() != nil {
			return "", stderrors.NewScorerTimeoutError()
		}
	}

	if resp == nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", stderrors.NewScorerTimeoutError()
		}
		if lastErr == nil {
			lastErr = errors.New("no successful response after retries")
		}
		return "", stderrors.NewScorerUnavailableError(lastErr)
	}
	defer resp.Body.Close()

	var apiResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", stderrors.NewScorerMalformedResponseError(err.Error())
	}

	if len(apiResp.Candidates) == 0 || len(apiResp.Candidates[0].Content.Parts) == 0 {
		return "", stderrors.NewScorerMalformedResponseError("empty candidate list")
	}

	var text strings.Builder
	for _, p := range apiResp.Candidates[0].Content.Parts {
		text.WriteString(p.Text)
	}
	return text.String(), nil
}
