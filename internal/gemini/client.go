// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package gemini is a minimal streaming client for the Generative Language
// API. It covers exactly what the orchestrator needs: one system-instructed
// prompt in, a stream of thought/answer chunks out.
// Implements: prd001-generation R2.1-R2.4; docs/ARCHITECTURE § AI Boundary.
package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/cad-engine/internal/httputil"
	"github.com/pdiddy/cad-engine/pkg/types"
)

// baseURL is the API endpoint root. Package-level var for test substitution.
var baseURL = "https://generativelanguage.googleapis.com"

const defaultModel = "gemini-2.5-pro"

// Request carries one streaming generation call.
type Request struct {
	// System is the system instruction (coding conventions).
	System string

	// Prompt is the user instruction for this attempt.
	Prompt string

	// Temperature is the sampling temperature.
	Temperature float64

	// IncludeThoughts asks the model to stream its intermediate reasoning
	// as separately-tagged parts.
	IncludeThoughts bool
}

// Chunk is one streamed fragment. Thought distinguishes intermediate
// reasoning text from answer text. A non-nil Err terminates the stream.
type Chunk struct {
	Text    string
	Thought bool
	Err     error
}

// Client calls the Generative Language API over SSE.
type Client struct {
	apiKey string
	model  string
	client *http.Client
	logger *zap.Logger
}

// NewClient builds a client from AI config. The HTTP client carries no
// global timeout; callers bound streaming calls through the context.
func NewClient(cfg types.AIConfig, logger *zap.Logger) *Client {
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	return &Client{
		apiKey: cfg.APIKey,
		model:  model,
		client: &http.Client{},
		logger: logger,
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.model }

// --- wire types ---

type apiContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []apiPart `json:"parts"`
}

type apiPart struct {
	Text    string `json:"text,omitempty"`
	Thought bool   `json:"thought,omitempty"`
}

type thinkingConfig struct {
	IncludeThoughts bool `json:"includeThoughts"`
}

type generationConfig struct {
	Temperature    float64         `json:"temperature,omitempty"`
	ThinkingConfig *thinkingConfig `json:"thinkingConfig,omitempty"`
}

type apiRequest struct {
	Contents          []apiContent      `json:"contents"`
	SystemInstruction *apiContent       `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type apiCandidate struct {
	Content      apiContent `json:"content"`
	FinishReason string     `json:"finishReason,omitempty"`
}

type apiResponse struct {
	Candidates []apiCandidate `json:"candidates"`
}

type apiErrorResp struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// StreamGenerate opens a streaming generation call and returns a channel of
// chunks. The channel is closed when the stream ends; a Chunk with Err set
// is sent first when the stream fails mid-flight. HTTP 429 on connect is
// retried with backoff before the stream starts.
func (c *Client) StreamGenerate(ctx context.Context, req Request) (<-chan Chunk, error) {
	body := apiRequest{
		Contents: []apiContent{
			{Role: "user", Parts: []apiPart{{Text: req.Prompt}}},
		},
	}
	if req.System != "" {
		body.SystemInstruction = &apiContent{Parts: []apiPart{{Text: req.System}}}
	}
	if req.Temperature > 0 || req.IncludeThoughts {
		body.GenerationConfig = &generationConfig{Temperature: req.Temperature}
		if req.IncludeThoughts {
			body.GenerationConfig.ThinkingConfig = &thinkingConfig{IncludeThoughts: true}
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:streamGenerateContent?alt=sse",
		strings.TrimRight(baseURL, "/"), c.model)

	mkReq := func(ctx context.Context) (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-goog-api-key", c.apiKey)
		return httpReq, nil
	}

	start := time.Now()
	resp, err := httputil.DoWithRetry(ctx, c.client, mkReq, 0)
	if err != nil {
		return nil, fmt.Errorf("calling generative API: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		msg := readErrMsg(resp.Body)
		return nil, fmt.Errorf("generative API returned %d: %s", resp.StatusCode, msg)
	}

	c.logger.Debug("stream opened",
		zap.String("model", c.model),
		zap.Duration("connect", time.Since(start)))

	ch := make(chan Chunk)
	go c.readStream(resp.Body, ch)
	return ch, nil
}

// readStream parses SSE data lines into chunks until EOF.
func (c *Client) readStream(body io.ReadCloser, ch chan<- Chunk) {
	defer body.Close()
	defer close(ch)

	scanner := bufio.NewScanner(body)
	// Answer parts can be large; grow the line buffer well past the default.
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		var resp apiResponse
		if err := json.Unmarshal([]byte(data), &resp); err != nil {
			c.logger.Warn("skipping malformed stream event", zap.Error(err))
			continue
		}

		for _, cand := range resp.Candidates {
			for _, part := range cand.Content.Parts {
				if part.Text == "" {
					continue
				}
				ch <- Chunk{Text: part.Text, Thought: part.Thought}
			}
		}
	}

	if err := scanner.Err(); err != nil {
		ch <- Chunk{Err: fmt.Errorf("reading stream: %w", err)}
	}
}

func readErrMsg(body io.Reader) string {
	data, _ := io.ReadAll(body)
	var errResp apiErrorResp
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return fmt.Sprintf("%s (status: %s)", errResp.Error.Message, errResp.Error.Status)
	}
	return string(data)
}
