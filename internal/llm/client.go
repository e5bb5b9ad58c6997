package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/qiniu/notegen/internal/config"
	"github.com/qiniu/notegen/internal/section"
	"github.com/qiniu/notegen/pkg/models"

	"github.com/qiniu/x/xlog"
)

const systemPromptHeader = `You are a release notes writer. Given a pull request diff and its
description, produce notes split into the sections listed below. Start each
section on its own line with the literal marker "TAG:" (tag name, colon),
in the given order, and write plain text after it. Do not use markdown
headings and do not invent other markers.`

// Client talks to an OpenAI-compatible chat-completions endpoint and exposes
// the response as a pull-based Stream.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	grammar    *section.Grammar
}

func NewClient(cfg config.LLMConfig, grammar *section.Grammar) *Client {
	return &Client{
		// Per-session deadlines come from the request context; a client
		// Timeout would cut long streams off mid-flight.
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		grammar:    grammar,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
}

// GenerateNotes opens a streaming completion for the given request. The
// returned Stream must be closed by the caller on every exit path. Errors
// are classified with the package sentinels so the consumer can surface
// them to the session without string matching.
func (c *Client) GenerateNotes(ctx context.Context, req *models.GenerateRequest) (Stream, error) {
	xl := xlog.NewWith(ctx)

	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: c.systemPrompt()},
			{Role: "user", Content: userPrompt(req)},
		},
		Stream: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		resp.Body.Close()
		xl.Warnf("generator returned %d for %s: %s", resp.StatusCode, req.ID, strings.TrimSpace(string(body)))
		return nil, fmt.Errorf("%w: status %d", ErrProtocol, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.Contains(contentType, "text/event-stream") {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: content-type %q", ErrStreamUnsupported, contentType)
	}

	return newSSEStream(resp.Body), nil
}

func (c *Client) systemPrompt() string {
	var b strings.Builder
	b.WriteString(systemPromptHeader)
	b.WriteString("\n\nSections, in order:\n")
	for _, tag := range c.grammar.Tags() {
		b.WriteString("  ")
		b.WriteString(c.grammar.Marker(tag))
		b.WriteString("\n")
	}
	return b.String()
}

func userPrompt(req *models.GenerateRequest) string {
	var b strings.Builder
	if req.Title != "" {
		fmt.Fprintf(&b, "Pull request: %s\n", req.Title)
	}
	if req.Description != "" {
		fmt.Fprintf(&b, "Description:\n%s\n", req.Description)
	}
	b.WriteString("Diff:\n")
	b.WriteString(req.Diff)
	return b.String()
}
