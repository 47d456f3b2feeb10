package upstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ocx/inkgrade/internal/credentialpool"
)

const (
	connectTimeout = 10 * time.Second
	writeTimeout   = 10 * time.Second
	maxReadTimeout = 180 * time.Second
)

// ChatCompletionsClient speaks the chat-completions-style streaming
// contract: a user message with mixed text+image parts, image passed as
// a data: URL, and the response as line-delimited "data: {...}" chunks
// terminated by "data: [DONE]", with content deltas at
// choices[0].delta.content.
type ChatCompletionsClient struct {
	Endpoint   string
	Model      string
	HTTPClient *http.Client
	AuthHeader string // "Authorization" or "x-api-key"
	AuthScheme string // "Bearer " or "" (x-api-key has no scheme prefix)
}

// NewChatCompletionsClient builds a client whose only deadline is one
// overall request timeout equal to the sum of the connect, read and write
// budgets (200 s). There is no separate connect timeout and no per-read
// deadline.
func NewChatCompletionsClient(endpoint, model, authHeader, authScheme string) *ChatCompletionsClient {
	return &ChatCompletionsClient{
		Endpoint:   endpoint,
		Model:      model,
		AuthHeader: authHeader,
		AuthScheme: authScheme,
		HTTPClient: &http.Client{
			Timeout: connectTimeout + maxReadTimeout + writeTimeout,
		},
	}
}

type chatCompletionsRequest struct {
	Model    string          `json:"model"`
	Stream   bool            `json:"stream"`
	Messages []chatMessage   `json:"messages"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatCompletionsChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (c *ChatCompletionsClient) StreamCritique(ctx context.Context, cred *credentialpool.Credential, imageJPEG []byte, prompt string) (<-chan string, <-chan error) {
	tokens := make(chan string)
	errs := make(chan error, 1)

	go func() {
		defer close(tokens)
		defer close(errs)

		dataURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(imageJPEG)
		body := chatCompletionsRequest{
			Model:  c.Model,
			Stream: true,
			Messages: []chatMessage{{
				Role: "user",
				Content: []contentPart{
					{Type: "text", Text: prompt},
					{Type: "image_url", ImageURL: &imageURL{URL: dataURL, Detail: "auto"}},
				},
			}},
		}
		payload, err := json.Marshal(body)
		if err != nil {
			errs <- fmt.Errorf("upstream: marshal request: %w", err)
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(payload))
		if err != nil {
			errs <- fmt.Errorf("upstream: build request: %w", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		if c.AuthHeader != "" {
			req.Header.Set(c.AuthHeader, c.AuthScheme+cred.Key)
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			errs <- fmt.Errorf("upstream: request failed: %w", err)
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			errs <- fmt.Errorf("upstream: status %d", resp.StatusCode)
			return
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				return
			}

			var chunk chatCompletionsChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				continue
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			if content := chunk.Choices[0].Delta.Content; content != "" {
				select {
				case tokens <- content:
				case <-ctx.Done():
					return
				}
			}
		}
		if err := scanner.Err(); err != nil {
			errs <- fmt.Errorf("upstream: stream read: %w", err)
		}
	}()

	return tokens, errs
}
