package upstream

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ocx/inkgrade/internal/credentialpool"
)

// MessageStyleClient speaks the message-style contract: image (base64
// with explicit media type) + text content blocks, POSTed as a single
// non-streaming request whose JSON body contains an array of content
// blocks. This provider shape has no incremental delta: each non-empty
// text block of the reply is delivered as one chunk, in reply order.
type MessageStyleClient struct {
	Endpoint   string
	Model      string
	HTTPClient *http.Client
	AuthHeader string
	AuthScheme string
}

func NewMessageStyleClient(endpoint, model, authHeader, authScheme string) *MessageStyleClient {
	return &MessageStyleClient{
		Endpoint:   endpoint,
		Model:      model,
		AuthHeader: authHeader,
		AuthScheme: authScheme,
		HTTPClient: &http.Client{Timeout: connectTimeout + maxReadTimeout + writeTimeout},
	}
}

type messageRequest struct {
	Model    string           `json:"model"`
	Messages []messageEntry   `json:"messages"`
}

type messageEntry struct {
	Role    string         `json:"role"`
	Content []messageBlock `json:"content"`
}

type messageBlock struct {
	Type   string        `json:"type"`
	Text   string        `json:"text,omitempty"`
	Source *messageImage `json:"source,omitempty"`
}

type messageImage struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type messageResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func (c *MessageStyleClient) StreamCritique(ctx context.Context, cred *credentialpool.Credential, imageJPEG []byte, prompt string) (<-chan string, <-chan error) {
	tokens := make(chan string, 1)
	errs := make(chan error, 1)

	go func() {
		defer close(tokens)
		defer close(errs)

		body := messageRequest{
			Model: c.Model,
			Messages: []messageEntry{{
				Role: "user",
				Content: []messageBlock{
					{Type: "text", Text: prompt},
					{Type: "image", Source: &messageImage{
						Type:      "base64",
						MediaType: "image/jpeg",
						Data:      base64.StdEncoding.EncodeToString(imageJPEG),
					}},
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

		var parsed messageResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			errs <- fmt.Errorf("upstream: decode response: %w", err)
			return
		}

		for _, block := range parsed.Content {
			if block.Type != "text" || block.Text == "" {
				continue
			}
			select {
			case tokens <- block.Text:
			case <-ctx.Done():
				return
			}
		}
	}()

	return tokens, errs
}
