// Package modelclient is a thin JSON-over-HTTP client for the external
// vision, speech-to-text, and text-to-speech model APIs the vision/stt/tts
// retrieval backends call, grounded on the same request/response-struct
// HTTP idiom pkg/embedclient uses against Ollama.
package modelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Client posts a JSON request to a fixed model API URL and decodes the
// JSON response into a typed struct.
type Client struct {
	url  string
	http *http.Client
}

func New(url string) *Client {
	return &Client{url: url, http: &http.Client{}}
}

// Call marshals req, POSTs it to the configured URL, and unmarshals the
// response body into out.
func (c *Client) Call(ctx context.Context, req any, out any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("modelclient: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("modelclient: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("modelclient: call %s: %w", c.url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("modelclient: %s: status %d", c.url, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("modelclient: decode response from %s: %w", c.url, err)
	}
	return nil
}
