package chat

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

const systemPrompt = `You are the help assistant of a lost and found platform that reunites missing people with their families using face recognition.
Users report a lost person or upload a found person with a photo. Before upload they crop the photo to a square around the face.
The face-recognition service compares the photo with existing lost, found and live feed records and users are notified of matches by email.
Photos must be JPG, PNG or WebP and under 5MB, with a clear, well-lit face.
Answer briefly and kindly. Do not give medical, legal or personal advice. Offer to help with another question at the end.`

// OllamaCompleter answers through an Ollama server.
type OllamaCompleter struct {
	client  *api.Client
	Model   string
	Timeout time.Duration
}

// NewOllamaCompleter connects to the Ollama server at rawURL, e.g.
// "http://localhost:11434".
func NewOllamaCompleter(rawURL, model string) (*OllamaCompleter, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid ollama url %q", rawURL)
	}
	base := &url.URL{Scheme: u.Scheme, Host: u.Host}
	return &OllamaCompleter{
		client:  api.NewClient(base, http.DefaultClient),
		Model:   model,
		Timeout: 60 * time.Second,
	}, nil
}

func (c *OllamaCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	if _, ok := ctx.Deadline(); !ok && c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	stream := false
	req := &api.GenerateRequest{
		Model:  c.Model,
		System: systemPrompt,
		Prompt: prompt,
		Stream: &stream,
	}

	var out strings.Builder
	err := c.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		out.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return out.String(), nil
}
