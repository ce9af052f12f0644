package embedding

import (
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Client wraps the OpenAI client shared by embedding generation and the LLM gateway.
type Client struct {
	client *openai.Client
}

// NewClient creates a new OpenAI client authenticated with apiKey.
// Extra request options (base URL, retries) are passed through to openai-go.
func NewClient(apiKey string, opts ...option.RequestOption) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}

	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := openai.NewClient(opts...)

	return &Client{client: &client}, nil
}

// Client returns the underlying OpenAI client for use in other packages (e.g., the LLM gateway).
func (c *Client) Client() *openai.Client {
	return c.client
}
