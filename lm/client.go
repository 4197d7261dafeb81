package lm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// DefaultServer is where the local inference server listens.
const DefaultServer = "http://127.0.0.1:8080"

// Client implements Model against an inference server's /v1/score and
// /v1/generate routes.
type Client struct {
	base   string
	client *http.Client
}

func NewClient(base string) *Client {
	if base == "" {
		base = DefaultServer
	}
	return &Client{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: 120 * time.Second},
	}
}

type scoreRequest struct {
	Text      string `json:"text"`
	MaxTokens int    `json:"max_tokens"`
}

type generateRequest struct {
	Prompt       string  `json:"prompt"`
	MaxNewTokens int     `json:"max_new_tokens"`
	Temperature  float64 `json:"temperature"`
	TopP         float64 `json:"top_p"`
}

type generateResponse struct {
	Text string `json:"text"`
}

func (c *Client) Score(ctx context.Context, text string,
	maxTokens int) (Score, error) {
	var score Score
	err := c.post(ctx, "/v1/score",
		scoreRequest{Text: text, MaxTokens: maxTokens}, &score)
	return score, err
}

func (c *Client) Generate(ctx context.Context, prompt string,
	opts GenOpts) (string, error) {
	var resp generateResponse
	err := c.post(ctx, "/v1/generate", generateRequest{
		Prompt:       prompt,
		MaxNewTokens: opts.MaxNewTokens,
		Temperature:  opts.Temperature,
		TopP:         opts.TopP,
	}, &resp)
	return resp.Text, err
}

func (c *Client) post(ctx context.Context, route string,
	payload interface{}, result interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "encoding request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.base+route, bytes.NewReader(body))
	if err != nil {
		return errors.Wrapf(err, "building %s request", route)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "POST %s", route)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("POST %s: %s: %s",
			route, resp.Status, bytes.TrimSpace(snippet))
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return errors.Wrapf(err, "decoding %s response", route)
	}
	return nil
}
