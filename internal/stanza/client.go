// Package stanza is an HTTP client for the external annotation service
// (a Stanza-style tokenize/lemma/pos/depparse pipeline behind a small
// JSON endpoint).
package stanza

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cognicore/korpus/pkg/korpus/annotate"
)

// Client calls the annotation endpoint. BaseURL points at the service
// root; the annotate path is fixed.
type Client struct {
	BaseURL  string
	Language string

	// Timeout bounds a single annotation call. Zero means no timeout,
	// matching the baseline design; a stuck call then stalls only the
	// worker that issued it.
	Timeout time.Duration

	HTTPClient *http.Client
}

type annotateRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

type annotateResponse struct {
	Sentences [][]annotate.Token `json:"sentences"`
	Error     string             `json:"error"`
}

// Annotate implements annotate.Engine. An empty sentence list is a valid
// response; transport errors, non-2xx statuses and error payloads are not.
func (c *Client) Annotate(ctx context.Context, text string) ([]annotate.Sentence, error) {
	if c.BaseURL == "" {
		return nil, fmt.Errorf("stanza: base URL required")
	}

	reqBody, err := json.Marshal(annotateRequest{Text: text, Language: c.Language})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/annotate", bytes.NewReader(reqBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("stanza: unexpected status %d", resp.StatusCode)
	}

	var payload annotateResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	if payload.Error != "" {
		return nil, fmt.Errorf("stanza: %s", payload.Error)
	}

	sentences := make([]annotate.Sentence, len(payload.Sentences))
	for i, toks := range payload.Sentences {
		sentences[i] = annotate.Sentence(toks)
	}
	return sentences, nil
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return &http.Client{Timeout: c.Timeout}
}
