// Package elastic implements the index contract against an
// Elasticsearch-compatible HTTP API: NDJSON _bulk writes with per-item
// results and a scroll-based title export.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/cognicore/korpus/pkg/korpus/index"
)

// mapping is the sentence-document schema: keyword title for exact
// aggregation, full-text sentence body, nested token objects.
const mapping = `{
  "mappings": {
    "properties": {
      "title": {"type": "keyword"},
      "sentence_id": {"type": "keyword"},
      "sentence_text": {"type": "text"},
      "tokens": {
        "type": "nested",
        "properties": {
          "id": {"type": "integer"},
          "text": {"type": "text"},
          "lemma": {"type": "keyword"},
          "upos": {"type": "keyword"},
          "xpos": {"type": "keyword"},
          "feats": {"type": "keyword"},
          "head": {"type": "integer"},
          "deprel": {"type": "keyword"},
          "start_char": {"type": "integer"},
          "end_char": {"type": "integer"}
        }
      }
    }
  }
}`

const (
	scrollKeepAlive = "2m"
	exportPageSize  = 1000
)

// Client talks to one index of one cluster.
type Client struct {
	baseURL    string
	indexName  string
	httpClient *http.Client
}

// New creates a Client for the cluster at baseURL and the given index.
// A nil httpClient falls back to http.DefaultClient.
func New(baseURL, indexName string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		indexName:  indexName,
		httpClient: httpClient,
	}
}

// Close implements index.Index; the HTTP client owns no resources here.
func (c *Client) Close() error { return nil }

// Ping checks cluster reachability.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/", nil, "")
	if err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ping: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// EnsureIndex creates the index with the sentence mapping if it does not
// exist yet. Existing data is never touched.
func (c *Client) EnsureIndex(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodHead, "/"+c.indexName, nil, "")
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	resp, err = c.do(ctx, http.MethodPut, "/"+c.indexName, strings.NewReader(mapping), "application/json")
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("create index: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// DeleteIndex drops the index. A 404 is fine: nothing to drop.
func (c *Client) DeleteIndex(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodDelete, "/"+c.indexName, nil, "")
	if err != nil {
		return fmt.Errorf("delete index: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("delete index: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// Count returns the stored document count.
func (c *Client) Count(ctx context.Context) (int64, error) {
	resp, err := c.do(ctx, http.MethodGet, "/"+c.indexName+"/_count", nil, "")
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	defer resp.Body.Close()

	var payload struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return payload.Count, nil
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

// BulkUpsert submits the whole batch as one _bulk call and inspects the
// per-item response. Failed items are reported, not retried.
func (c *Client) BulkUpsert(ctx context.Context, docs []index.SentenceDocument) (index.BulkResult, error) {
	if len(docs) == 0 {
		return index.BulkResult{}, nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, doc := range docs {
		meta := map[string]map[string]string{
			"index": {"_index": c.indexName, "_id": doc.ID},
		}
		if err := enc.Encode(meta); err != nil {
			return index.BulkResult{}, fmt.Errorf("bulk encode: %w", err)
		}
		if err := enc.Encode(doc); err != nil {
			return index.BulkResult{}, fmt.Errorf("bulk encode: %w", err)
		}
	}

	resp, err := c.do(ctx, http.MethodPost, "/_bulk", &body, "application/x-ndjson")
	if err != nil {
		return index.BulkResult{}, fmt.Errorf("bulk: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return index.BulkResult{}, fmt.Errorf("bulk: unexpected status %d", resp.StatusCode)
	}

	var payload bulkResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return index.BulkResult{}, fmt.Errorf("bulk decode: %w", err)
	}

	var result index.BulkResult
	for _, item := range payload.Items {
		for _, op := range item {
			if op.Error != nil {
				result.Failed = append(result.Failed, index.ItemError{
					ID:     op.ID,
					Reason: fmt.Sprintf("%s: %s", op.Error.Type, op.Error.Reason),
				})
			} else {
				result.Indexed++
			}
		}
	}
	return result, nil
}

type searchResponse struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Hits []struct {
			Source struct {
				Title string `json:"title"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Titles exports every distinct title via the scroll API. The result is a
// point-in-time snapshot; writes by other processes after this call are
// not visible to the dedup pass.
func (c *Client) Titles(ctx context.Context) (map[string]struct{}, error) {
	titles := make(map[string]struct{})

	query := fmt.Sprintf(`{"query":{"match_all":{}},"_source":["title"],"size":%d}`, exportPageSize)
	path := fmt.Sprintf("/%s/_search?scroll=%s", c.indexName, scrollKeepAlive)
	resp, err := c.do(ctx, http.MethodPost, path, strings.NewReader(query), "application/json")
	if err != nil {
		return nil, fmt.Errorf("title export: %w", err)
	}

	var page searchResponse
	err = json.NewDecoder(resp.Body).Decode(&page)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("title export: %w", err)
	}

	scrollID := page.ScrollID
	for len(page.Hits.Hits) > 0 {
		for _, hit := range page.Hits.Hits {
			titles[hit.Source.Title] = struct{}{}
		}

		scrollBody := fmt.Sprintf(`{"scroll":%q,"scroll_id":%q}`, scrollKeepAlive, scrollID)
		resp, err := c.do(ctx, http.MethodPost, "/_search/scroll", strings.NewReader(scrollBody), "application/json")
		if err != nil {
			return nil, fmt.Errorf("title export scroll: %w", err)
		}
		page = searchResponse{}
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("title export scroll: %w", err)
		}
		if page.ScrollID != "" {
			scrollID = page.ScrollID
		}
	}

	// Clearing the scroll context is best effort.
	if scrollID != "" {
		body := fmt.Sprintf(`{"scroll_id":%q}`, scrollID)
		if resp, err := c.do(ctx, http.MethodDelete, "/_search/scroll", strings.NewReader(body), "application/json"); err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
	}

	return titles, nil
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	u, err := url.Parse(c.baseURL + path)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return c.httpClient.Do(req)
}
