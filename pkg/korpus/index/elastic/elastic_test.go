package elastic

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cognicore/korpus/pkg/korpus/annotate"
	"github.com/cognicore/korpus/pkg/korpus/index"
)

func sentenceDoc(title string, idx int) index.SentenceDocument {
	return index.NewSentenceDocument(title, idx, annotate.Sentence{
		{ID: 1, Text: "Berlin"}, {ID: 2, Text: "wächst"}, {ID: 3, Text: "."},
	})
}

func TestBulkUpsertPartialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/_bulk", r.URL.Path)
		require.Equal(t, "application/x-ndjson", r.Header.Get("Content-Type"))

		// Ten docs: NDJSON body has 20 lines (meta + source per doc).
		dec := json.NewDecoder(r.Body)
		var ids []string
		for {
			var line map[string]json.RawMessage
			if err := dec.Decode(&line); err != nil {
				break
			}
			if raw, ok := line["index"]; ok {
				var meta struct {
					ID string `json:"_id"`
				}
				require.NoError(t, json.Unmarshal(raw, &meta))
				ids = append(ids, meta.ID)
			}
		}
		require.Len(t, ids, 10)

		// Item #7 (zero-based index 6) fails, everything else succeeds.
		var items []string
		for i, id := range ids {
			if i == 6 {
				items = append(items, fmt.Sprintf(
					`{"index":{"_id":%q,"status":400,"error":{"type":"mapper_parsing_exception","reason":"bad token"}}}`, id))
				continue
			}
			items = append(items, fmt.Sprintf(`{"index":{"_id":%q,"status":201}}`, id))
		}
		fmt.Fprintf(w, `{"errors":true,"items":[%s]}`, strings.Join(items, ","))
	}))
	defer srv.Close()

	c := New(srv.URL, "wiki_docs_de", nil)

	docs := make([]index.SentenceDocument, 10)
	for i := range docs {
		docs[i] = sentenceDoc("Berlin", i)
	}

	res, err := c.BulkUpsert(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, 9, res.Indexed)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, index.DocID("Berlin", 6), res.Failed[0].ID)
	assert.Contains(t, res.Failed[0].Reason, "mapper_parsing_exception")
}

func TestBulkUpsertEmptyBatch(t *testing.T) {
	c := New("http://unused.test", "wiki_docs_de", nil)
	res, err := c.BulkUpsert(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, res.Indexed)
	assert.Empty(t, res.Failed)
}

func TestTitlesScrollsAllPages(t *testing.T) {
	var scrollCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/wiki_docs_de/_search"):
			fmt.Fprint(w, `{"_scroll_id":"s1","hits":{"hits":[
				{"_source":{"title":"Berlin"}},
				{"_source":{"title":"Hamburg"}}
			]}}`)
		case r.URL.Path == "/_search/scroll" && r.Method == http.MethodPost:
			scrollCalls++
			if scrollCalls == 1 {
				fmt.Fprint(w, `{"_scroll_id":"s2","hits":{"hits":[
					{"_source":{"title":"München"}},
					{"_source":{"title":"Berlin"}}
				]}}`)
				return
			}
			fmt.Fprint(w, `{"_scroll_id":"s2","hits":{"hits":[]}}`)
		case r.URL.Path == "/_search/scroll" && r.Method == http.MethodDelete:
			fmt.Fprint(w, `{"succeeded":true}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "wiki_docs_de", nil)
	titles, err := c.Titles(context.Background())
	require.NoError(t, err)

	assert.Len(t, titles, 3)
	for _, want := range []string{"Berlin", "Hamburg", "München"} {
		assert.Contains(t, titles, want)
	}
}

func TestEnsureIndexCreatesOnlyWhenMissing(t *testing.T) {
	var created int
	exists := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			if exists {
				w.WriteHeader(http.StatusOK)
				return
			}
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			created++
			exists = true
			fmt.Fprint(w, `{"acknowledged":true}`)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "wiki_docs_de", nil)
	require.NoError(t, c.EnsureIndex(context.Background()))
	require.NoError(t, c.EnsureIndex(context.Background()))
	assert.Equal(t, 1, created, "second EnsureIndex must preserve the existing index")
}

func TestDeleteIndexToleratesMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := New(srv.URL, "wiki_docs_de", nil)
	assert.NoError(t, c.DeleteIndex(context.Background()))
}

func TestCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/wiki_docs_de/_count", r.URL.Path)
		fmt.Fprint(w, `{"count":42}`)
	}))
	defer srv.Close()

	c := New(srv.URL, "wiki_docs_de", nil)
	n, err := c.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
}

func TestDocIDFormat(t *testing.T) {
	assert.Equal(t, "Berlin_0000", index.DocID("Berlin", 0))
	assert.Equal(t, "Berlin_0042", index.DocID("Berlin", 42))
}
