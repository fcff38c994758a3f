package vecstore

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lidco/lidco/pkg/providers"
	"github.com/lidco/lidco/pkg/providers/openai_sdk"
)

// Indices arrive out of order on purpose.
const okEmbeddings = `{
	"object":"list",
	"data":[
		{"object":"embedding","index":1,"embedding":[0.5,0.25]},
		{"object":"embedding","index":0,"embedding":[1,0]}
	],
	"model":"text-embedding-3-small",
	"usage":{"prompt_tokens":4,"total_tokens":4}
}`

func fastRetry() *providers.RetryPolicy {
	return &providers.RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func TestOpenAIEmbedder_OrdersByIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "text-embedding-3-small", body["model"])
		assert.Equal(t, []any{"first", "second"}, body["input"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(okEmbeddings))
	}))
	defer server.Close()

	client := openai_sdk.NewProvider("test-key", server.URL, "").Client()
	e := NewOpenAIEmbedder(client, "", fastRetry())

	vecs, err := e.Embed(t.Context(), []string{"first", "second"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0.5, 0.25}}, vecs)
}

func TestOpenAIEmbedder_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
			return
		}
		_, _ = w.Write([]byte(okEmbeddings))
	}))
	defer server.Close()

	client := openai_sdk.NewProvider("test-key", server.URL, "").Client()
	vecs, err := NewOpenAIEmbedder(client, "m", fastRetry()).Embed(t.Context(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vecs, 2)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOpenAIEmbedder_BadRequestIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad input","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	client := openai_sdk.NewProvider("test-key", server.URL, "").Client()
	_, err := NewOpenAIEmbedder(client, "m", fastRetry()).Embed(t.Context(), []string{"a"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embed 1 texts")
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIEmbedder_MissingIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(okEmbeddings))
	}))
	defer server.Close()

	client := openai_sdk.NewProvider("test-key", server.URL, "").Client()
	_, err := NewOpenAIEmbedder(client, "m", fastRetry()).Embed(t.Context(), []string{"a", "b", "c"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing index 2")
}

func TestOpenAIEmbedder_EmptyInput(t *testing.T) {
	vecs, err := NewOpenAIEmbedder(nil, "", nil).Embed(t.Context(), nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestHashEmbedder_Similarity(t *testing.T) {
	e := NewHashEmbedder(0)
	assert.Equal(t, 256, e.Dims)

	vecs, err := e.Embed(t.Context(), []string{
		"func parseConfig(path string) error",
		"parse the config file at path",
		"render html template for dashboard",
		"",
	})
	require.NoError(t, err)
	require.Len(t, vecs, 4)

	related := cosine(vecs[0], vecs[1])
	unrelated := cosine(vecs[0], vecs[2])
	assert.Greater(t, related, unrelated)
	assert.InDelta(t, 1.0, cosine(vecs[0], vecs[0]), 1e-5)

	for _, v := range vecs[3] {
		assert.Zero(t, v)
	}
}

func TestTokenize(t *testing.T) {
	assert.Equal(t,
		[]string{"parse", "config", "file", "read", "all", "v2"},
		tokenize("parseConfig(file_read) All v2"),
	)
}
