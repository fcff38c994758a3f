package vecstore

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"github.com/openai/openai-go/v3"

	"github.com/lidco/lidco/pkg/providers"
)

// Embedder generates embedding vectors from text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

const DefaultEmbeddingModel = "text-embedding-3-small"

// OpenAIEmbedder calls the embeddings endpoint of an OpenAI-compatible API
// through the official SDK. Transient failures go through the provider
// retry policy.
type OpenAIEmbedder struct {
	client *openai.Client
	model  string
	retry  *providers.RetryPolicy
}

// NewOpenAIEmbedder wraps client. A nil retry uses the default policy.
func NewOpenAIEmbedder(client *openai.Client, model string, retry *providers.RetryPolicy) *OpenAIEmbedder {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	if retry == nil {
		retry = providers.DefaultRetryPolicy()
	}
	return &OpenAIEmbedder{client: client, model: model, retry: retry}
}

// Embed sends all texts in one batch request and returns their embeddings
// in input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := providers.Retry(ctx, e.retry, func(ctx context.Context) (*openai.CreateEmbeddingResponse, error) {
		return e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
			Model: openai.EmbeddingModel(e.model),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("embed %d texts: %w", len(texts), err)
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || int(d.Index) >= len(out) {
			continue
		}
		vec := make([]float32, len(d.Embedding))
		for i, v := range d.Embedding {
			vec[i] = float32(v)
		}
		out[d.Index] = vec
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("embedding response missing index %d", i)
		}
	}
	return out, nil
}

// HashEmbedder is an offline embedder that hashes word tokens into a
// fixed number of buckets. It needs no network and gives usable lexical
// similarity for small projects.
type HashEmbedder struct {
	Dims int
}

func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashEmbedder{Dims: dims}
}

func (h *HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *HashEmbedder) vector(text string) []float32 {
	vec := make([]float32, h.Dims)
	for _, tok := range tokenize(text) {
		f := fnv.New64a()
		f.Write([]byte(tok))
		sum := f.Sum64()
		bucket := int(sum % uint64(h.Dims))
		if sum&(1<<63) != 0 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}

// tokenize lowercases text and splits it into identifier-like words,
// also splitting camelCase and snake_case parts.
func tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var out []string
	for _, f := range fields {
		start := 0
		runes := []rune(f)
		for i := 1; i < len(runes); i++ {
			if unicode.IsUpper(runes[i]) && unicode.IsLower(runes[i-1]) {
				out = append(out, strings.ToLower(string(runes[start:i])))
				start = i
			}
		}
		out = append(out, strings.ToLower(string(runes[start:])))
	}
	return out
}
