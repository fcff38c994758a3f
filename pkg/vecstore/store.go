// Package vecstore indexes project files into embedding chunks and serves
// similarity search for retrieval-augmented prompts. Chunks live either in
// a local gob-persisted store or in a Qdrant collection.
package vecstore

import (
	"context"
	"encoding/gob"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Chunk is a slice of a source file with its embedding vector.
type Chunk struct {
	ID        string
	Text      string
	Source    string // project-relative path, slash separated
	Language  string
	Kind      string // block | section
	Name      string // best-effort symbol or heading name
	StartLine int
	EndLine   int
	Embedding []float32
	UpdatedAt time.Time
}

// Result is a search hit with its cosine similarity.
type Result struct {
	Chunk
	Score float32
}

// Backend stores chunks and answers nearest-neighbour queries.
type Backend interface {
	Upsert(ctx context.Context, chunks []Chunk) error
	// DeleteBySource removes every chunk of source and returns how many
	// were removed.
	DeleteBySource(ctx context.Context, source string) (int, error)
	Search(ctx context.Context, query []float32, topK int) ([]Result, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// VectorStore is an in-memory Backend with gob persistence.
type VectorStore struct {
	path   string
	chunks []Chunk
	mu     sync.RWMutex
}

var _ Backend = (*VectorStore)(nil)

// NewVectorStore creates a store that persists to path. An empty path
// keeps the store in memory only.
func NewVectorStore(path string) *VectorStore {
	return &VectorStore{path: path}
}

// Load reads the store from disk. A missing or corrupt file leaves the
// store empty.
func (vs *VectorStore) Load() error {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	if vs.path == "" {
		return nil
	}
	f, err := os.Open(vs.path)
	if err != nil {
		if os.IsNotExist(err) {
			vs.chunks = nil
			return nil
		}
		return err
	}
	defer f.Close()

	var chunks []Chunk
	if err := gob.NewDecoder(f).Decode(&chunks); err != nil {
		vs.chunks = nil
		return nil
	}
	vs.chunks = chunks
	return nil
}

// Save writes the store to disk.
func (vs *VectorStore) Save() error {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	if vs.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(vs.path), 0o755); err != nil {
		return err
	}
	tmp := vs.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(vs.chunks); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, vs.path)
}

// Search returns the topK chunks most similar to query, best first.
func (vs *VectorStore) Search(_ context.Context, query []float32, topK int) ([]Result, error) {
	vs.mu.RLock()
	defer vs.mu.RUnlock()

	if len(vs.chunks) == 0 || topK <= 0 {
		return nil, nil
	}

	results := make([]Result, 0, len(vs.chunks))
	for _, c := range vs.chunks {
		if len(c.Embedding) == 0 {
			continue
		}
		results = append(results, Result{Chunk: c, Score: cosine(query, c.Embedding)})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if topK > len(results) {
		topK = len(results)
	}
	return results[:topK], nil
}

// Upsert adds or replaces chunks by ID.
func (vs *VectorStore) Upsert(_ context.Context, chunks []Chunk) error {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	idx := make(map[string]int, len(vs.chunks))
	for i, c := range vs.chunks {
		idx[c.ID] = i
	}

	for _, c := range chunks {
		if i, ok := idx[c.ID]; ok {
			vs.chunks[i] = c
		} else {
			idx[c.ID] = len(vs.chunks)
			vs.chunks = append(vs.chunks, c)
		}
	}
	return nil
}

func (vs *VectorStore) DeleteBySource(_ context.Context, source string) (int, error) {
	vs.mu.Lock()
	defer vs.mu.Unlock()

	filtered := vs.chunks[:0]
	for _, c := range vs.chunks {
		if c.Source != source {
			filtered = append(filtered, c)
		}
	}
	removed := len(vs.chunks) - len(filtered)
	vs.chunks = filtered
	return removed, nil
}

func (vs *VectorStore) Count(context.Context) (int, error) {
	return vs.Len(), nil
}

func (vs *VectorStore) Clear(context.Context) error {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	vs.chunks = nil
	return nil
}

// Len returns the number of chunks in the store.
func (vs *VectorStore) Len() int {
	vs.mu.RLock()
	defer vs.mu.RUnlock()
	return len(vs.chunks)
}

// cosine computes cosine similarity between two vectors.
func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return float32(dot / denom)
}
