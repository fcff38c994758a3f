package vecstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/lidco/lidco/pkg/logger"
)

const (
	DefaultMaxResults = 10
	embedBatchSize    = 64
	maxIndexFileBytes = 512 * 1024
)

// Retriever indexes a project into a Backend and renders search hits as
// prompt context.
type Retriever struct {
	backend   Backend
	embedder  Embedder
	root      string
	chunkSize int
	overlap   int
}

type RetrieverOption func(*Retriever)

func WithChunking(size, overlap int) RetrieverOption {
	return func(r *Retriever) {
		if size > 0 {
			r.chunkSize = size
		}
		if overlap >= 0 {
			r.overlap = overlap
		}
	}
}

func NewRetriever(backend Backend, embedder Embedder, root string, opts ...RetrieverOption) *Retriever {
	abs, err := filepath.Abs(root)
	if err != nil {
		abs = root
	}
	r := &Retriever{
		backend:   backend,
		embedder:  embedder,
		root:      abs,
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Retriever) Root() string { return r.root }

// relSource turns path into the slash-separated source key used for
// chunks, relative to the project root when possible.
func (r *Retriever) relSource(path string) (abs, source string) {
	abs = path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(r.root, abs)
	}
	abs = filepath.Clean(abs)
	if rel, err := filepath.Rel(r.root, abs); err == nil && !strings.HasPrefix(rel, "..") {
		return abs, filepath.ToSlash(rel)
	}
	return abs, filepath.ToSlash(abs)
}

// Index walks dir and (re)indexes every supported file. It returns the
// number of chunks stored.
func (r *Retriever) Index(ctx context.Context, dir string) (int, error) {
	if dir == "" {
		dir = r.root
	}
	var pending []Chunk
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && SkipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if LanguageFor(path) == "" {
			return nil
		}
		chunks, err := r.chunkFile(path)
		if err != nil {
			logger.WarnCF("vecstore", "Skipping unreadable file", map[string]any{
				"path":  path,
				"error": err.Error(),
			})
			return nil
		}
		pending = append(pending, chunks...)
		return ctx.Err()
	})
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		logger.WarnCF("vecstore", "No chunks found", map[string]any{"dir": dir})
		return 0, nil
	}
	if err := r.store(ctx, pending); err != nil {
		return 0, err
	}
	if err := r.persist(); err != nil {
		return 0, err
	}
	logger.InfoCF("vecstore", "Project indexed", map[string]any{
		"dir":    dir,
		"chunks": len(pending),
	})
	return len(pending), nil
}

func (r *Retriever) chunkFile(path string) ([]Chunk, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxIndexFileBytes {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	_, source := r.relSource(path)
	return ChunkFile(source, string(data), r.chunkSize, r.overlap), nil
}

// store embeds chunks in batches and upserts them.
func (r *Retriever) store(ctx context.Context, chunks []Chunk) error {
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		batch := chunks[start:end]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.Text
		}
		vecs, err := r.embedder.Embed(ctx, texts)
		if err != nil {
			return err
		}
		if len(vecs) != len(batch) {
			return fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(batch))
		}
		for i := range batch {
			batch[i].Embedding = vecs[i]
		}
		if err := r.backend.Upsert(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

// UpdateFile re-indexes one file. A file that no longer exists is removed
// from the index. It returns the number of chunks now stored for it.
func (r *Retriever) UpdateFile(ctx context.Context, path string) (int, error) {
	abs, source := r.relSource(path)

	removed, err := r.backend.DeleteBySource(ctx, source)
	if err != nil {
		return 0, err
	}

	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && info.IsDir()) {
		if removed > 0 {
			logger.DebugCF("vecstore", "Removed deleted file from index", map[string]any{"source": source})
			return 0, r.persist()
		}
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	chunks, err := r.chunkFile(abs)
	if err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, r.persist()
	}
	if err := r.store(ctx, chunks); err != nil {
		return 0, err
	}
	if err := r.persist(); err != nil {
		return 0, err
	}
	logger.DebugCF("vecstore", "File re-indexed", map[string]any{
		"source":  source,
		"removed": removed,
		"chunks":  len(chunks),
	})
	return len(chunks), nil
}

// Retrieve returns the best matching chunks for query rendered as a
// "## Relevant Code Context" section, or "" when nothing matches.
func (r *Retriever) Retrieve(ctx context.Context, query string, maxResults int) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", nil
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return "", fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 {
		return "", nil
	}
	results, err := r.backend.Search(ctx, vecs[0], maxResults)
	if err != nil {
		return "", err
	}
	return FormatResults(results), nil
}

func (r *Retriever) Count(ctx context.Context) (int, error) { return r.backend.Count(ctx) }

func (r *Retriever) Clear(ctx context.Context) error {
	if err := r.backend.Clear(ctx); err != nil {
		return err
	}
	logger.InfoCF("vecstore", "Index cleared", nil)
	return r.persist()
}

// persist flushes backends that keep their state on local disk.
func (r *Retriever) persist() error {
	if s, ok := r.backend.(interface{ Save() error }); ok {
		return s.Save()
	}
	return nil
}

// FormatResults renders hits as fenced snippets headed by
// "### <source>:<line> (<kind>: <name>)".
func FormatResults(results []Result) string {
	if len(results) == 0 {
		return ""
	}
	sections := []string{"## Relevant Code Context\n"}
	for _, res := range results {
		c := res.Chunk
		sections = append(sections,
			fmt.Sprintf("### %s:%d (%s: %s)", c.Source, c.StartLine, c.Kind, c.Name),
			"```"+c.Language,
			strings.TrimRight(c.Text, " \t\n"),
			"```\n",
		)
	}
	return strings.Join(sections, "\n")
}
