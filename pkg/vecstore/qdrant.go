package vecstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/lidco/lidco/pkg/logger"
)

// qdrantClient is the subset of *qdrant.Client the backend uses.
type qdrantClient interface {
	CollectionExists(ctx context.Context, name string) (bool, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	DeleteCollection(ctx context.Context, name string) error
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Delete(ctx context.Context, req *qdrant.DeletePoints) (*qdrant.UpdateResult, error)
	Count(ctx context.Context, req *qdrant.CountPoints) (uint64, error)
	Query(ctx context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Close() error
}

// QdrantConfig locates the collection.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
}

// QdrantBackend stores chunks as points in a Qdrant collection. The
// collection is created lazily with the dimension of the first upsert.
type QdrantBackend struct {
	client     qdrantClient
	collection string

	mu    sync.Mutex
	ready bool
}

var _ Backend = (*QdrantBackend)(nil)

// NewQdrantBackend connects over gRPC.
func NewQdrantBackend(cfg QdrantConfig) (*QdrantBackend, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant at %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return newQdrantBackend(client, cfg.Collection), nil
}

func newQdrantBackend(client qdrantClient, collection string) *QdrantBackend {
	if collection == "" {
		collection = "lidco"
	}
	return &QdrantBackend{client: client, collection: collection}
}

func (b *QdrantBackend) Close() error { return b.client.Close() }

func (b *QdrantBackend) ensureCollection(ctx context.Context, dims int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ready {
		return nil
	}
	exists, err := b.client.CollectionExists(ctx, b.collection)
	if err != nil {
		return fmt.Errorf("check collection %s: %w", b.collection, err)
	}
	if !exists {
		err := b.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: b.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dims),
				Distance: qdrant.Distance_Cosine,
			}),
		})
		if err != nil {
			return fmt.Errorf("create collection %s: %w", b.collection, err)
		}
		logger.InfoCF("vecstore", "Qdrant collection created", map[string]any{
			"collection": b.collection,
			"dims":       dims,
		})
	}
	b.ready = true
	return nil
}

// pointID maps a chunk ID onto the UUID space Qdrant requires.
func pointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("lidco:"+chunkID)).String()
}

func (b *QdrantBackend) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := b.ensureCollection(ctx, len(chunks[0].Embedding)); err != nil {
		return err
	}

	points := make([]*qdrant.PointStruct, 0, len(chunks))
	for _, c := range chunks {
		payload, err := qdrant.TryValueMap(map[string]any{
			"chunk_id":   c.ID,
			"content":    c.Text,
			"source":     c.Source,
			"language":   c.Language,
			"kind":       c.Kind,
			"name":       c.Name,
			"start_line": int64(c.StartLine),
			"end_line":   int64(c.EndLine),
			"updated_at": c.UpdatedAt.UTC().Format(time.RFC3339),
		})
		if err != nil {
			return fmt.Errorf("payload for chunk %s: %w", c.ID, err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(pointID(c.ID)),
			Vectors: qdrant.NewVectors(c.Embedding...),
			Payload: payload,
		})
	}

	wait := true
	_, err := b.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: b.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("qdrant upsert: %w", err)
	}
	return nil
}

func (b *QdrantBackend) sourceFilter(source string) *qdrant.Filter {
	return &qdrant.Filter{Must: []*qdrant.Condition{qdrant.NewMatch("source", source)}}
}

func (b *QdrantBackend) DeleteBySource(ctx context.Context, source string) (int, error) {
	if !b.isReady(ctx) {
		return 0, nil
	}
	exact := true
	n, err := b.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: b.collection,
		Filter:         b.sourceFilter(source),
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant count: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	wait := true
	_, err = b.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: b.collection,
		Wait:           &wait,
		Points:         qdrant.NewPointsSelectorFilter(b.sourceFilter(source)),
	})
	if err != nil {
		return 0, fmt.Errorf("qdrant delete: %w", err)
	}
	return int(n), nil
}

func (b *QdrantBackend) Search(ctx context.Context, query []float32, topK int) ([]Result, error) {
	if topK <= 0 || !b.isReady(ctx) {
		return nil, nil
	}
	limit := uint64(topK)
	points, err := b.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: b.collection,
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query: %w", err)
	}

	results := make([]Result, 0, len(points))
	for _, p := range points {
		results = append(results, Result{Chunk: chunkFromPayload(p.Payload), Score: p.Score})
	}
	return results, nil
}

func (b *QdrantBackend) Count(ctx context.Context) (int, error) {
	if !b.isReady(ctx) {
		return 0, nil
	}
	exact := true
	n, err := b.client.Count(ctx, &qdrant.CountPoints{CollectionName: b.collection, Exact: &exact})
	if err != nil {
		return 0, fmt.Errorf("qdrant count: %w", err)
	}
	return int(n), nil
}

// Clear drops the collection. The next Upsert recreates it.
func (b *QdrantBackend) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	exists, err := b.client.CollectionExists(ctx, b.collection)
	if err != nil {
		return err
	}
	if exists {
		if err := b.client.DeleteCollection(ctx, b.collection); err != nil {
			return fmt.Errorf("drop collection %s: %w", b.collection, err)
		}
	}
	b.ready = false
	return nil
}

// isReady reports whether the collection exists, caching a positive answer.
func (b *QdrantBackend) isReady(ctx context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ready {
		return true
	}
	exists, err := b.client.CollectionExists(ctx, b.collection)
	if err != nil {
		logger.WarnCF("vecstore", "Qdrant collection check failed", map[string]any{"error": err.Error()})
		return false
	}
	b.ready = exists
	return exists
}

func chunkFromPayload(payload map[string]*qdrant.Value) Chunk {
	str := func(k string) string { return payload[k].GetStringValue() }
	num := func(k string) int { return int(payload[k].GetIntegerValue()) }
	c := Chunk{
		ID:        str("chunk_id"),
		Text:      str("content"),
		Source:    str("source"),
		Language:  str("language"),
		Kind:      str("kind"),
		Name:      str("name"),
		StartLine: num("start_line"),
		EndLine:   num("end_line"),
	}
	c.UpdatedAt, _ = time.Parse(time.RFC3339, str("updated_at"))
	return c
}
