package vecstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQdrant struct {
	exists  bool
	created []*qdrant.CreateCollection
	dropped int
	upserts []*qdrant.UpsertPoints
	deletes []*qdrant.DeletePoints
	counts  []*qdrant.CountPoints
	queries []*qdrant.QueryPoints

	countResult uint64
	queryResult []*qdrant.ScoredPoint
	existsErr   error
	closed      bool
}

func (f *fakeQdrant) CollectionExists(context.Context, string) (bool, error) {
	return f.exists, f.existsErr
}

func (f *fakeQdrant) CreateCollection(_ context.Context, req *qdrant.CreateCollection) error {
	f.created = append(f.created, req)
	f.exists = true
	return nil
}

func (f *fakeQdrant) DeleteCollection(context.Context, string) error {
	f.dropped++
	f.exists = false
	return nil
}

func (f *fakeQdrant) Upsert(_ context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	f.upserts = append(f.upserts, req)
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeQdrant) Delete(_ context.Context, req *qdrant.DeletePoints) (*qdrant.UpdateResult, error) {
	f.deletes = append(f.deletes, req)
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeQdrant) Count(_ context.Context, req *qdrant.CountPoints) (uint64, error) {
	f.counts = append(f.counts, req)
	return f.countResult, nil
}

func (f *fakeQdrant) Query(_ context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.queries = append(f.queries, req)
	return f.queryResult, nil
}

func (f *fakeQdrant) Close() error {
	f.closed = true
	return nil
}

func TestQdrantBackend_UpsertCreatesCollectionOnce(t *testing.T) {
	fake := &fakeQdrant{}
	b := newQdrantBackend(fake, "")

	c := Chunk{
		ID: "abc123", Text: "func main() {}", Source: "main.go", Language: "go",
		Kind: KindBlock, Name: "main", StartLine: 3, EndLine: 5,
		Embedding: []float32{0.1, 0.2, 0.3}, UpdatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, b.Upsert(t.Context(), []Chunk{c}))
	require.NoError(t, b.Upsert(t.Context(), []Chunk{c}))

	require.Len(t, fake.created, 1)
	assert.Equal(t, "lidco", fake.created[0].CollectionName)
	params := fake.created[0].GetVectorsConfig().GetParams()
	assert.Equal(t, uint64(3), params.GetSize())
	assert.Equal(t, qdrant.Distance_Cosine, params.GetDistance())

	require.Len(t, fake.upserts, 2)
	pts := fake.upserts[0].Points
	require.Len(t, pts, 1)
	assert.Equal(t, pointID("abc123"), pts[0].GetId().GetUuid())
	assert.Equal(t, pointID("abc123"), pointID("abc123"))

	got := chunkFromPayload(pts[0].Payload)
	assert.True(t, c.UpdatedAt.Equal(got.UpdatedAt))
	c.Embedding, c.UpdatedAt, got.UpdatedAt = nil, time.Time{}, time.Time{}
	assert.Equal(t, c, got)
}

func TestQdrantBackend_UpsertEmptyIsNoop(t *testing.T) {
	fake := &fakeQdrant{}
	require.NoError(t, newQdrantBackend(fake, "c").Upsert(t.Context(), nil))
	assert.Empty(t, fake.created)
	assert.Empty(t, fake.upserts)
}

func TestQdrantBackend_DeleteBySource(t *testing.T) {
	fake := &fakeQdrant{exists: true, countResult: 4}
	b := newQdrantBackend(fake, "proj")

	n, err := b.DeleteBySource(t.Context(), "pkg/a.go")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	require.Len(t, fake.deletes, 1)
	assert.Equal(t, "proj", fake.deletes[0].CollectionName)

	cond := fake.counts[0].GetFilter().GetMust()[0].GetField()
	assert.Equal(t, "source", cond.GetKey())
	assert.Equal(t, "pkg/a.go", cond.GetMatch().GetKeyword())
}

func TestQdrantBackend_DeleteBySourceNothingToDelete(t *testing.T) {
	fake := &fakeQdrant{exists: true}
	n, err := newQdrantBackend(fake, "proj").DeleteBySource(t.Context(), "x.go")
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, fake.deletes)
}

func TestQdrantBackend_MissingCollectionIsEmpty(t *testing.T) {
	fake := &fakeQdrant{}
	b := newQdrantBackend(fake, "proj")

	n, err := b.DeleteBySource(t.Context(), "x.go")
	require.NoError(t, err)
	assert.Zero(t, n)

	results, err := b.Search(t.Context(), []float32{1}, 5)
	require.NoError(t, err)
	assert.Nil(t, results)

	count, err := b.Count(t.Context())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, fake.counts)
	assert.Empty(t, fake.queries)
}

func TestQdrantBackend_CollectionCheckFailure(t *testing.T) {
	fake := &fakeQdrant{existsErr: errors.New("unavailable")}
	results, err := newQdrantBackend(fake, "proj").Search(t.Context(), []float32{1}, 5)
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestQdrantBackend_Search(t *testing.T) {
	payload := qdrant.NewValueMap(map[string]any{
		"chunk_id":   "id1",
		"content":    "hello",
		"source":     "a.md",
		"language":   "markdown",
		"kind":       KindSection,
		"name":       "Intro",
		"start_line": int64(7),
		"end_line":   int64(9),
	})
	fake := &fakeQdrant{
		exists:      true,
		queryResult: []*qdrant.ScoredPoint{{Payload: payload, Score: 0.9}},
	}
	b := newQdrantBackend(fake, "proj")

	results, err := b.Search(t.Context(), []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "id1", results[0].ID)
	assert.Equal(t, "a.md", results[0].Source)
	assert.Equal(t, 7, results[0].StartLine)
	assert.Equal(t, 9, results[0].EndLine)
	assert.Equal(t, "Intro", results[0].Name)
	assert.InDelta(t, 0.9, results[0].Score, 1e-6)

	require.Len(t, fake.queries, 1)
	assert.Equal(t, uint64(3), fake.queries[0].GetLimit())
}

func TestQdrantBackend_ClearDropsCollection(t *testing.T) {
	fake := &fakeQdrant{exists: true}
	b := newQdrantBackend(fake, "proj")

	require.NoError(t, b.Clear(t.Context()))
	assert.Equal(t, 1, fake.dropped)

	require.NoError(t, b.Upsert(t.Context(), []Chunk{{ID: "a", Embedding: []float32{1, 2}}}))
	assert.Len(t, fake.created, 1, "collection is recreated after clear")

	require.NoError(t, b.Close())
	assert.True(t, fake.closed)
}
