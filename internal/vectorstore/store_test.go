package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docanalyzer/internal/model"
)

type staticRows struct {
	rows []model.ChunkSearchRow
}

func (s *staticRows) ListSearchRows(context.Context) ([]model.ChunkSearchRow, error) {
	return s.rows, nil
}

func testEntries() []Entry {
	return []Entry{
		{
			VectorID:   "doc1-chunk0",
			DocumentID: 1,
			ChunkIndex: 0,
			Source:     "guide.txt",
			Content:    "the deployment pipeline builds container images",
			Embedding:  []float32{1, 0, 0},
		},
		{
			VectorID:   "doc1-chunk1",
			DocumentID: 1,
			ChunkIndex: 1,
			Source:     "guide.txt",
			Content:    "rollbacks restore the previous release",
			Embedding:  []float32{0.9, 0.1, 0},
		},
		{
			VectorID:   "doc2-chunk0",
			DocumentID: 2,
			ChunkIndex: 0,
			Source:     "billing.txt",
			Content:    "invoices are generated on the first of the month",
			Embedding:  []float32{0, 1, 0},
		},
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()

	entries := testEntries()
	rows := make([]model.ChunkSearchRow, len(entries))
	for i, e := range entries {
		rows[i] = model.ChunkSearchRow{
			VectorID:   e.VectorID,
			DocumentID: e.DocumentID,
			ChunkIndex: e.ChunkIndex,
			Source:     e.Source,
			Content:    e.Content,
		}
	}

	store, err := NewInMemory("test", &staticRows{rows: rows})
	require.NoError(t, err)
	require.NoError(t, store.Upsert(context.Background(), entries))
	return store
}

func TestSemanticSearchRanksByCosine(t *testing.T) {
	store := newTestStore(t)

	results, err := store.Search(context.Background(), []float32{1, 0, 0}, "", SearchOptions{TopK: 3})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Equal(t, "doc1-chunk0", results[0].VectorID)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-3)
	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i].Similarity, results[i-1].Similarity)
	}
}

func TestSemanticSearchThresholdExcludes(t *testing.T) {
	store := newTestStore(t)

	results, err := store.Search(context.Background(), []float32{1, 0, 0}, "", SearchOptions{TopK: 3, Threshold: 0.5})
	require.NoError(t, err)

	for _, r := range results {
		assert.GreaterOrEqual(t, r.Similarity, 0.5)
		assert.NotEqual(t, "doc2-chunk0", r.VectorID)
	}
}

func TestSemanticSearchClampsTopK(t *testing.T) {
	store := newTestStore(t)

	results, err := store.Search(context.Background(), []float32{1, 0, 0}, "", SearchOptions{TopK: 50})
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestHybridSearchPromotesKeywordMatch(t *testing.T) {
	store := newTestStore(t)

	// semantically the query vector points away from the billing chunk,
	// but the query text only matches it
	opts := SearchOptions{TopK: 3, Threshold: 0.25, Hybrid: true, Alpha: 0.5}
	results, err := store.Search(context.Background(), []float32{1, 0, 0}, "invoices generated month", opts)
	require.NoError(t, err)

	found := false
	for _, r := range results {
		if r.VectorID == "doc2-chunk0" {
			found = true
			assert.GreaterOrEqual(t, r.Similarity, 0.25)
		}
	}
	assert.True(t, found, "keyword-matched chunk should survive the blended threshold")

	// without the keyword side the same threshold drops it
	semOnly, err := store.Search(context.Background(), []float32{1, 0, 0}, "", SearchOptions{TopK: 3, Threshold: 0.25})
	require.NoError(t, err)
	for _, r := range semOnly {
		assert.NotEqual(t, "doc2-chunk0", r.VectorID)
	}
}

func TestHybridSearchDeterministic(t *testing.T) {
	store := newTestStore(t)
	opts := SearchOptions{TopK: 3, Hybrid: true, Alpha: 0.7}

	first, err := store.Search(context.Background(), []float32{1, 0, 0}, "deployment pipeline", opts)
	require.NoError(t, err)
	second, err := store.Search(context.Background(), []float32{1, 0, 0}, "deployment pipeline", opts)
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].VectorID, second[i].VectorID)
		assert.InDelta(t, first[i].Similarity, second[i].Similarity, 1e-9)
	}
}

func TestUpsertIsIdempotentPerVectorID(t *testing.T) {
	store := newTestStore(t)
	require.Equal(t, 3, store.Count())

	require.NoError(t, store.Upsert(context.Background(), testEntries()))
	assert.Equal(t, 3, store.Count())
}

func TestDeleteDocumentRemovesItsChunks(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.DeleteDocument(context.Background(), 1))
	assert.Equal(t, 1, store.Count())

	results, err := store.Search(context.Background(), []float32{1, 0, 0}, "", SearchOptions{TopK: 3})
	require.NoError(t, err)
	for _, r := range results {
		assert.Equal(t, uint(2), r.DocumentID)
	}
}

func TestSearchEmptyStore(t *testing.T) {
	store, err := NewInMemory("empty", &staticRows{})
	require.NoError(t, err)

	results, err := store.Search(context.Background(), []float32{1, 0, 0}, "anything", SearchOptions{TopK: 5, Hybrid: true, Alpha: 0.7})
	require.NoError(t, err)
	assert.Empty(t, results)
}
