package vectorstore

import (
	"context"
	"fmt"
	"runtime"
	"strconv"

	chromem "github.com/philippgille/chromem-go"

	"docanalyzer/internal/model"
)

// Entry is one chunk to index: a pre-computed embedding plus the
// relational identity needed to cite it later.
type Entry struct {
	VectorID   string
	DocumentID uint
	ChunkIndex int
	Source     string
	Content    string
	Embedding  []float32
}

// SearchResult is one retrieved chunk with its relevance score. For
// hybrid queries Similarity is the blended score, otherwise raw cosine
// similarity.
type SearchResult struct {
	VectorID   string
	DocumentID uint
	ChunkIndex int
	Source     string
	Content    string
	Similarity float64
}

// SearchOptions control one retrieval call.
type SearchOptions struct {
	TopK      int
	Threshold float64
	// Hybrid blends keyword overlap into the ranking with weight
	// (1 - Alpha); Alpha weights the semantic side.
	Hybrid bool
	Alpha  float64
}

// KeywordSource supplies the full chunk inventory for keyword scoring.
// The relational chunk table implements it.
type KeywordSource interface {
	ListSearchRows(ctx context.Context) ([]model.ChunkSearchRow, error)
}

// Store indexes chunk embeddings in an embedded chromem collection and
// answers semantic and hybrid retrieval queries over them.
type Store struct {
	db       *chromem.DB
	col      *chromem.Collection
	keywords KeywordSource
}

// New opens (or creates) a persistent store under persistDir.
func New(persistDir, collection string, keywords KeywordSource) (*Store, error) {
	db, err := chromem.NewPersistentDB(persistDir, true)
	if err != nil {
		return nil, fmt.Errorf("open vector db failed: %w", err)
	}
	return newStore(db, collection, keywords)
}

// NewInMemory builds a store without persistence. Used in tests and
// for ephemeral deployments.
func NewInMemory(collection string, keywords KeywordSource) (*Store, error) {
	return newStore(chromem.NewDB(), collection, keywords)
}

func newStore(db *chromem.DB, collection string, keywords KeywordSource) (*Store, error) {
	// Embeddings are computed upstream, so the collection's embedding
	// function must never run.
	embedFn := func(ctx context.Context, text string) ([]float32, error) {
		return nil, fmt.Errorf("embedding function called but vectors are pre-computed")
	}
	col, err := db.GetOrCreateCollection(collection, nil, embedFn)
	if err != nil {
		return nil, fmt.Errorf("get or create collection %q failed: %w", collection, err)
	}
	return &Store{db: db, col: col, keywords: keywords}, nil
}

// Upsert indexes the entries. Re-adding an existing vector ID replaces
// it, so re-processing a document is idempotent.
func (s *Store) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	docs := make([]chromem.Document, 0, len(entries))
	for _, e := range entries {
		if len(e.Embedding) == 0 {
			return fmt.Errorf("entry %s has no embedding", e.VectorID)
		}
		docs = append(docs, chromem.Document{
			ID:      e.VectorID,
			Content: e.Content,
			Metadata: map[string]string{
				"document_id": strconv.FormatUint(uint64(e.DocumentID), 10),
				"chunk_index": strconv.Itoa(e.ChunkIndex),
				"source":      e.Source,
			},
			Embedding: e.Embedding,
		})
	}
	if err := s.col.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return fmt.Errorf("add documents to vector store failed: %w", err)
	}
	return nil
}

// DeleteDocument removes every vector belonging to the document.
func (s *Store) DeleteDocument(ctx context.Context, documentID uint) error {
	if s.col.Count() == 0 {
		return nil
	}
	where := map[string]string{
		"document_id": strconv.FormatUint(uint64(documentID), 10),
	}
	if err := s.col.Delete(ctx, where, nil); err != nil {
		return fmt.Errorf("delete document vectors failed: %w", err)
	}
	return nil
}

// Count reports how many chunks are indexed.
func (s *Store) Count() int {
	return s.col.Count()
}

// Search retrieves the chunks most relevant to the query. queryVector
// drives the semantic side; queryText only matters when opts.Hybrid is
// set. Results below opts.Threshold are dropped.
func (s *Store) Search(ctx context.Context, queryVector []float32, queryText string, opts SearchOptions) ([]SearchResult, error) {
	if opts.TopK <= 0 {
		return nil, fmt.Errorf("top_k must be positive, got %d", opts.TopK)
	}
	total := s.col.Count()
	if total == 0 {
		return nil, nil
	}

	// Over-fetch for hybrid so keyword evidence can promote chunks that
	// semantic ranking alone would cut.
	fetchK := opts.TopK
	if opts.Hybrid {
		fetchK = opts.TopK * 4
	}
	if fetchK > total {
		fetchK = total
	}

	raw, err := s.col.QueryEmbedding(ctx, queryVector, fetchK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query vector store failed: %w", err)
	}

	candidates := make(map[string]SearchResult, len(raw))
	semantic := make(map[string]float64, len(raw))
	for _, r := range raw {
		res, err := resultFromMetadata(r.ID, r.Content, r.Metadata)
		if err != nil {
			return nil, err
		}
		candidates[r.ID] = res
		semantic[r.ID] = float64(r.Similarity)
	}

	if !opts.Hybrid {
		return finalize(candidates, semantic, opts), nil
	}

	rows, err := s.keywords.ListSearchRows(ctx)
	if err != nil {
		return nil, fmt.Errorf("list chunks for keyword scoring failed: %w", err)
	}
	queryTerms := tokenize(queryText)
	keyword := make(map[string]float64)
	for _, row := range rows {
		score := keywordScore(queryTerms, row.Content)
		if score == 0 {
			continue
		}
		keyword[row.VectorID] = score
		if _, ok := candidates[row.VectorID]; !ok {
			candidates[row.VectorID] = SearchResult{
				VectorID:   row.VectorID,
				DocumentID: row.DocumentID,
				ChunkIndex: row.ChunkIndex,
				Source:     row.Source,
				Content:    row.Content,
			}
		}
	}

	normalizeByMax(semantic)
	normalizeByMax(keyword)
	blended := blendScores(opts.Alpha, semantic, keyword)
	return finalize(candidates, blended, opts), nil
}

func finalize(candidates map[string]SearchResult, scores map[string]float64, opts SearchOptions) []SearchResult {
	results := make([]SearchResult, 0, len(candidates))
	for id, res := range candidates {
		score := scores[id]
		if score < opts.Threshold {
			continue
		}
		res.Similarity = score
		results = append(results, res)
	}
	sortResults(results)
	if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}
	return results
}

func resultFromMetadata(id, content string, meta map[string]string) (SearchResult, error) {
	docID, err := strconv.ParseUint(meta["document_id"], 10, 64)
	if err != nil {
		return SearchResult{}, fmt.Errorf("parse document_id for vector %s failed: %w", id, err)
	}
	chunkIndex, err := strconv.Atoi(meta["chunk_index"])
	if err != nil {
		return SearchResult{}, fmt.Errorf("parse chunk_index for vector %s failed: %w", id, err)
	}
	return SearchResult{
		VectorID:   id,
		DocumentID: uint(docID),
		ChunkIndex: chunkIndex,
		Source:     meta["source"],
		Content:    content,
	}, nil
}
