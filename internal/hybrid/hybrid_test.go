package hybrid

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexivec/lexivec/internal/docstore"
	"github.com/lexivec/lexivec/internal/embed"
	"github.com/lexivec/lexivec/internal/fusion"
	"github.com/lexivec/lexivec/internal/index"
	"github.com/lexivec/lexivec/internal/rerank"
)

// fakeEmbedder returns hand-crafted vectors so vector ranking is
// deterministic in tests. Unknown texts embed to a far-away direction.
type fakeEmbedder struct {
	vectors map[string][]float32
	failAll bool
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if f.failAll {
		return nil, embed.NewProviderError("fake", "embed_query", fmt.Errorf("provider down"))
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 0, 1}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.failAll {
		return nil, embed.NewProviderError("fake", "embed_batch", fmt.Errorf("provider down"))
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.EmbedQuery(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int    { return 4 }
func (f *fakeEmbedder) ModelName() string  { return "fake-model" }
func (f *fakeEmbedder) Close() error       { return nil }
func (f *fakeEmbedder) Available(_ context.Context) bool { return !f.failAll }
func (f *fakeEmbedder) CostEstimate(texts []string) embed.CostEstimate {
	return embed.CostEstimate{Texts: len(texts)}
}

var _ embed.Embedder = (*fakeEmbedder)(nil)

// hashEmbedder derives a deterministic unit vector from the text, so
// large corpora embed without per-document fixtures.
type hashEmbedder struct{}

func (hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	sum := h.Sum64()

	v := make([]float32, 4)
	var norm float64
	for i := range v {
		v[i] = float32((sum>>(16*i))&0xffff) + 1
		norm += float64(v[i]) * float64(v[i])
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v, nil
}

func (e hashEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.EmbedQuery(ctx, t)
	}
	return out, nil
}

func (hashEmbedder) Dimensions() int                  { return 4 }
func (hashEmbedder) ModelName() string                { return "hash-model" }
func (hashEmbedder) Close() error                     { return nil }
func (hashEmbedder) Available(_ context.Context) bool { return true }
func (hashEmbedder) CostEstimate(texts []string) embed.CostEstimate {
	return embed.CostEstimate{Texts: len(texts)}
}

var _ embed.Embedder = hashEmbedder{}

// fakeReranker scores documents with a fixed function, or fails.
type fakeReranker struct {
	score   func(doc string) float64
	failAll bool
}

func (f *fakeReranker) Rerank(_ context.Context, _ string, docs []string) ([]float64, error) {
	if f.failAll {
		return nil, rerank.NewProviderError("fake", "rerank", fmt.Errorf("provider down"))
	}
	scores := make([]float64, len(docs))
	for i, d := range docs {
		scores[i] = f.score(d)
	}
	return scores, nil
}

func (f *fakeReranker) Available(_ context.Context) bool { return !f.failAll }
func (f *fakeReranker) Close() error                     { return nil }

var _ rerank.Reranker = (*fakeReranker)(nil)

// appleSkyVectors places the mixed document between the two pure ones
// and the query nearest the mix.
func appleSkyVectors() map[string][]float32 {
	return map[string][]float32{
		"red apple pie":     {1, 0, 0, 0},
		"blue sky today":    {0, 1, 0, 0},
		"apple and sky mix": {0.707, 0.707, 0, 0},
		"apple sky":         {0.707, 0.707, 0, 0},
	}
}

func newTestStore(t *testing.T, deps func(*Deps)) *Store {
	t.Helper()

	docs, err := docstore.Open("")
	require.NoError(t, err)

	lexical, err := index.NewLexicalIndex(index.DefaultLexicalConfig(), "")
	require.NoError(t, err)

	vector, err := index.NewVectorIndex(index.DefaultVectorConfig(4))
	require.NoError(t, err)

	ranker, err := fusion.NewRanker(fusion.DefaultConfig())
	require.NoError(t, err)

	d := Deps{
		Documents: docs,
		Lexical:   lexical,
		Vector:    vector,
		Ranker:    ranker,
		Embedder:  &fakeEmbedder{vectors: appleSkyVectors()},
	}
	if deps != nil {
		deps(&d)
	}

	store, err := New(d, DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func appleSkyDocs() []*docstore.Document {
	return []*docstore.Document{
		{ID: "a", Content: "red apple pie", Metadata: map[string]string{"color": "red"}},
		{ID: "b", Content: "blue sky today"},
		{ID: "c", Content: "apple and sky mix"},
	}
}

func TestNew_RequiresCoreComponents(t *testing.T) {
	docs, err := docstore.Open("")
	require.NoError(t, err)
	defer func() { _ = docs.Close() }()

	lexical, err := index.NewLexicalIndex(index.DefaultLexicalConfig(), "")
	require.NoError(t, err)
	ranker, err := fusion.NewRanker(fusion.DefaultConfig())
	require.NoError(t, err)

	_, err = New(Deps{Lexical: lexical, Ranker: ranker}, DefaultConfig())
	require.Error(t, err)

	_, err = New(Deps{Documents: docs, Ranker: ranker}, DefaultConfig())
	require.Error(t, err)

	_, err = New(Deps{Documents: docs, Lexical: lexical}, DefaultConfig())
	require.Error(t, err)
}

func TestAddDocuments_ReportsFullSuccess(t *testing.T) {
	store := newTestStore(t, nil)

	report, err := store.AddDocuments(context.Background(), appleSkyDocs())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Received)
	assert.Equal(t, 3, report.Added)
	assert.Zero(t, report.Degraded)
	assert.Zero(t, report.Failed)
}

func TestAddDocuments_EmbedFailureDegradesNotAborts(t *testing.T) {
	// Given: an embedding provider that is down
	store := newTestStore(t, func(d *Deps) {
		d.Embedder = &fakeEmbedder{failAll: true}
	})

	// When: ingesting a batch
	report, err := store.AddDocuments(context.Background(), appleSkyDocs())
	require.NoError(t, err)

	// Then: all documents land, degraded to lexical-only
	assert.Equal(t, 3, report.Added)
	assert.Equal(t, 3, report.Degraded)

	results, err := store.Search(context.Background(), "apple", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestAddDocuments_EmptyIDCountedAsFailed(t *testing.T) {
	// Given: a batch where one document carries no id
	store := newTestStore(t, nil)
	batch := append([]*docstore.Document{{ID: "", Content: "orphan"}}, appleSkyDocs()...)

	// When: ingesting
	report, err := store.AddDocuments(context.Background(), batch)
	require.NoError(t, err)

	// Then: the bad document is reported, the rest land
	assert.Equal(t, 4, report.Received)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 3, report.Added)

	results, err := store.Search(context.Background(), "apple", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestAddDocuments_AllInvalidIsNotAnError(t *testing.T) {
	store := newTestStore(t, nil)

	report, err := store.AddDocuments(context.Background(),
		[]*docstore.Document{{ID: ""}, {ID: ""}})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Failed)
	assert.Zero(t, report.Added)
}

func TestAddDocuments_ClusteredBackendTrainsAtThreshold(t *testing.T) {
	// Given: a clustered vector backend that needs four vectors to train
	vector, err := index.NewVectorIndex(index.VectorConfig{
		Backend:            index.VectorBackendIVFPQ,
		Dimensions:         4,
		NClusters:          2,
		MinTrainingVectors: 4,
	})
	require.NoError(t, err)
	store := newTestStore(t, func(d *Deps) { d.Vector = vector })
	ctx := context.Background()

	// When: the first batch stays below the threshold
	report, err := store.AddDocuments(ctx, appleSkyDocs())
	require.NoError(t, err)

	// Then: vectors are buffered, not dropped, and the batch is degraded
	assert.Equal(t, 3, report.Degraded)
	assert.Zero(t, vector.Count())

	// When: a second batch crosses the threshold
	report, err = store.AddDocuments(ctx, []*docstore.Document{
		{ID: "d", Content: "green grass field"},
		{ID: "e", Content: "tall oak tree"},
	})
	require.NoError(t, err)

	// Then: the backend trains and every buffered vector is indexed
	assert.Zero(t, report.Degraded)
	assert.Equal(t, 5, vector.Count())
	assert.True(t, vector.Stats().Trained)

	results, err := store.HybridSearch(ctx, "apple sky", 5, DefaultSearchOptions())
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestSearch_LexicalOnly(t *testing.T) {
	// Given: the apple/sky corpus
	store := newTestStore(t, nil)
	_, err := store.AddDocuments(context.Background(), appleSkyDocs())
	require.NoError(t, err)

	// When: a lexical query for "sky"
	results, err := store.Search(context.Background(), "sky", 10)
	require.NoError(t, err)

	// Then: only documents containing the term match
	require.Len(t, results, 2)
	ids := []string{results[0].DocID, results[1].DocID}
	assert.ElementsMatch(t, []string{"b", "c"}, ids)
	for _, r := range results {
		assert.NotEmpty(t, r.Content)
		assert.Positive(t, r.BM25Score)
	}
}

func TestHybridSearch_MixedDocWinsBothLists(t *testing.T) {
	// Given: a corpus where one document matches both the lexical and
	// the vector side of the query
	store := newTestStore(t, nil)
	_, err := store.AddDocuments(context.Background(), appleSkyDocs())
	require.NoError(t, err)

	// When: the hybrid query runs
	results, err := store.HybridSearch(context.Background(), "apple sky", 3, DefaultSearchOptions())
	require.NoError(t, err)

	// Then: the mixed document ranks first and scores are non-increasing
	require.NotEmpty(t, results)
	assert.Equal(t, "c", results[0].DocID)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestHybridSearch_KClampAndZeroK(t *testing.T) {
	store := newTestStore(t, nil)
	_, err := store.AddDocuments(context.Background(), appleSkyDocs())
	require.NoError(t, err)

	results, err := store.HybridSearch(context.Background(), "apple sky", 100, DefaultSearchOptions())
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 3)

	results, err = store.HybridSearch(context.Background(), "apple sky", 0, DefaultSearchOptions())
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHybridSearch_VectorFailureFallsBackToLexical(t *testing.T) {
	// Given: a store whose embedder dies after ingestion
	fake := &fakeEmbedder{vectors: appleSkyVectors()}
	store := newTestStore(t, func(d *Deps) { d.Embedder = fake })
	_, err := store.AddDocuments(context.Background(), appleSkyDocs())
	require.NoError(t, err)

	fake.failAll = true

	// When: the hybrid query runs
	results, err := store.HybridSearch(context.Background(), "apple", 10, DefaultSearchOptions())

	// Then: lexical results still come back
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Positive(t, r.BM25Score)
	}
}

func TestDeleteDocuments_NeverReturnedAgain(t *testing.T) {
	// Given: the full corpus indexed
	store := newTestStore(t, nil)
	ctx := context.Background()
	_, err := store.AddDocuments(ctx, appleSkyDocs())
	require.NoError(t, err)

	// When: deleting the top document
	require.NoError(t, store.DeleteDocuments(ctx, []string{"c"}))

	// Then: it never surfaces in any search mode
	results, err := store.HybridSearch(ctx, "apple sky", 10, DefaultSearchOptions())
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "c", r.DocID)
	}

	results, err = store.Search(ctx, "sky", 10)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "c", r.DocID)
	}
}

func TestDeleteDocuments_AbsentIDsAreNoOps(t *testing.T) {
	store := newTestStore(t, nil)

	require.NoError(t, store.DeleteDocuments(context.Background(), []string{"ghost"}))
}

func TestHybridSearch_RerankReorders(t *testing.T) {
	// Given: a reranker that strongly prefers the pure sky document
	store := newTestStore(t, func(d *Deps) {
		d.Reranker = &fakeReranker{score: func(doc string) float64 {
			if doc == "blue sky today" {
				return 0.99
			}
			return 0.1
		}}
	})
	_, err := store.AddDocuments(context.Background(), appleSkyDocs())
	require.NoError(t, err)

	// When: the hybrid query runs
	results, err := store.HybridSearch(context.Background(), "apple sky", 3, DefaultSearchOptions())
	require.NoError(t, err)

	// Then: the reranker's favorite wins and carries its score
	require.NotEmpty(t, results)
	assert.Equal(t, "b", results[0].DocID)
	assert.True(t, results[0].Reranked)
	assert.InDelta(t, 0.99, results[0].RerankScore, 1e-9)
}

func TestHybridSearch_RerankFailureKeepsFusedOrder(t *testing.T) {
	// Given: identical stores, one with a failing reranker
	plain := newTestStore(t, nil)
	failing := newTestStore(t, func(d *Deps) {
		d.Reranker = &fakeReranker{failAll: true}
	})
	ctx := context.Background()
	_, err := plain.AddDocuments(ctx, appleSkyDocs())
	require.NoError(t, err)
	_, err = failing.AddDocuments(ctx, appleSkyDocs())
	require.NoError(t, err)

	// When: both run the same query
	want, err := plain.HybridSearch(ctx, "apple sky", 3, DefaultSearchOptions())
	require.NoError(t, err)
	got, err := failing.HybridSearch(ctx, "apple sky", 3, DefaultSearchOptions())
	require.NoError(t, err)

	// Then: the failing reranker changes nothing
	require.Equal(t, len(want), len(got))
	for i := range want {
		assert.Equal(t, want[i].DocID, got[i].DocID)
		assert.False(t, got[i].Reranked)
	}
}

func TestHybridSearch_RerankDisabledPerCall(t *testing.T) {
	// Given: a configured reranker that would promote the pure sky doc
	store := newTestStore(t, func(d *Deps) {
		d.Reranker = &fakeReranker{score: func(doc string) float64 {
			if doc == "blue sky today" {
				return 0.99
			}
			return 0.1
		}}
	})
	plain := newTestStore(t, nil)
	ctx := context.Background()
	_, err := store.AddDocuments(ctx, appleSkyDocs())
	require.NoError(t, err)
	_, err = plain.AddDocuments(ctx, appleSkyDocs())
	require.NoError(t, err)

	// When: the call opts out of reranking
	got, err := store.HybridSearch(ctx, "apple sky", 3, SearchOptions{EnableReranking: false})
	require.NoError(t, err)
	want, err := plain.HybridSearch(ctx, "apple sky", 3, DefaultSearchOptions())
	require.NoError(t, err)

	// Then: the fused order stands and nothing is marked reranked
	require.Equal(t, len(want), len(got))
	for i := range want {
		assert.Equal(t, want[i].DocID, got[i].DocID)
		assert.False(t, got[i].Reranked)
	}
}

func TestHybridSearch_RerankKeepsScoresMonotone(t *testing.T) {
	// Given: a rerank pool smaller than the result list and a
	// cross-encoder whose scores sit below the fused scale
	store := newTestStore(t, func(d *Deps) {
		d.Reranker = &fakeReranker{score: func(doc string) float64 {
			if doc == "blue sky today" {
				return 0.002
			}
			return 0.001
		}}
	})
	store.cfg.RerankPool = 2
	ctx := context.Background()
	_, err := store.AddDocuments(ctx, appleSkyDocs())
	require.NoError(t, err)

	// When: the query returns more candidates than the pool covers
	results, err := store.HybridSearch(ctx, "apple sky", 3, DefaultSearchOptions())
	require.NoError(t, err)

	// Then: scores never increase across the reranked/unreranked seam
	require.Len(t, results, 3)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
	assert.True(t, results[0].Reranked)
	assert.False(t, results[2].Reranked)
}

func TestStats_ReflectsComponents(t *testing.T) {
	store := newTestStore(t, nil)
	ctx := context.Background()
	_, err := store.AddDocuments(ctx, appleSkyDocs())
	require.NoError(t, err)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Documents.DocumentCount)
	assert.Equal(t, 3, stats.Lexical.DocumentCount)
	assert.Equal(t, 3, stats.Vector.Count)
	assert.Equal(t, fusion.StrategyRRF, stats.Fusion)
	assert.Equal(t, "fake-model", stats.Embedder)
	assert.False(t, stats.Reranker)
}

func TestClosedStore_RejectsOperations(t *testing.T) {
	store := newTestStore(t, nil)
	require.NoError(t, store.Close())

	ctx := context.Background()
	_, err := store.AddDocuments(ctx, appleSkyDocs())
	require.Error(t, err)
	_, err = store.Search(ctx, "apple", 1)
	require.Error(t, err)
	_, err = store.HybridSearch(ctx, "apple", 1, DefaultSearchOptions())
	require.Error(t, err)
	_, err = store.Stats(ctx)
	require.Error(t, err)
	require.Error(t, store.DeleteDocuments(ctx, []string{"a"}))

	// Double close is a no-op.
	require.NoError(t, store.Close())
}

func TestTrainFusion_RequiresLearnedStrategy(t *testing.T) {
	store := newTestStore(t, nil)

	err := store.TrainFusion(context.Background(), []TrainingExample{
		{Query: "apple", RelevantIDs: []string{"a"}},
	})

	require.Error(t, err)
}

func TestTrainFusion_FitsLearnedModel(t *testing.T) {
	// Given: a store with the learned strategy and an indexed corpus
	ranker, err := fusion.NewRanker(fusion.DefaultConfigWithStrategy(fusion.StrategyLearned))
	require.NoError(t, err)
	store := newTestStore(t, func(d *Deps) { d.Ranker = ranker })

	ctx := context.Background()
	_, err = store.AddDocuments(ctx, appleSkyDocs())
	require.NoError(t, err)

	// When: training from labeled queries
	err = store.TrainFusion(ctx, []TrainingExample{
		{Query: "apple sky", RelevantIDs: []string{"c"}},
		{Query: "apple", RelevantIDs: []string{"a", "c"}},
		{Query: "sky", RelevantIDs: []string{"b", "c"}},
	})
	require.NoError(t, err)

	// Then: the model is fit and searches still return ordered results
	learned := ranker.(*fusion.LearnedRanker)
	assert.True(t, learned.Trained())

	results, err := store.HybridSearch(ctx, "apple sky", 3, DefaultSearchOptions())
	require.NoError(t, err)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestTrainFusion_NoExamplesFails(t *testing.T) {
	ranker, err := fusion.NewRanker(fusion.DefaultConfigWithStrategy(fusion.StrategyLearned))
	require.NoError(t, err)
	store := newTestStore(t, func(d *Deps) { d.Ranker = ranker })

	require.Error(t, store.TrainFusion(context.Background(), nil))
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	// Given: a file-backed store with an indexed corpus, saved to disk
	dir := t.TempDir()
	docPath := filepath.Join(dir, DocumentsFile)
	ctx := context.Background()

	build := func() *Store {
		docs, err := docstore.Open(docPath)
		require.NoError(t, err)
		lexical, err := index.NewLexicalIndex(index.DefaultLexicalConfig(), "")
		require.NoError(t, err)
		vector, err := index.NewVectorIndex(index.DefaultVectorConfig(4))
		require.NoError(t, err)
		ranker, err := fusion.NewRanker(fusion.DefaultConfig())
		require.NoError(t, err)
		store, err := New(Deps{
			Documents: docs,
			Lexical:   lexical,
			Vector:    vector,
			Ranker:    ranker,
			Embedder:  &fakeEmbedder{vectors: appleSkyVectors()},
		}, DefaultConfig())
		require.NoError(t, err)
		return store
	}

	first := build()
	_, err := first.AddDocuments(ctx, appleSkyDocs())
	require.NoError(t, err)
	want, err := first.HybridSearch(ctx, "apple sky", 3, DefaultSearchOptions())
	require.NoError(t, err)
	require.NoError(t, first.Save(dir))
	require.NoError(t, first.Close())

	// When: a fresh store loads the same directory
	second := build()
	defer func() { _ = second.Close() }()
	require.NoError(t, second.Load(dir))

	// Then: the same query returns the same ranking
	got, err := second.HybridSearch(ctx, "apple sky", 3, DefaultSearchOptions())
	require.NoError(t, err)
	require.Equal(t, len(want), len(got))
	for i := range want {
		assert.Equal(t, want[i].DocID, got[i].DocID)
		assert.InDelta(t, want[i].Score, got[i].Score, 1e-9)
		assert.Equal(t, want[i].Content, got[i].Content)
	}
}

func TestSaveLoad_BleveBackendKeepsDocLengths(t *testing.T) {
	// Given: a bleve-backed store saved through the production wiring
	dir := t.TempDir()
	ctx := context.Background()
	bleveCfg := index.DefaultLexicalConfig()
	bleveCfg.Backend = index.LexicalBackendBleve

	build := func() (*Store, index.LexicalIndex) {
		docs, err := docstore.Open(filepath.Join(dir, DocumentsFile))
		require.NoError(t, err)
		lexical, err := index.NewLexicalIndex(bleveCfg, filepath.Join(dir, "bleve"))
		require.NoError(t, err)
		ranker, err := fusion.NewRanker(fusion.DefaultConfig())
		require.NoError(t, err)
		store, err := New(Deps{Documents: docs, Lexical: lexical, Ranker: ranker}, DefaultConfig())
		require.NoError(t, err)
		return store, lexical
	}

	first, _ := build()
	_, err := first.AddDocuments(ctx, appleSkyDocs())
	require.NoError(t, err)
	require.NoError(t, first.Save(dir))
	require.NoError(t, first.Close())

	// When: a second process reopens the same data directory
	second, lexical := build()
	defer func() { _ = second.Close() }()
	require.NoError(t, second.Load(dir))

	// Then: document lengths survived the restart and removals work
	assert.Positive(t, lexical.DocLength("a"))
	require.NoError(t, lexical.Remove(ctx, "a"))

	results, err := second.Search(ctx, "sky", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestSaveLoad_RestoresTrainedFusionModel(t *testing.T) {
	// Given: a store trained with the learned strategy, saved to disk
	dir := t.TempDir()
	ctx := context.Background()

	build := func() (*Store, *fusion.LearnedRanker) {
		docs, err := docstore.Open(filepath.Join(dir, DocumentsFile))
		require.NoError(t, err)
		lexical, err := index.NewLexicalIndex(index.DefaultLexicalConfig(), "")
		require.NoError(t, err)
		vector, err := index.NewVectorIndex(index.DefaultVectorConfig(4))
		require.NoError(t, err)
		ranker, err := fusion.NewRanker(fusion.DefaultConfigWithStrategy(fusion.StrategyLearned))
		require.NoError(t, err)
		store, err := New(Deps{
			Documents: docs,
			Lexical:   lexical,
			Vector:    vector,
			Ranker:    ranker,
			Embedder:  &fakeEmbedder{vectors: appleSkyVectors()},
		}, DefaultConfig())
		require.NoError(t, err)
		return store, ranker.(*fusion.LearnedRanker)
	}

	first, trained := build()
	_, err := first.AddDocuments(ctx, appleSkyDocs())
	require.NoError(t, err)
	err = first.TrainFusion(ctx, []TrainingExample{
		{Query: "apple sky", RelevantIDs: []string{"c"}},
		{Query: "apple", RelevantIDs: []string{"a", "c"}},
		{Query: "sky", RelevantIDs: []string{"b", "c"}},
	})
	require.NoError(t, err)
	want, err := first.HybridSearch(ctx, "apple sky", 3, DefaultSearchOptions())
	require.NoError(t, err)
	require.NoError(t, first.Save(dir))
	require.NoError(t, first.Close())

	// When: a fresh process loads the same directory
	second, loaded := build()
	defer func() { _ = second.Close() }()
	require.NoError(t, second.Load(dir))

	// Then: the fitted model is back without retraining and scores match
	require.True(t, trained.Trained())
	assert.True(t, loaded.Trained())

	got, err := second.HybridSearch(ctx, "apple sky", 3, DefaultSearchOptions())
	require.NoError(t, err)
	require.Equal(t, len(want), len(got))
	for i := range want {
		assert.Equal(t, want[i].DocID, got[i].DocID)
		assert.InDelta(t, want[i].Score, got[i].Score, 1e-9)
	}
}

func TestSaveLoad_LargeCorpusRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("large corpus round trip")
	}

	// Given: ten thousand documents indexed and saved
	const docCount = 10000
	const batchSize = 1000
	dir := t.TempDir()
	ctx := context.Background()
	words := []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta", "eta", "theta"}

	build := func() *Store {
		docs, err := docstore.Open(filepath.Join(dir, DocumentsFile))
		require.NoError(t, err)
		lexical, err := index.NewLexicalIndex(index.DefaultLexicalConfig(), "")
		require.NoError(t, err)
		vector, err := index.NewVectorIndex(index.DefaultVectorConfig(4))
		require.NoError(t, err)
		ranker, err := fusion.NewRanker(fusion.DefaultConfig())
		require.NoError(t, err)
		store, err := New(Deps{
			Documents: docs,
			Lexical:   lexical,
			Vector:    vector,
			Ranker:    ranker,
			Embedder:  hashEmbedder{},
		}, DefaultConfig())
		require.NoError(t, err)
		return store
	}

	first := build()
	for start := 0; start < docCount; start += batchSize {
		batch := make([]*docstore.Document, batchSize)
		for i := range batch {
			n := start + i
			batch[i] = &docstore.Document{
				ID: fmt.Sprintf("doc-%05d", n),
				Content: fmt.Sprintf("%s %s document number %d",
					words[n%len(words)], words[(n/len(words))%len(words)], n),
			}
		}
		report, err := first.AddDocuments(ctx, batch)
		require.NoError(t, err)
		require.Equal(t, batchSize, report.Added)
	}

	want, err := first.HybridSearch(ctx, "gamma delta document", 10, DefaultSearchOptions())
	require.NoError(t, err)
	require.Len(t, want, 10)
	require.NoError(t, first.Save(dir))
	require.NoError(t, first.Close())

	// When: a fresh store loads the saved directory
	second := build()
	defer func() { _ = second.Close() }()
	require.NoError(t, second.Load(dir))

	// Then: the counts survived and the same query returns the same top ten
	stats, err := second.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, docCount, stats.Documents.DocumentCount)
	assert.Equal(t, docCount, stats.Lexical.DocumentCount)
	assert.Equal(t, docCount, stats.Vector.Count)

	got, err := second.HybridSearch(ctx, "gamma delta document", 10, DefaultSearchOptions())
	require.NoError(t, err)
	require.Equal(t, len(want), len(got))
	for i := range want {
		assert.Equal(t, want[i].DocID, got[i].DocID)
		assert.InDelta(t, want[i].Score, got[i].Score, 1e-9)
	}
}

func TestLoad_EmptyDirectoryIsFreshStore(t *testing.T) {
	store := newTestStore(t, nil)

	require.NoError(t, store.Load(t.TempDir()))

	results, err := store.Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}
