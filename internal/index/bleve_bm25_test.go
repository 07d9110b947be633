package index

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBleveIndex(t *testing.T) *BleveBM25 {
	t.Helper()
	idx, err := NewBleveBM25("", DefaultLexicalConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestBleveBM25_AddAndSearch(t *testing.T) {
	// Given: three documents
	idx := newBleveIndex(t)
	addThreeDocs(t, idx)

	// When: searching "apple"
	results, err := idx.Search(context.Background(), "apple", 10)
	require.NoError(t, err)

	// Then: the apple documents match with positive scores
	require.Len(t, results, 2)
	ids := []string{results[0].DocID, results[1].DocID}
	assert.ElementsMatch(t, []string{"a", "c"}, ids)
	for _, r := range results {
		assert.Greater(t, r.Score, 0.0)
	}
}

func TestBleveBM25_EmptyQueryReturnsEmpty(t *testing.T) {
	idx := newBleveIndex(t)
	addThreeDocs(t, idx)

	results, err := idx.Search(context.Background(), "   ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestBleveBM25_NoMatchExcluded(t *testing.T) {
	// Given: the apple/sky corpus
	idx := newBleveIndex(t)
	addThreeDocs(t, idx)

	// When: searching "sky"
	results, err := idx.Search(context.Background(), "sky", 10)
	require.NoError(t, err)

	// Then: document a (no term match) is excluded
	for _, r := range results {
		assert.NotEqual(t, "a", r.DocID)
	}
}

func TestBleveBM25_UpdateAndRemove(t *testing.T) {
	idx := newBleveIndex(t)
	addThreeDocs(t, idx)
	ctx := context.Background()

	// Update changes the indexed text.
	require.NoError(t, idx.Update(ctx, "a", "green sky"))
	results, err := idx.Search(ctx, "sky", 10)
	require.NoError(t, err)
	found := false
	for _, r := range results {
		if r.DocID == "a" {
			found = true
		}
	}
	assert.True(t, found)

	// Remove drops the document.
	require.NoError(t, idx.Remove(ctx, "a"))
	results, err = idx.Search(ctx, "sky", 10)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "a", r.DocID)
	}

	// Absent ids fail with not-found.
	assert.ErrorIs(t, idx.Update(ctx, "ghost", "x"), ErrDocNotFound)
	assert.ErrorIs(t, idx.Remove(ctx, "ghost"), ErrDocNotFound)
}

func TestBleveBM25_DocLengthTracked(t *testing.T) {
	idx := newBleveIndex(t)
	addThreeDocs(t, idx)

	// "apple and sky mix" -> apple, sky, mix.
	assert.Equal(t, 3, idx.DocLength("c"))
	assert.Equal(t, 0, idx.DocLength("missing"))
}

func TestBleveBM25_Stats(t *testing.T) {
	idx := newBleveIndex(t)
	addThreeDocs(t, idx)

	stats := idx.Stats()

	assert.Equal(t, 3, stats.DocumentCount)
	assert.Equal(t, LexicalBackendBleve, stats.Backend)
	assert.Greater(t, stats.AvgDocLength, 0.0)
}

func TestBleveBM25_SaveLoadRestoresDocLengths(t *testing.T) {
	// Given: a file-backed index with its snapshot written where the
	// caller asked for it
	dir := t.TempDir()
	indexPath := filepath.Join(dir, "bleve")
	snapPath := filepath.Join(dir, "lexical.gob")
	ctx := context.Background()

	first, err := NewBleveBM25(indexPath, DefaultLexicalConfig())
	require.NoError(t, err)
	addThreeDocs(t, first)
	require.NoError(t, first.Save(snapPath))
	require.NoError(t, first.Close())

	_, err = os.Stat(snapPath)
	require.NoError(t, err)

	// When: a second process reopens the index directory and loads the
	// snapshot from the same path
	second, err := NewBleveBM25(indexPath, DefaultLexicalConfig())
	require.NoError(t, err)
	defer func() { _ = second.Close() }()
	require.NoError(t, second.Load(snapPath))

	// Then: token counts survive the restart and removals still resolve
	assert.Equal(t, 3, second.DocLength("c"))
	require.NoError(t, second.Remove(ctx, "a"))

	results, err := second.Search(ctx, "sky", 10)
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestBleveBM25_LoadMissingSnapshotFails(t *testing.T) {
	idx := newBleveIndex(t)

	require.Error(t, idx.Load(filepath.Join(t.TempDir(), "lexical.gob")))
}

func TestLexicalFactory(t *testing.T) {
	// Corpus backend by default.
	idx, err := NewLexicalIndex(LexicalConfig{}, "")
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()
	_, isCorpus := idx.(*CorpusBM25)
	assert.True(t, isCorpus)

	// Bleve when requested.
	idx2, err := NewLexicalIndex(LexicalConfig{Backend: LexicalBackendBleve}, "")
	require.NoError(t, err)
	defer func() { _ = idx2.Close() }()
	_, isBleve := idx2.(*BleveBM25)
	assert.True(t, isBleve)

	// Unknown backends are rejected.
	_, err = NewLexicalIndex(LexicalConfig{Backend: "mystery"}, "")
	require.Error(t, err)
}

func TestVectorFactory(t *testing.T) {
	idx, err := NewVectorIndex(DefaultVectorConfig(8))
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()
	_, isHNSW := idx.(*HNSWIndex)
	assert.True(t, isHNSW)

	idx2, err := NewVectorIndex(ivfConfig(8))
	require.NoError(t, err)
	defer func() { _ = idx2.Close() }()
	_, isIVF := idx2.(*IVFPQIndex)
	assert.True(t, isIVF)

	_, err = NewVectorIndex(VectorConfig{Backend: "mystery", Dimensions: 8})
	require.Error(t, err)

	_, err = NewVectorIndex(VectorConfig{Dimensions: 0})
	require.Error(t, err)
}
