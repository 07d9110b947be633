package index

import (
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// CorpusBM25 is an in-memory BM25 index that rebuilds its scoring
// statistics (term frequencies, document frequencies, average document
// length) from the full token corpus on every mutation. Rebuilds are
// O(corpus); the payoff is that statistics are always corpus-consistent
// and the on-disk format stays independent of the scoring formula.
type CorpusBM25 struct {
	mu        sync.RWMutex
	cfg       LexicalConfig
	tokenizer *Tokenizer

	// Stored corpus. ids, texts, and corpus are parallel; docPos maps
	// id to its position in all three.
	ids    []string
	texts  []string
	corpus [][]string
	docPos map[string]int

	// Derived statistics, rebuilt from corpus after every mutation.
	termFreqs []map[string]int
	docFreq   map[string]int
	docLens   []int
	avgDocLen float64

	closed bool
}

// corpusSnapshot is the gob persistence format. Only the raw corpus is
// serialized; scoring statistics are rebuilt on Load.
type corpusSnapshot struct {
	IDs    []string
	Texts  []string
	Corpus [][]string
	Config LexicalConfig
}

// NewCorpusBM25 creates an empty corpus BM25 index.
func NewCorpusBM25(cfg LexicalConfig) *CorpusBM25 {
	if cfg.K1 == 0 {
		cfg.K1 = 1.2
	}
	if cfg.B == 0 {
		cfg.B = 0.75
	}
	if cfg.MinTokenLength == 0 {
		cfg.MinTokenLength = 2
	}
	return &CorpusBM25{
		cfg:       cfg,
		tokenizer: NewTokenizer(cfg.StopWords, cfg.MinTokenLength),
		docPos:    make(map[string]int),
		docFreq:   make(map[string]int),
	}
}

// Add tokenizes texts, appends them to the corpus, and rebuilds the
// scoring statistics. An id that already exists is replaced in place.
func (b *CorpusBM25) Add(ctx context.Context, ids []string, texts []string) error {
	if len(ids) != len(texts) {
		return fmt.Errorf("ids and texts length mismatch: %d vs %d", len(ids), len(texts))
	}
	if len(ids) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	for i, id := range ids {
		tokens := b.tokenizer.Tokenize(texts[i])
		if pos, exists := b.docPos[id]; exists {
			b.texts[pos] = texts[i]
			b.corpus[pos] = tokens
			continue
		}
		b.docPos[id] = len(b.ids)
		b.ids = append(b.ids, id)
		b.texts = append(b.texts, texts[i])
		b.corpus = append(b.corpus, tokens)
	}

	b.rebuild()
	return nil
}

// Search scores every document against the tokenized query and returns
// the top-k by score descending. Ties keep insertion order. A query
// with no usable tokens returns an empty list; zero-score documents
// are excluded.
func (b *CorpusBM25) Search(ctx context.Context, query string, k int) ([]*LexicalResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrClosed
	}

	queryTokens := b.tokenizer.Tokenize(query)
	if len(queryTokens) == 0 || len(b.ids) == 0 {
		return []*LexicalResult{}, nil
	}

	n := float64(len(b.ids))
	results := make([]*LexicalResult, 0, len(b.ids))
	for pos, id := range b.ids {
		score := 0.0
		for _, term := range queryTokens {
			tf := b.termFreqs[pos][term]
			if tf == 0 {
				continue
			}
			df := float64(b.docFreq[term])
			idf := math.Log((n-df+0.5)/(df+0.5) + 1)
			norm := 1 - b.cfg.B + b.cfg.B*float64(b.docLens[pos])/b.avgDocLen
			score += idf * float64(tf) * (b.cfg.K1 + 1) / (float64(tf) + b.cfg.K1*norm)
		}
		if score > 0 {
			results = append(results, &LexicalResult{DocID: id, Score: score})
		}
	}

	// Stable sort keeps insertion order for equal scores.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if k >= 0 && len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Update replaces the stored text at the document's corpus position and
// rebuilds the statistics.
func (b *CorpusBM25) Update(ctx context.Context, id string, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	pos, exists := b.docPos[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrDocNotFound, id)
	}

	b.texts[pos] = text
	b.corpus[pos] = b.tokenizer.Tokenize(text)
	b.rebuild()
	return nil
}

// Remove deletes the document from the corpus and rebuilds.
func (b *CorpusBM25) Remove(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	pos, exists := b.docPos[id]
	if !exists {
		return fmt.Errorf("%w: %s", ErrDocNotFound, id)
	}

	b.ids = append(b.ids[:pos], b.ids[pos+1:]...)
	b.texts = append(b.texts[:pos], b.texts[pos+1:]...)
	b.corpus = append(b.corpus[:pos], b.corpus[pos+1:]...)

	delete(b.docPos, id)
	for i := pos; i < len(b.ids); i++ {
		b.docPos[b.ids[i]] = i
	}

	b.rebuild()
	return nil
}

// DocLength returns the token count of a document, 0 if absent.
func (b *CorpusBM25) DocLength(id string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0
	}
	pos, exists := b.docPos[id]
	if !exists {
		return 0
	}
	return b.docLens[pos]
}

// Save serializes the raw corpus (ids, texts, tokens) as a gob blob,
// written atomically via temp file + rename.
func (b *CorpusBM25) Save(path string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}

	snap := corpusSnapshot{
		IDs:    b.ids,
		Texts:  b.texts,
		Corpus: b.corpus,
		Config: b.cfg,
	}
	if err := gob.NewEncoder(file).Encode(snap); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to encode index: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close index file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// Load restores the corpus from a gob blob and rebuilds the scoring
// model from scratch.
func (b *CorpusBM25) Load(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var snap corpusSnapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode index: %w", err)
	}
	if len(snap.IDs) != len(snap.Texts) || len(snap.IDs) != len(snap.Corpus) {
		return fmt.Errorf("corrupt index: inconsistent corpus lengths")
	}

	b.ids = snap.IDs
	b.texts = snap.Texts
	b.corpus = snap.Corpus
	if snap.Config.K1 != 0 {
		b.cfg = snap.Config
		b.tokenizer = NewTokenizer(b.cfg.StopWords, b.cfg.MinTokenLength)
	}

	b.docPos = make(map[string]int, len(b.ids))
	for i, id := range b.ids {
		b.docPos[id] = i
	}

	b.rebuild()
	return nil
}

// Stats returns a snapshot of the index.
func (b *CorpusBM25) Stats() LexicalStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return LexicalStats{Backend: LexicalBackendCorpus}
	}

	total := 0
	for _, l := range b.docLens {
		total += l
	}
	return LexicalStats{
		DocumentCount: len(b.ids),
		TotalTokens:   total,
		AvgDocLength:  b.avgDocLen,
		Backend:       LexicalBackendCorpus,
	}
}

// Close releases the corpus.
func (b *CorpusBM25) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.ids, b.texts, b.corpus = nil, nil, nil
	b.termFreqs, b.docLens = nil, nil
	return nil
}

// rebuild recomputes term frequencies, document frequencies, document
// lengths, and average document length from the full corpus.
// Caller holds the write lock.
func (b *CorpusBM25) rebuild() {
	b.termFreqs = make([]map[string]int, len(b.corpus))
	b.docLens = make([]int, len(b.corpus))
	b.docFreq = make(map[string]int)

	totalLen := 0
	for pos, tokens := range b.corpus {
		tf := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			tf[tok]++
		}
		b.termFreqs[pos] = tf
		b.docLens[pos] = len(tokens)
		totalLen += len(tokens)
		for term := range tf {
			b.docFreq[term]++
		}
	}

	if len(b.corpus) > 0 {
		b.avgDocLen = float64(totalLen) / float64(len(b.corpus))
	} else {
		b.avgDocLen = 0
	}
	// Guard division when every document tokenized to nothing.
	if b.avgDocLen == 0 {
		b.avgDocLen = 1
	}
}

var _ LexicalIndex = (*CorpusBM25)(nil)
