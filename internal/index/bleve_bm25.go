package index

import (
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
)

const (
	wordTokenizerName  = "word_tokenizer"
	wordStopFilterName = "word_stop"
	wordAnalyzerName   = "word_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(wordTokenizerName, wordTokenizerConstructor)
	_ = registry.RegisterTokenFilter(wordStopFilterName, wordStopFilterConstructor)
}

// BleveBM25 wraps a Bleve v2 index behind the LexicalIndex interface.
// Unlike CorpusBM25 it indexes incrementally, which matters for large
// corpora; the search surface (top-k by score, empty query handling,
// zero-score exclusion) behaves identically.
type BleveBM25 struct {
	mu      sync.RWMutex
	index   bleve.Index
	path    string
	cfg     LexicalConfig
	docLens map[string]int
	closed  bool
}

// BleveDocument is the document shape handed to Bleve.
type BleveDocument struct {
	Content string `json:"content"`
}

// NewBleveBM25 creates or opens a Bleve-backed index. An empty path
// creates an in-memory index for testing.
func NewBleveBM25(path string, cfg LexicalConfig) (*BleveBM25, error) {
	indexMapping, err := createIndexMapping()
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, fmt.Errorf("failed to create directory: %w", mkErr)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open index: %w", err)
	}

	return &BleveBM25{
		index:   idx,
		path:    path,
		cfg:     cfg,
		docLens: make(map[string]int),
	}, nil
}

// createIndexMapping builds the Bleve mapping with the shared word
// tokenizer and stop-word filter as the default analyzer.
func createIndexMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(wordAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": wordTokenizerName,
		"token_filters": []string{
			wordStopFilterName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}

	indexMapping.DefaultAnalyzer = wordAnalyzerName
	return indexMapping, nil
}

// Add indexes texts under ids in a single batch.
func (b *BleveBM25) Add(ctx context.Context, ids []string, texts []string) error {
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

	tok := NewTokenizer(b.cfg.StopWords, b.cfg.MinTokenLength)
	batch := b.index.NewBatch()
	for i, id := range ids {
		if err := batch.Index(id, BleveDocument{Content: texts[i]}); err != nil {
			return fmt.Errorf("failed to index document %s: %w", id, err)
		}
		b.docLens[id] = len(tok.Tokenize(texts[i]))
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to execute batch: %w", err)
	}
	return nil
}

// Search runs a match query against the content field and returns the
// top-k hits by score descending.
func (b *BleveBM25) Search(ctx context.Context, queryStr string, k int) ([]*LexicalResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrClosed
	}

	if strings.TrimSpace(queryStr) == "" {
		return []*LexicalResult{}, nil
	}

	matchQuery := bleve.NewMatchQuery(queryStr)
	matchQuery.SetField("content")

	searchRequest := bleve.NewSearchRequest(matchQuery)
	searchRequest.Size = k

	result, err := b.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]*LexicalResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		if hit.Score <= 0 {
			continue
		}
		results = append(results, &LexicalResult{
			DocID: hit.ID,
			Score: hit.Score,
		})
	}
	return results, nil
}

// Update re-indexes id with new text. Returns ErrDocNotFound if absent.
func (b *BleveBM25) Update(ctx context.Context, id string, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if _, exists := b.docLens[id]; !exists {
		return fmt.Errorf("%w: %s", ErrDocNotFound, id)
	}

	if err := b.index.Index(id, BleveDocument{Content: text}); err != nil {
		return fmt.Errorf("failed to update document %s: %w", id, err)
	}
	tok := NewTokenizer(b.cfg.StopWords, b.cfg.MinTokenLength)
	b.docLens[id] = len(tok.Tokenize(text))
	return nil
}

// Remove deletes id from the index. Returns ErrDocNotFound if absent.
func (b *BleveBM25) Remove(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if _, exists := b.docLens[id]; !exists {
		return fmt.Errorf("%w: %s", ErrDocNotFound, id)
	}

	if err := b.index.Delete(id); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", id, err)
	}
	delete(b.docLens, id)
	return nil
}

// DocLength returns the token count of a document, 0 if absent.
func (b *BleveBM25) DocLength(id string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.docLens[id]
}

// Save writes the document-length snapshot to path. The Bleve index
// itself writes through to its own directory on every batch, so path
// only ever holds the token counts Bleve does not expose.
func (b *BleveBM25) Save(path string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return ErrClosed
	}
	if b.path == "" {
		return fmt.Errorf("in-memory bleve index cannot be saved")
	}
	return b.saveDocLens(path)
}

// Load restores the document-length snapshot from path. The postings
// were reopened from the index directory at construction; without the
// snapshot a reopened index would report every document as zero-length
// and refuse removals.
func (b *BleveBM25) Load(path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	return b.loadDocLens(path)
}

// Stats returns a snapshot of the index.
func (b *BleveBM25) Stats() LexicalStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return LexicalStats{Backend: LexicalBackendBleve}
	}

	docCount, _ := b.index.DocCount()
	total := 0
	for _, l := range b.docLens {
		total += l
	}
	avg := 0.0
	if len(b.docLens) > 0 {
		avg = float64(total) / float64(len(b.docLens))
	}
	return LexicalStats{
		DocumentCount: int(docCount),
		TotalTokens:   total,
		AvgDocLength:  avg,
		Backend:       LexicalBackendBleve,
	}
}

// Close closes the underlying Bleve index.
func (b *BleveBM25) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

func (b *BleveBM25) saveDocLens(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("failed to create lens file: %w", err)
	}
	if err := gob.NewEncoder(file).Encode(b.docLens); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to encode doc lengths: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

func (b *BleveBM25) loadDocLens(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open lens file: %w", err)
	}
	defer func() { _ = file.Close() }()

	lens := make(map[string]int)
	if err := gob.NewDecoder(file).Decode(&lens); err != nil {
		return fmt.Errorf("failed to decode doc lengths: %w", err)
	}
	b.docLens = lens
	return nil
}

// wordTokenizerConstructor adapts the shared tokenizer for Bleve.
func wordTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &bleveWordTokenizer{tok: NewTokenizer(nil, 2)}, nil
}

type bleveWordTokenizer struct {
	tok *Tokenizer
}

// Tokenize implements analysis.Tokenizer.
func (t *bleveWordTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	tokens := t.tok.Tokenize(text)

	result := make(analysis.TokenStream, 0, len(tokens))
	pos := 1
	offset := 0
	for _, token := range tokens {
		start := strings.Index(strings.ToLower(text[offset:]), token)
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(token)

		result = append(result, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
		if end <= len(text) {
			offset = end
		}
	}
	return result
}

// wordStopFilterConstructor builds the stop-word filter from the
// default English list.
func wordStopFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	return &bleveWordStopFilter{stopWords: BuildStopWordMap(defaultStopWords)}, nil
}

type bleveWordStopFilter struct {
	stopWords map[string]struct{}
}

// Filter implements analysis.TokenFilter.
func (f *bleveWordStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		term := strings.ToLower(string(token.Term))
		if _, isStop := f.stopWords[term]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

var _ LexicalIndex = (*BleveBM25)(nil)
