package index

import (
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

const kmeansMaxIterations = 20

// IVFPQIndex is the clustered ANN index for very large corpora.
// Vectors are partitioned into an inverted-file structure by k-means
// cluster assignment and optionally compressed with product
// quantization. A training phase on at least MinTrainingVectors
// vectors must run before any insertion; Add before Train returns
// ErrNotTrained rather than silently dropping vectors.
type IVFPQIndex struct {
	mu  sync.RWMutex
	cfg VectorConfig
	rng *rand.Rand

	trained   bool
	centroids [][]float32 // NClusters coarse centroids
	lists     [][]uint64  // posting list of internal keys per cluster

	// Exactly one of vectors/codes is populated per key, depending on
	// whether product quantization is enabled.
	vectors   map[uint64][]float32
	codes     map[uint64][]byte
	codebooks [][][]float32 // PQSubspaces x PQCentroids x subDim

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
	closed  bool
}

// ivfpqSnapshot is the gob persistence format: the full index state
// including centroids, codebooks, posting lists, and id maps.
type ivfpqSnapshot struct {
	Config    VectorConfig
	Trained   bool
	Centroids [][]float32
	Lists     [][]uint64
	Vectors   map[uint64][]float32
	Codes     map[uint64][]byte
	Codebooks [][][]float32
	IDMap     map[string]uint64
	NextKey   uint64
}

// NewIVFPQIndex creates an untrained clustered index.
func NewIVFPQIndex(cfg VectorConfig) (*IVFPQIndex, error) {
	if cfg.Metric == "" {
		cfg.Metric = MetricCosine
	}
	if cfg.NClusters == 0 {
		cfg.NClusters = 16
	}
	if cfg.NProbes == 0 {
		cfg.NProbes = 4
	}
	if cfg.NProbes > cfg.NClusters {
		cfg.NProbes = cfg.NClusters
	}
	if cfg.MinTrainingVectors == 0 {
		cfg.MinTrainingVectors = cfg.NClusters
	}
	if cfg.UseQuantization {
		if cfg.PQSubspaces == 0 {
			cfg.PQSubspaces = 8
		}
		if cfg.PQCentroids == 0 {
			cfg.PQCentroids = 256
		}
		if cfg.PQCentroids > 256 {
			return nil, fmt.Errorf("pq centroids must fit one byte, got %d", cfg.PQCentroids)
		}
		if cfg.Dimensions%cfg.PQSubspaces != 0 {
			return nil, fmt.Errorf("pq subspaces %d must divide dimensions %d",
				cfg.PQSubspaces, cfg.Dimensions)
		}
	}

	return &IVFPQIndex{
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(1)),
		vectors: make(map[uint64][]float32),
		codes:   make(map[uint64][]byte),
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
	}, nil
}

// Trained reports whether the clustering phase has run.
func (s *IVFPQIndex) Trained() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.trained
}

// TrainingThreshold returns the minimum number of vectors Train accepts.
func (s *IVFPQIndex) TrainingThreshold() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg.MinTrainingVectors
}

// Train clusters the training vectors into NClusters coarse centroids
// (k-means with k-means++ seeding) and, when quantization is enabled,
// learns a per-subspace codebook. Training with fewer than
// MinTrainingVectors vectors is rejected.
func (s *IVFPQIndex) Train(vectors [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if len(vectors) < s.cfg.MinTrainingVectors {
		return fmt.Errorf("training requires at least %d vectors, got %d",
			s.cfg.MinTrainingVectors, len(vectors))
	}

	training := make([][]float32, len(vectors))
	for i, v := range vectors {
		if len(v) != s.cfg.Dimensions {
			return ErrDimensionMismatch{Expected: s.cfg.Dimensions, Got: len(v)}
		}
		vec := make([]float32, len(v))
		copy(vec, v)
		if s.cfg.Metric == MetricCosine {
			normalizeVectorInPlace(vec)
		}
		training[i] = vec
	}

	k := s.cfg.NClusters
	if k > len(training) {
		k = len(training)
	}
	s.centroids = s.kmeans(training, k)
	s.lists = make([][]uint64, len(s.centroids))

	if s.cfg.UseQuantization {
		if err := s.trainCodebooks(training); err != nil {
			return err
		}
	}

	s.trained = true
	return nil
}

// trainCodebooks runs k-means independently in each subspace.
// Caller holds the write lock.
func (s *IVFPQIndex) trainCodebooks(training [][]float32) error {
	subDim := s.cfg.Dimensions / s.cfg.PQSubspaces
	s.codebooks = make([][][]float32, s.cfg.PQSubspaces)

	for sub := 0; sub < s.cfg.PQSubspaces; sub++ {
		subVectors := make([][]float32, len(training))
		for i, v := range training {
			subVectors[i] = v[sub*subDim : (sub+1)*subDim]
		}
		k := s.cfg.PQCentroids
		if k > len(subVectors) {
			k = len(subVectors)
		}
		s.codebooks[sub] = s.kmeans(subVectors, k)
	}
	return nil
}

// Add assigns each vector to its nearest coarse centroid's posting
// list. Requires a completed training phase.
func (s *IVFPQIndex) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if !s.trained {
		return ErrNotTrained
	}

	for _, v := range vectors {
		if len(v) != s.cfg.Dimensions {
			return ErrDimensionMismatch{Expected: s.cfg.Dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		if existingKey, exists := s.idMap[id]; exists {
			delete(s.keyMap, existingKey)
			delete(s.idMap, id)
			delete(s.vectors, existingKey)
			delete(s.codes, existingKey)
		}

		key := s.nextKey
		s.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if s.cfg.Metric == MetricCosine {
			normalizeVectorInPlace(vec)
		}

		cluster := s.nearestCentroid(vec, s.centroids)
		s.lists[cluster] = append(s.lists[cluster], key)

		if s.cfg.UseQuantization {
			s.codes[key] = s.encode(vec)
		} else {
			s.vectors[key] = vec
		}

		s.idMap[id] = key
		s.keyMap[key] = id
	}

	return nil
}

// Search probes the NProbes nearest coarse centroids and exhaustively
// scores their posting lists. An untrained or empty index returns
// empty results, never an error.
func (s *IVFPQIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrClosed
	}
	if len(query) != s.cfg.Dimensions {
		return nil, ErrDimensionMismatch{Expected: s.cfg.Dimensions, Got: len(query)}
	}

	if k > len(s.idMap) {
		k = len(s.idMap)
	}
	if k <= 0 || !s.trained {
		return []*VectorResult{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	if s.cfg.Metric == MetricCosine {
		normalizeVectorInPlace(q)
	}

	probes := s.nearestCentroids(q, s.cfg.NProbes)

	results := make([]*VectorResult, 0, k*2)
	for _, cluster := range probes {
		for _, key := range s.lists[cluster] {
			id, visible := s.keyMap[key]
			if !visible {
				continue
			}
			var distance float64
			if s.cfg.UseQuantization {
				distance = s.codeDistance(q, s.codes[key])
			} else {
				distance = vectorDistance(q, s.vectors[key], s.cfg.Metric)
			}
			results = append(results, &VectorResult{
				DocID:    id,
				Distance: distance,
				Score:    distanceToScore(distance, s.cfg.Metric),
			})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Delete removes ids from the visible set; posting-list entries remain
// as tombstones filtered at query time.
func (s *IVFPQIndex) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	for _, id := range ids {
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
			delete(s.vectors, key)
			delete(s.codes, key)
		}
	}
	return nil
}

// Contains reports whether id is indexed and visible.
func (s *IVFPQIndex) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}
	_, exists := s.idMap[id]
	return exists
}

// Count returns the number of visible vectors.
func (s *IVFPQIndex) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0
	}
	return len(s.idMap)
}

// Stats returns a snapshot of the index.
func (s *IVFPQIndex) Stats() VectorStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return VectorStats{Backend: VectorBackendIVFPQ}
	}
	return VectorStats{
		Count:      len(s.idMap),
		Dimensions: s.cfg.Dimensions,
		Backend:    VectorBackendIVFPQ,
		Metric:     s.cfg.Metric,
		Trained:    s.trained,
	}
}

// Save persists the full index state as a gob blob, written atomically.
func (s *IVFPQIndex) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
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

	snap := ivfpqSnapshot{
		Config:    s.cfg,
		Trained:   s.trained,
		Centroids: s.centroids,
		Lists:     s.lists,
		Vectors:   s.vectors,
		Codes:     s.codes,
		Codebooks: s.codebooks,
		IDMap:     s.idMap,
		NextKey:   s.nextKey,
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

// Load restores the index from a gob blob.
func (s *IVFPQIndex) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open index file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var snap ivfpqSnapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		return fmt.Errorf("failed to decode index: %w", err)
	}

	s.cfg = snap.Config
	s.trained = snap.Trained
	s.centroids = snap.Centroids
	s.lists = snap.Lists
	s.vectors = snap.Vectors
	s.codes = snap.Codes
	s.codebooks = snap.Codebooks
	s.idMap = snap.IDMap
	s.nextKey = snap.NextKey
	if s.vectors == nil {
		s.vectors = make(map[uint64][]float32)
	}
	if s.codes == nil {
		s.codes = make(map[uint64][]byte)
	}
	s.keyMap = make(map[uint64]string, len(s.idMap))
	for id, key := range s.idMap {
		s.keyMap[key] = id
	}
	return nil
}

// Close releases the index.
func (s *IVFPQIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.centroids, s.lists, s.codebooks = nil, nil, nil
	s.vectors, s.codes = nil, nil
	return nil
}

// kmeans clusters vectors into k centroids with k-means++ seeding and
// a bounded number of Lloyd iterations. Caller holds the write lock.
func (s *IVFPQIndex) kmeans(vectors [][]float32, k int) [][]float32 {
	centroids := s.seedCentroids(vectors, k)

	assignments := make([]int, len(vectors))
	for iter := 0; iter < kmeansMaxIterations; iter++ {
		changed := false
		for i, v := range vectors {
			c := s.nearestCentroid(v, centroids)
			if c != assignments[i] {
				assignments[i] = c
				changed = true
			}
		}
		if iter > 0 && !changed {
			break
		}

		dim := len(vectors[0])
		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, v := range vectors {
			c := assignments[i]
			counts[c]++
			for d, val := range v {
				sums[c][d] += float64(val)
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			for d := range centroids[c] {
				centroids[c][d] = float32(sums[c][d] / float64(counts[c]))
			}
		}
	}

	return centroids
}

// seedCentroids picks k initial centroids with k-means++: the first
// uniformly, the rest proportional to squared distance from the
// nearest already-chosen centroid.
func (s *IVFPQIndex) seedCentroids(vectors [][]float32, k int) [][]float32 {
	centroids := make([][]float32, 0, k)

	first := s.rng.Intn(len(vectors))
	centroids = append(centroids, cloneVector(vectors[first]))

	for len(centroids) < k {
		distSq := make([]float64, len(vectors))
		var sum float64
		for i, v := range vectors {
			c := s.nearestCentroid(v, centroids)
			d := euclidean(v, centroids[c])
			distSq[i] = d * d
			sum += distSq[i]
		}

		idx := len(vectors) - 1
		if sum > 0 {
			r := s.rng.Float64() * sum
			var cumulative float64
			for i, d := range distSq {
				cumulative += d
				if cumulative >= r {
					idx = i
					break
				}
			}
		} else {
			idx = s.rng.Intn(len(vectors))
		}
		centroids = append(centroids, cloneVector(vectors[idx]))
	}

	return centroids
}

// nearestCentroid returns the index of the closest centroid by
// euclidean distance.
func (s *IVFPQIndex) nearestCentroid(v []float32, centroids [][]float32) int {
	best := 0
	bestDist := math.Inf(1)
	for i, c := range centroids {
		if d := euclidean(v, c); d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

// nearestCentroids returns the n closest coarse centroid indices.
func (s *IVFPQIndex) nearestCentroids(v []float32, n int) []int {
	type candidate struct {
		idx  int
		dist float64
	}
	candidates := make([]candidate, len(s.centroids))
	for i, c := range s.centroids {
		candidates[i] = candidate{idx: i, dist: euclidean(v, c)}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].dist < candidates[j].dist
	})
	if n > len(candidates) {
		n = len(candidates)
	}
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = candidates[i].idx
	}
	return out
}

// encode quantizes a vector to one codebook index per subspace.
func (s *IVFPQIndex) encode(v []float32) []byte {
	subDim := s.cfg.Dimensions / s.cfg.PQSubspaces
	code := make([]byte, s.cfg.PQSubspaces)
	for sub := 0; sub < s.cfg.PQSubspaces; sub++ {
		segment := v[sub*subDim : (sub+1)*subDim]
		code[sub] = byte(s.nearestCentroid(segment, s.codebooks[sub]))
	}
	return code
}

// codeDistance computes the asymmetric distance between a raw query
// and a quantized vector by reconstructing from the codebooks.
func (s *IVFPQIndex) codeDistance(q []float32, code []byte) float64 {
	subDim := s.cfg.Dimensions / s.cfg.PQSubspaces
	switch s.cfg.Metric {
	case MetricL2:
		var sum float64
		for sub, c := range code {
			sum += squaredEuclidean(q[sub*subDim:(sub+1)*subDim], s.codebooks[sub][c])
		}
		return math.Sqrt(sum)
	default:
		// Cosine distance on unit vectors is 1 - dot product.
		var dot float64
		for sub, c := range code {
			segment := q[sub*subDim : (sub+1)*subDim]
			centroid := s.codebooks[sub][c]
			for i, val := range segment {
				dot += float64(val) * float64(centroid[i])
			}
		}
		return 1 - dot
	}
}

// vectorDistance computes the metric distance between two vectors.
// Cosine assumes both sides are already unit-normalized.
func vectorDistance(a, b []float32, metric Metric) float64 {
	switch metric {
	case MetricL2:
		return euclidean(a, b)
	default:
		var dot float64
		for i, val := range a {
			dot += float64(val) * float64(b[i])
		}
		return 1 - dot
	}
}

func euclidean(a, b []float32) float64 {
	return math.Sqrt(squaredEuclidean(a, b))
}

func squaredEuclidean(a, b []float32) float64 {
	var sum float64
	for i, val := range a {
		d := float64(val) - float64(b[i])
		sum += d * d
	}
	return sum
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

var (
	_ VectorIndex    = (*IVFPQIndex)(nil)
	_ TrainableIndex = (*IVFPQIndex)(nil)
)
