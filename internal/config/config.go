// Package config loads lexivec configuration from YAML with
// environment-variable overrides. Precedence, lowest to highest:
// built-in defaults, config file, LEXIVEC_* environment variables.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lexivec/lexivec/internal/errors"
	"github.com/lexivec/lexivec/internal/fusion"
	"github.com/lexivec/lexivec/internal/index"
)

// weightEpsilon tolerates float noise when validating the weight sum.
const weightEpsilon = 1e-9

// Config is the complete lexivec configuration.
type Config struct {
	DataDir    string           `yaml:"data_dir"`
	Search     SearchConfig     `yaml:"search"`
	Lexical    LexicalConfig    `yaml:"lexical"`
	Vector     VectorConfig     `yaml:"vector"`
	Fusion     FusionConfig     `yaml:"fusion"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Rerank     RerankConfig     `yaml:"rerank"`
	LogLevel   string           `yaml:"log_level"`
}

// SearchConfig tunes the query pipeline.
type SearchConfig struct {
	// CandidateFloor is the minimum candidate pool fetched from each
	// index before fusion, regardless of k.
	CandidateFloor int `yaml:"candidate_floor"`
	// RerankPool is the number of top fused candidates sent to the
	// reranker.
	RerankPool int `yaml:"rerank_pool"`
	// RerankTimeout bounds one rerank call.
	RerankTimeout time.Duration `yaml:"rerank_timeout"`
}

// LexicalConfig configures the lexical index backend.
type LexicalConfig struct {
	// Backend selects the implementation: "corpus" or "bleve".
	Backend        string  `yaml:"backend"`
	K1             float64 `yaml:"k1"`
	B              float64 `yaml:"b"`
	MinTokenLength int     `yaml:"min_token_length"`
}

// VectorConfig configures the vector index backend.
type VectorConfig struct {
	// Backend selects the implementation: "hnsw" or "ivfpq".
	Backend    string `yaml:"backend"`
	Dimensions int    `yaml:"dimensions"`
	Metric     string `yaml:"metric"`

	M              int `yaml:"m"`
	EfConstruction int `yaml:"ef_construction"`
	EfSearch       int `yaml:"ef_search"`

	NClusters          int  `yaml:"n_clusters"`
	NProbes            int  `yaml:"n_probes"`
	MinTrainingVectors int  `yaml:"min_training_vectors"`
	UseQuantization    bool `yaml:"use_quantization"`
	PQSubspaces        int  `yaml:"pq_subspaces"`
	PQCentroids        int  `yaml:"pq_centroids"`
}

// FusionConfig configures the fusion ranker.
type FusionConfig struct {
	// Strategy selects the ranker: "weighted", "rrf", or "learned".
	Strategy      string  `yaml:"strategy"`
	WeightLexical float64 `yaml:"weight_lexical"`
	WeightVector  float64 `yaml:"weight_vector"`
	RRFConstant   int     `yaml:"rrf_constant"`
	LearningRate  float64 `yaml:"learning_rate"`
	Epochs        int     `yaml:"epochs"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the implementation: "ollama", "openai", or
	// "static".
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	OllamaHost string `yaml:"ollama_host"`
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	CacheSize  int    `yaml:"cache_size"`
	// OnPremise disables external embedding calls entirely; ingestion
	// stays lexical-only unless the static provider is selected.
	OnPremise bool `yaml:"on_premise"`
}

// RerankConfig configures the optional cross-encoder.
type RerankConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Endpoint string        `yaml:"endpoint"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		DataDir: defaultDataDir(),
		Search: SearchConfig{
			CandidateFloor: 50,
			RerankPool:     50,
			RerankTimeout:  30 * time.Second,
		},
		Lexical: LexicalConfig{
			Backend:        string(index.LexicalBackendCorpus),
			K1:             1.2,
			B:              0.75,
			MinTokenLength: 2,
		},
		Vector: VectorConfig{
			Backend:        string(index.VectorBackendHNSW),
			Dimensions:     0, // detected from the embedder
			Metric:         string(index.MetricCosine),
			M:              16,
			EfConstruction: 200,
			EfSearch:       20,
			NClusters:      16,
			NProbes:        4,
		},
		Fusion: FusionConfig{
			Strategy:      string(fusion.StrategyRRF),
			WeightLexical: 0.5,
			WeightVector:  0.5,
			RRFConstant:   fusion.DefaultRRFConstant,
			LearningRate:  0.1,
			Epochs:        200,
		},
		Embeddings: EmbeddingsConfig{
			Provider:  "static",
			CacheSize: 1000,
		},
		Rerank: RerankConfig{
			Timeout: 30 * time.Second,
		},
		LogLevel: "info",
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".lexivec")
	}
	return filepath.Join(home, ".lexivec")
}

// Load builds the effective configuration: defaults, then the YAML
// file at path (missing file is fine), then LEXIVEC_* env overrides,
// then validation.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadYAML(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.New(errors.ErrCodeConfigNotFound,
			fmt.Sprintf("failed to read config file %s", path), err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("failed to parse config file %s", path), err)
	}
	return nil
}

// applyEnvOverrides applies LEXIVEC_* environment variables, the
// highest-precedence configuration source.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("LEXIVEC_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("LEXIVEC_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LEXIVEC_FUSION_STRATEGY"); v != "" {
		c.Fusion.Strategy = v
	}
	if v := os.Getenv("LEXIVEC_WEIGHT_LEXICAL"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Fusion.WeightLexical = f
		}
	}
	if v := os.Getenv("LEXIVEC_WEIGHT_VECTOR"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Fusion.WeightVector = f
		}
	}
	if v := os.Getenv("LEXIVEC_RRF_CONSTANT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Fusion.RRFConstant = n
		}
	}
	if v := os.Getenv("LEXIVEC_LEXICAL_BACKEND"); v != "" {
		c.Lexical.Backend = v
	}
	if v := os.Getenv("LEXIVEC_VECTOR_BACKEND"); v != "" {
		c.Vector.Backend = v
	}
	if v := os.Getenv("LEXIVEC_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("LEXIVEC_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("LEXIVEC_OPENAI_API_KEY"); v != "" {
		c.Embeddings.APIKey = v
	}
	if v := os.Getenv("LEXIVEC_RERANK_ENDPOINT"); v != "" {
		c.Rerank.Endpoint = v
		c.Rerank.Enabled = true
	}
}

// Validate enforces construction-time invariants. Violations are fatal
// configuration errors, raised before any index is built.
func (c *Config) Validate() error {
	if c.Fusion.Strategy == string(fusion.StrategyWeighted) ||
		c.Fusion.Strategy == string(fusion.StrategyLearned) {
		sum := c.Fusion.WeightLexical + c.Fusion.WeightVector
		if c.Fusion.WeightLexical < 0 || c.Fusion.WeightVector < 0 ||
			math.Abs(sum-1.0) > weightEpsilon {
			return errors.New(errors.ErrCodeInvalidWeights,
				fmt.Sprintf("fusion weights must sum to 1.0, got %g + %g = %g",
					c.Fusion.WeightLexical, c.Fusion.WeightVector, sum), nil)
		}
	}

	if c.Vector.Dimensions < 0 {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("vector dimensions must be non-negative, got %d", c.Vector.Dimensions), nil)
	}
	if c.Vector.UseQuantization && c.Vector.PQSubspaces > 0 && c.Vector.Dimensions > 0 &&
		c.Vector.Dimensions%c.Vector.PQSubspaces != 0 {
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("pq subspaces %d must divide dimensions %d",
				c.Vector.PQSubspaces, c.Vector.Dimensions), nil)
	}
	if c.Search.CandidateFloor < 0 || c.Search.RerankPool < 0 {
		return errors.New(errors.ErrCodeConfigInvalid,
			"search pool sizes must be non-negative", nil)
	}

	switch c.Lexical.Backend {
	case string(index.LexicalBackendCorpus), string(index.LexicalBackendBleve), "":
	default:
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown lexical backend %q", c.Lexical.Backend), nil)
	}
	switch c.Vector.Backend {
	case string(index.VectorBackendHNSW), string(index.VectorBackendIVFPQ), "":
	default:
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown vector backend %q", c.Vector.Backend), nil)
	}
	switch c.Fusion.Strategy {
	case string(fusion.StrategyWeighted), string(fusion.StrategyRRF),
		string(fusion.StrategyLearned), "":
	default:
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown fusion strategy %q", c.Fusion.Strategy), nil)
	}
	switch c.Embeddings.Provider {
	case "ollama", "openai", "static", "":
	default:
		return errors.New(errors.ErrCodeConfigInvalid,
			fmt.Sprintf("unknown embeddings provider %q", c.Embeddings.Provider), nil)
	}

	return nil
}

// LexicalIndexConfig converts to the index package's config type.
func (c *Config) LexicalIndexConfig() index.LexicalConfig {
	return index.LexicalConfig{
		Backend:        index.LexicalBackend(c.Lexical.Backend),
		K1:             c.Lexical.K1,
		B:              c.Lexical.B,
		MinTokenLength: c.Lexical.MinTokenLength,
	}
}

// VectorIndexConfig converts to the index package's config type,
// filling the dimension from the embedder when unset.
func (c *Config) VectorIndexConfig(embedderDims int) index.VectorConfig {
	dims := c.Vector.Dimensions
	if dims == 0 {
		dims = embedderDims
	}
	return index.VectorConfig{
		Backend:            index.VectorBackend(c.Vector.Backend),
		Dimensions:         dims,
		Metric:             index.Metric(c.Vector.Metric),
		M:                  c.Vector.M,
		EfConstruction:     c.Vector.EfConstruction,
		EfSearch:           c.Vector.EfSearch,
		NClusters:          c.Vector.NClusters,
		NProbes:            c.Vector.NProbes,
		MinTrainingVectors: c.Vector.MinTrainingVectors,
		UseQuantization:    c.Vector.UseQuantization,
		PQSubspaces:        c.Vector.PQSubspaces,
		PQCentroids:        c.Vector.PQCentroids,
	}
}

// FusionRankerConfig converts to the fusion package's config type.
func (c *Config) FusionRankerConfig() fusion.Config {
	return fusion.Config{
		Strategy:      fusion.Strategy(c.Fusion.Strategy),
		WeightLexical: c.Fusion.WeightLexical,
		WeightVector:  c.Fusion.WeightVector,
		KRRF:          c.Fusion.RRFConstant,
		LearningRate:  c.Fusion.LearningRate,
		Epochs:        c.Fusion.Epochs,
	}
}
