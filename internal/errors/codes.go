// Package errors provides structured error handling for lexivec.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Index errors (lexical index, persistence)
//   - 3XX: Provider errors (embedding, reranking)
//   - 4XX: Search errors (query-time failures)
//   - 5XX: Vector store errors
//   - 6XX: Fusion errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIndex indicates lexical-index errors (document not found, corruption).
	CategoryIndex Category = "INDEX"
	// CategoryProvider indicates external provider errors (embedding, reranking).
	CategoryProvider Category = "PROVIDER"
	// CategorySearch indicates query-time failures in either index.
	CategorySearch Category = "SEARCH"
	// CategoryVectorStore indicates vector index build/add/save/load failures.
	CategoryVectorStore Category = "VECTOR_STORE"
	// CategoryFusion indicates invalid fusion configuration or training failure.
	CategoryFusion Category = "FUSION"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Index errors (200-299)
	ErrCodeDocNotFound  = "ERR_201_DOC_NOT_FOUND"
	ErrCodeCorruptIndex = "ERR_202_CORRUPT_INDEX"
	ErrCodeIndexFailed  = "ERR_203_INDEX_FAILED"

	// Provider errors (300-399)
	ErrCodeEmbeddingFailed = "ERR_301_EMBEDDING_FAILED"
	ErrCodeRerankFailed    = "ERR_302_RERANK_FAILED"
	ErrCodeProviderTimeout = "ERR_303_PROVIDER_TIMEOUT"

	// Search errors (400-499)
	ErrCodeSearchFailed = "ERR_401_SEARCH_FAILED"
	ErrCodeInvalidQuery = "ERR_402_INVALID_QUERY"

	// Vector store errors (500-599)
	ErrCodeVectorStoreFailed = "ERR_501_VECTOR_STORE_FAILED"
	ErrCodeDimensionMismatch = "ERR_502_DIMENSION_MISMATCH"
	ErrCodeNotTrained        = "ERR_503_NOT_TRAINED"

	// Fusion errors (600-699)
	ErrCodeInvalidWeights = "ERR_601_INVALID_WEIGHTS"
	ErrCodeTrainingFailed = "ERR_602_TRAINING_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategorySearch
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIndex
	case '3':
		return CategoryProvider
	case '4':
		return CategorySearch
	case '5':
		return CategoryVectorStore
	case '6':
		return CategoryFusion
	default:
		return CategorySearch
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeConfigInvalid, ErrCodeInvalidWeights, ErrCodeDimensionMismatch:
		// Construction-time configuration errors abort startup.
		return SeverityFatal
	case ErrCodeEmbeddingFailed, ErrCodeRerankFailed, ErrCodeProviderTimeout:
		// Provider failures degrade the result, not the call.
		return SeverityWarning
	default:
		return SeverityError
	}
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeEmbeddingFailed, ErrCodeRerankFailed, ErrCodeProviderTimeout:
		return true
	default:
		return false
	}
}
