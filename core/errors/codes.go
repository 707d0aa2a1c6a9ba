package errors

import "net/http"

// ErrCode business error code
type ErrCode int

const (
	// General 1000-1999
	ErrInvalidParameter ErrCode = 1001
	ErrUnauthorized     ErrCode = 1002
	ErrInternalError    ErrCode = 1003
	ErrNotFound         ErrCode = 1004
	ErrValidationFailed ErrCode = 1007 // request body is missing a required field

	// Models 2000-2999
	ErrModelConfigInvalid ErrCode = 2002
	ErrEmbeddingFailed    ErrCode = 2003
	ErrLLMCallFailed      ErrCode = 2004
	ErrModelNotConfigured ErrCode = 2005
	ErrEmptyCompletion    ErrCode = 2008

	// Documents 4000-4999
	ErrDocumentParseFailed ErrCode = 4002
	ErrFileReadFailed      ErrCode = 4007
	ErrIndexingFailed      ErrCode = 4009

	// Vector stores 5000-5999
	ErrVectorStoreInit ErrCode = 5001
	ErrVectorSearch    ErrCode = 5002
	ErrVectorInsert    ErrCode = 5003
	ErrIndexLoadFailed ErrCode = 5006
	ErrIndexCorrupted  ErrCode = 5007
	ErrIndexMismatch   ErrCode = 5008

	// Answering 9000-9999
	ErrRetrievalFailed    ErrCode = 9001
	ErrPromptFormatFailed ErrCode = 9003
	ErrPipelineFailed     ErrCode = 9004
)

var codeNames = map[ErrCode]string{
	ErrInvalidParameter:    "invalid_parameter",
	ErrUnauthorized:        "unauthorized",
	ErrInternalError:       "internal_error",
	ErrNotFound:            "not_found",
	ErrValidationFailed:    "validation_failed",
	ErrModelConfigInvalid:  "model_config_invalid",
	ErrEmbeddingFailed:     "embedding_failed",
	ErrLLMCallFailed:       "llm_call_failed",
	ErrModelNotConfigured:  "model_not_configured",
	ErrEmptyCompletion:     "empty_completion",
	ErrDocumentParseFailed: "document_parse_failed",
	ErrFileReadFailed:      "file_read_failed",
	ErrIndexingFailed:      "indexing_failed",
	ErrVectorStoreInit:     "vector_store_init",
	ErrVectorSearch:        "vector_search",
	ErrVectorInsert:        "vector_insert",
	ErrIndexLoadFailed:     "index_load_failed",
	ErrIndexCorrupted:      "index_corrupted",
	ErrIndexMismatch:       "index_mismatch",
	ErrRetrievalFailed:     "retrieval_failed",
	ErrPromptFormatFailed:  "prompt_format_failed",
	ErrPipelineFailed:      "pipeline_failed",
}

// String returns the log-friendly category name of the code.
func (e ErrCode) String() string {
	if name, ok := codeNames[e]; ok {
		return name
	}
	return "unknown"
}

// HTTPStatusCode 返回错误码对应的HTTP状态码
func (e ErrCode) HTTPStatusCode() int {
	switch {
	case e >= 1001 && e <= 1999:
		switch e {
		case ErrInvalidParameter:
			return http.StatusBadRequest
		case ErrUnauthorized:
			return http.StatusUnauthorized
		case ErrNotFound:
			return http.StatusNotFound
		case ErrValidationFailed:
			return http.StatusUnprocessableEntity
		default:
			return http.StatusInternalServerError
		}
	case e >= 2000 && e <= 2999:
		switch e {
		case ErrLLMCallFailed, ErrEmbeddingFailed:
			return http.StatusBadGateway
		default:
			return http.StatusInternalServerError
		}
	default:
		return http.StatusInternalServerError
	}
}
