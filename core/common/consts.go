package common

// Document metadata keys. The underscore-prefixed ones follow the eino loaders.
const (
	MetaSource     = "_source"
	MetaExtension  = "_extension"
	MetaFileName   = "_file_name"
	MetaChunkIndex = "chunk_index"

	Title1 = "h1"
	Title2 = "h2"
	Title3 = "h3"
)
