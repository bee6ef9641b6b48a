package domain

import "errors"

var (
	// ErrInvalidArgument signals a caller-supplied parameter out of range.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrUnknownProvider signals an unrecognized provider name.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrProviderError signals a chat/embedding provider failure.
	ErrProviderError = errors.New("provider error")
	// ErrEmptyEmbedding signals a provider response with no usable vector.
	ErrEmptyEmbedding = errors.New("empty embedding")
)
