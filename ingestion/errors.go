package ingestion

import "errors"

var (
	// ErrEmptyDocument indicates the source file contained no text.
	ErrEmptyDocument = errors.New("document contains no text")
)
