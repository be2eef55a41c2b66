package vectorstore

import "errors"

var (
	// ErrRepositoryRequired is returned when a vector repository is not provided.
	ErrRepositoryRequired = errors.New("vector repository required")
)
