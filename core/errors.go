// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidJob indicates a Job failed validation.
	ErrInvalidJob = errors.New("invalid job")

	// ErrInvalidEntry indicates a VectorEntry failed validation.
	ErrInvalidEntry = errors.New("invalid vector entry")

	// ErrEmptyUserId indicates the UserId field is empty.
	ErrEmptyUserId = errors.New("user id cannot be empty")

	// ErrEmptyDocumentId indicates the DocumentId field is empty.
	ErrEmptyDocumentId = errors.New("document id cannot be empty")

	// ErrEmptyFilePath indicates the FilePath field is empty.
	ErrEmptyFilePath = errors.New("file path cannot be empty")

	// ErrEmptyEntryId indicates the entry Id field is empty.
	ErrEmptyEntryId = errors.New("entry id cannot be empty")

	// ErrInvalidContentType indicates an invalid ContentType value.
	ErrInvalidContentType = errors.New("invalid content type")

	// ErrInvalidProgress indicates a progress value outside 0-100.
	ErrInvalidProgress = errors.New("progress must be between 0 and 100")
)
