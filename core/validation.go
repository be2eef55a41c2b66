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

import "fmt"

// ValidateJob validates a Job according to domain rules.
//
// Validation rules:
//   - DocumentId, UserId, FilePath must not be empty
//   - Progress must be within 0-100
//   - Options.ContentType, when set, must be valid
//
// NOT validated (populated by the queue):
//   - Id (assigned on enqueue)
//   - Status, timestamps (managed by the queue)
func ValidateJob(job *Job) error {
	if job == nil {
		return fmt.Errorf("%w: job is nil", ErrInvalidJob)
	}

	if job.DocumentId == "" {
		return fmt.Errorf("%w: %w", ErrInvalidJob, ErrEmptyDocumentId)
	}
	if job.UserId == "" {
		return fmt.Errorf("%w: %w", ErrInvalidJob, ErrEmptyUserId)
	}
	if job.FilePath == "" {
		return fmt.Errorf("%w: %w", ErrInvalidJob, ErrEmptyFilePath)
	}
	if job.Progress < 0 || job.Progress > 100 {
		return fmt.Errorf("%w: %w", ErrInvalidJob, ErrInvalidProgress)
	}
	if job.Options.ContentType != 0 {
		if err := ValidateContentType(job.Options.ContentType); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidJob, err)
		}
	}

	return nil
}

// ValidateVectorEntry validates a VectorEntry according to domain rules.
//
// Validation rules:
//   - Id and DocumentId must not be empty
//
// NOT validated:
//   - Vector (may be attached after embedding)
//   - SessionId (optional)
func ValidateVectorEntry(entry *VectorEntry) error {
	if entry == nil {
		return fmt.Errorf("%w: entry is nil", ErrInvalidEntry)
	}

	if entry.Id == "" {
		return fmt.Errorf("%w: %w", ErrInvalidEntry, ErrEmptyEntryId)
	}
	if entry.DocumentId == "" {
		return fmt.Errorf("%w: %w", ErrInvalidEntry, ErrEmptyDocumentId)
	}

	return nil
}

// ValidateContentType checks that the content type is a known value.
func ValidateContentType(ct ContentType) error {
	switch ct {
	case ContentTypeText, ContentTypeImage:
		return nil
	default:
		return fmt.Errorf("%w: %d", ErrInvalidContentType, ct)
	}
}
