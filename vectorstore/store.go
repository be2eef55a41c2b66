package vectorstore

import (
	"context"
	"log/slog"

	"github.com/poiesic/docvec/core"
	"github.com/poiesic/docvec/storage"
)

// Store manages per-user, per-content-type vector collections. Collection
// identity is a pure function of (userID, contentType); collections are
// created lazily on first write and torn down by the session-deletion
// workflow through the Delete* methods.
type Store struct {
	repo   storage.VectorRepository
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
	}
}

// NewStore creates a new vector store service.
func NewStore(repo storage.VectorRepository, opts ...Option) (*Store, error) {
	if repo == nil {
		return nil, ErrRepositoryRequired
	}

	s := &Store{
		repo:   repo,
		logger: slog.Default().With("component", "vectorstore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AddResult reports the outcome of an AddEntries call.
type AddResult struct {
	Requested int
	Stored    int
}

// AddEntries writes entries into the caller's collection. Idempotent per
// entry id; concurrent duplicate writes are safe because content for a
// given id is deterministic (last write wins).
func (s *Store) AddEntries(ctx context.Context, userID string, ct core.ContentType, entries []*core.VectorEntry) (*AddResult, error) {
	if userID == "" {
		return nil, core.ErrEmptyUserId
	}
	if err := core.ValidateContentType(ct); err != nil {
		return nil, err
	}

	stored, err := s.repo.AddEntries(ctx, userID, ct, entries...)
	result := &AddResult{Requested: len(entries), Stored: stored}
	if err != nil {
		s.logger.Warn("some vector entries were not stored",
			"requested", result.Requested, "stored", result.Stored, "err", err)
		return result, err
	}
	return result, nil
}

// SearchFilters scope a similarity search to the caller's own data.
type SearchFilters struct {
	UserId      string
	SessionId   string // Optional
	ContentType core.ContentType
}

// Search ranks the caller's entries by similarity to queryEmbedding.
// Isolation is structural: the searched key space is derived from
// filters.UserId, so entries of other users are unreachable regardless of
// filter mistakes.
func (s *Store) Search(ctx context.Context, queryEmbedding []float32, filters SearchFilters, limit int) ([]*core.SearchResult, error) {
	if filters.UserId == "" {
		return nil, core.ErrEmptyUserId
	}
	ct := filters.ContentType
	if ct == 0 {
		ct = core.ContentTypeText
	}
	if err := core.ValidateContentType(ct); err != nil {
		return nil, err
	}

	return s.repo.FindSimilar(ctx, filters.UserId, ct, queryEmbedding, filters.SessionId, limit)
}

// DeleteSessionData removes the text entries matching both sessionID and
// userID. Deleting an absent session or collection is a successful no-op.
func (s *Store) DeleteSessionData(ctx context.Context, sessionID, userID string) error {
	return s.deleteSession(ctx, sessionID, userID, core.ContentTypeText)
}

// DeleteSessionImageData removes the image entries matching both sessionID
// and userID.
func (s *Store) DeleteSessionImageData(ctx context.Context, sessionID, userID string) error {
	return s.deleteSession(ctx, sessionID, userID, core.ContentTypeImage)
}

func (s *Store) deleteSession(ctx context.Context, sessionID, userID string, ct core.ContentType) error {
	if userID == "" {
		return core.ErrEmptyUserId
	}

	deleted, err := s.repo.DeleteSession(ctx, userID, ct, sessionID)
	if err != nil {
		s.logger.Error("error deleting session data",
			"contentType", ct.String(), "err", err)
		return err
	}
	s.logger.Info("deleted session data",
		"contentType", ct.String(), "entries", deleted)
	return nil
}

// DeleteUserCollections drops all of the user's collections irreversibly.
// Intended only after the caller has confirmed the user has no remaining
// sessions. Cleanup is best-effort and non-blocking: a failure on one
// collection is logged and does not abort deletion of the others; the
// first error is returned after all collections have been attempted.
func (s *Store) DeleteUserCollections(ctx context.Context, userID string) error {
	if userID == "" {
		return core.ErrEmptyUserId
	}

	var firstErr error
	for _, ct := range []core.ContentType{core.ContentTypeText, core.ContentTypeImage} {
		if err := s.repo.DeleteUserCollection(ctx, userID, ct); err != nil {
			s.logger.Error("error deleting user collection",
				"contentType", ct.String(), "err", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		s.logger.Info("deleted user collection", "contentType", ct.String())
	}
	return firstErr
}

// UserHasData reports whether the user still has stored entries. The
// session-deletion workflow uses this to decide whether to cascade into
// DeleteUserCollections.
func (s *Store) UserHasData(ctx context.Context, userID string) (bool, error) {
	if userID == "" {
		return false, core.ErrEmptyUserId
	}
	return s.repo.UserHasData(ctx, userID)
}

// ListCollections returns info about the user's non-empty collections.
func (s *Store) ListCollections(ctx context.Context, userID string) ([]storage.CollectionInfo, error) {
	if userID == "" {
		return nil, core.ErrEmptyUserId
	}
	return s.repo.ListCollections(ctx, userID)
}
