package badger

import (
	"encoding/binary"
	"time"

	"github.com/poiesic/docvec/core"
)

// Key prefixes for different data types
const (
	vectorEntryPrefix = "vecent"
	jobRecordPrefix   = "jobrec"
	jobTerminalPrefix = "jobfin"
	cacheEntryPrefix  = "embcache"
)

// makeCollectionPrefix generates the key prefix for one user collection.
// The collection name is a pure function of (userID, contentType), so the
// prefix is re-derivable without a name registry.
func makeCollectionPrefix(userID string, ct core.ContentType) []byte {
	return []byte(vectorEntryPrefix + ":" + core.CollectionName(userID, ct) + ":")
}

// makeVectorEntryKey generates the key for one entry in a user collection.
func makeVectorEntryKey(userID string, ct core.ContentType, entryID string) []byte {
	return append(makeCollectionPrefix(userID, ct), []byte(entryID)...)
}

// makeJobKey generates the key for a job record by id.
func makeJobKey(id string) []byte {
	return []byte(jobRecordPrefix + ":" + id)
}

// makeJobTerminalKey generates a composite key for the terminal-job index.
// Format: prefix:finishedAt:jobId, with the timestamp in BigEndian order so
// lexicographic iteration visits oldest terminal jobs first.
func makeJobTerminalKey(finishedAt time.Time, jobID string) []byte {
	prefix := jobTerminalPrefix + ":"
	buf := make([]byte, len(prefix)+8+len(jobID))
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(finishedAt.UnixMicro()))
	offset += 8
	copy(buf[offset:], jobID)
	return buf
}

// makeCacheKey generates the key for a memoized embedding.
func makeCacheKey(cacheKey string) []byte {
	return []byte(cacheEntryPrefix + ":" + cacheKey)
}
