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


package storage

import (
	"fmt"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/docvec/core"
)

// MUS serializers for composite fields. Vectors use fixed-width float32
// encoding; timestamps are stored with microsecond precision.
var (
	vectorSer   = ord.NewSliceSer[float32](raw.Float32)
	metadataSer = ord.NewMapSer[string, string](ord.String, ord.String)
)

// MarshalVectorEntry serializes a VectorEntry to bytes.
func MarshalVectorEntry(e *core.VectorEntry) []byte {
	size := ord.String.Size(e.Id) +
		ord.String.Size(e.DocumentId) +
		ord.String.Size(e.SessionId) +
		varint.Int.Size(e.ChunkIndex) +
		ord.String.Size(e.Text) +
		vectorSer.Size(e.Vector) +
		metadataSer.Size(e.Metadata) +
		raw.TimeUnixMicro.Size(e.InsertedAt)
	buf := make([]byte, size)
	n := ord.String.Marshal(e.Id, buf)
	n += ord.String.Marshal(e.DocumentId, buf[n:])
	n += ord.String.Marshal(e.SessionId, buf[n:])
	n += varint.Int.Marshal(e.ChunkIndex, buf[n:])
	n += ord.String.Marshal(e.Text, buf[n:])
	n += vectorSer.Marshal(e.Vector, buf[n:])
	n += metadataSer.Marshal(e.Metadata, buf[n:])
	raw.TimeUnixMicro.Marshal(e.InsertedAt, buf[n:])
	return buf
}

// UnmarshalVectorEntry deserializes a VectorEntry from bytes.
func UnmarshalVectorEntry(data []byte) (*core.VectorEntry, error) {
	var (
		e   core.VectorEntry
		off int
		n   int
		err error
	)
	if e.Id, n, err = ord.String.Unmarshal(data); err != nil {
		return nil, corrupt("vector entry id", err)
	}
	off += n
	if e.DocumentId, n, err = ord.String.Unmarshal(data[off:]); err != nil {
		return nil, corrupt("vector entry document id", err)
	}
	off += n
	if e.SessionId, n, err = ord.String.Unmarshal(data[off:]); err != nil {
		return nil, corrupt("vector entry session id", err)
	}
	off += n
	if e.ChunkIndex, n, err = varint.Int.Unmarshal(data[off:]); err != nil {
		return nil, corrupt("vector entry chunk index", err)
	}
	off += n
	if e.Text, n, err = ord.String.Unmarshal(data[off:]); err != nil {
		return nil, corrupt("vector entry text", err)
	}
	off += n
	if e.Vector, n, err = vectorSer.Unmarshal(data[off:]); err != nil {
		return nil, corrupt("vector entry vector", err)
	}
	off += n
	if e.Metadata, n, err = metadataSer.Unmarshal(data[off:]); err != nil {
		return nil, corrupt("vector entry metadata", err)
	}
	off += n
	if e.InsertedAt, _, err = raw.TimeUnixMicro.Unmarshal(data[off:]); err != nil {
		return nil, corrupt("vector entry inserted at", err)
	}
	return &e, nil
}

// MarshalJob serializes a Job to bytes.
func MarshalJob(j *core.Job) []byte {
	size := ord.String.Size(j.Id) +
		ord.String.Size(j.DocumentId) +
		ord.String.Size(j.UserId) +
		ord.String.Size(j.SessionId) +
		ord.String.Size(j.FilePath) +
		ord.String.Size(j.FileType) +
		varint.Int.Size(int(j.Options.ContentType)) +
		varint.Int.Size(j.Options.BatchSize) +
		varint.Int.Size(int(j.Status)) +
		varint.Int.Size(j.Progress) +
		ord.String.Size(j.Message) +
		ord.String.Size(j.Error) +
		varint.Int.Size(j.RetryCount) +
		raw.TimeUnixMicro.Size(j.EnqueuedAt) +
		raw.TimeUnixMicro.Size(j.UpdatedAt) +
		raw.TimeUnixMicro.Size(j.FinishedAt)
	buf := make([]byte, size)
	n := ord.String.Marshal(j.Id, buf)
	n += ord.String.Marshal(j.DocumentId, buf[n:])
	n += ord.String.Marshal(j.UserId, buf[n:])
	n += ord.String.Marshal(j.SessionId, buf[n:])
	n += ord.String.Marshal(j.FilePath, buf[n:])
	n += ord.String.Marshal(j.FileType, buf[n:])
	n += varint.Int.Marshal(int(j.Options.ContentType), buf[n:])
	n += varint.Int.Marshal(j.Options.BatchSize, buf[n:])
	n += varint.Int.Marshal(int(j.Status), buf[n:])
	n += varint.Int.Marshal(j.Progress, buf[n:])
	n += ord.String.Marshal(j.Message, buf[n:])
	n += ord.String.Marshal(j.Error, buf[n:])
	n += varint.Int.Marshal(j.RetryCount, buf[n:])
	n += raw.TimeUnixMicro.Marshal(j.EnqueuedAt, buf[n:])
	n += raw.TimeUnixMicro.Marshal(j.UpdatedAt, buf[n:])
	raw.TimeUnixMicro.Marshal(j.FinishedAt, buf[n:])
	return buf
}

// UnmarshalJob deserializes a Job from bytes.
func UnmarshalJob(data []byte) (*core.Job, error) {
	var (
		j           core.Job
		off         int
		n           int
		contentType int
		status      int
		err         error
	)
	if j.Id, n, err = ord.String.Unmarshal(data); err != nil {
		return nil, corrupt("job id", err)
	}
	off += n
	if j.DocumentId, n, err = ord.String.Unmarshal(data[off:]); err != nil {
		return nil, corrupt("job document id", err)
	}
	off += n
	if j.UserId, n, err = ord.String.Unmarshal(data[off:]); err != nil {
		return nil, corrupt("job user id", err)
	}
	off += n
	if j.SessionId, n, err = ord.String.Unmarshal(data[off:]); err != nil {
		return nil, corrupt("job session id", err)
	}
	off += n
	if j.FilePath, n, err = ord.String.Unmarshal(data[off:]); err != nil {
		return nil, corrupt("job file path", err)
	}
	off += n
	if j.FileType, n, err = ord.String.Unmarshal(data[off:]); err != nil {
		return nil, corrupt("job file type", err)
	}
	off += n
	if contentType, n, err = varint.Int.Unmarshal(data[off:]); err != nil {
		return nil, corrupt("job content type", err)
	}
	j.Options.ContentType = core.ContentType(contentType)
	off += n
	if j.Options.BatchSize, n, err = varint.Int.Unmarshal(data[off:]); err != nil {
		return nil, corrupt("job batch size", err)
	}
	off += n
	if status, n, err = varint.Int.Unmarshal(data[off:]); err != nil {
		return nil, corrupt("job status", err)
	}
	j.Status = core.JobStatus(status)
	off += n
	if j.Progress, n, err = varint.Int.Unmarshal(data[off:]); err != nil {
		return nil, corrupt("job progress", err)
	}
	off += n
	if j.Message, n, err = ord.String.Unmarshal(data[off:]); err != nil {
		return nil, corrupt("job message", err)
	}
	off += n
	if j.Error, n, err = ord.String.Unmarshal(data[off:]); err != nil {
		return nil, corrupt("job error", err)
	}
	off += n
	if j.RetryCount, n, err = varint.Int.Unmarshal(data[off:]); err != nil {
		return nil, corrupt("job retry count", err)
	}
	off += n
	if j.EnqueuedAt, n, err = raw.TimeUnixMicro.Unmarshal(data[off:]); err != nil {
		return nil, corrupt("job enqueued at", err)
	}
	off += n
	if j.UpdatedAt, n, err = raw.TimeUnixMicro.Unmarshal(data[off:]); err != nil {
		return nil, corrupt("job updated at", err)
	}
	off += n
	if j.FinishedAt, _, err = raw.TimeUnixMicro.Unmarshal(data[off:]); err != nil {
		return nil, corrupt("job finished at", err)
	}
	return &j, nil
}

// MarshalCacheEntry serializes a CacheEntry to bytes.
func MarshalCacheEntry(e *core.CacheEntry) []byte {
	size := ord.String.Size(e.Key) +
		ord.String.Size(e.Model) +
		varint.Int.Size(e.Dimensions) +
		vectorSer.Size(e.Vector)
	buf := make([]byte, size)
	n := ord.String.Marshal(e.Key, buf)
	n += ord.String.Marshal(e.Model, buf[n:])
	n += varint.Int.Marshal(e.Dimensions, buf[n:])
	vectorSer.Marshal(e.Vector, buf[n:])
	return buf
}

// UnmarshalCacheEntry deserializes a CacheEntry from bytes.
func UnmarshalCacheEntry(data []byte) (*core.CacheEntry, error) {
	var (
		e   core.CacheEntry
		off int
		n   int
		err error
	)
	if e.Key, n, err = ord.String.Unmarshal(data); err != nil {
		return nil, corrupt("cache entry key", err)
	}
	off += n
	if e.Model, n, err = ord.String.Unmarshal(data[off:]); err != nil {
		return nil, corrupt("cache entry model", err)
	}
	off += n
	if e.Dimensions, n, err = varint.Int.Unmarshal(data[off:]); err != nil {
		return nil, corrupt("cache entry dimensions", err)
	}
	off += n
	if e.Vector, _, err = vectorSer.Unmarshal(data[off:]); err != nil {
		return nil, corrupt("cache entry vector", err)
	}
	return &e, nil
}

func corrupt(field string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrCorruptRecord, field, err)
}
