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


// Package storage defines repository interfaces for vector collections,
// ingestion jobs, and the embedding cache, together with the MUS binary
// serialization used for stored records.
//
// Implementations live in sub-packages (storage/badger). Consumers depend
// only on the interfaces here, so the backing store can change without
// touching the pipeline.
package storage
