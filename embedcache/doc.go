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


// Package embedcache deduplicates and batches embedding requests in front
// of a rate-limited inference backend.
//
// Documents frequently repeat boilerplate (headers, license blocks), so a
// content-addressed cache converts O(chunks) inference calls into O(unique
// chunks). The cache store is best-effort: when it is unavailable the
// service degrades to "always miss" rather than failing the request.
//
// Batch calls report per-item failures as structured data and never fail
// the batch as a whole because one item failed.
package embedcache
