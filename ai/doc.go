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


// Package ai provides abstractions for the inference backend used by docvec.
//
// The core pipeline depends only on the Embedder interface, never on a
// concrete client, so the backend can be swapped without touching the
// ingestion or caching layers.
//
// Implementation sub-packages:
//
//   - ai/openai: production implementation for OpenAI-compatible APIs
//     (Ollama, LocalAI, vLLM, OpenAI)
//   - ai/mock: deterministic test double for unit testing without an
//     external service
//
// Production constructors return the Embedder interface to enforce
// abstraction; the mock constructor returns a concrete type so tests can
// inject behavior and assert on call counts.
package ai
