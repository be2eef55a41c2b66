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


// Package queue implements the durable document-processing job queue and
// its bounded worker pool.
//
// Jobs move queued -> active -> (completed | failed). An active job that
// goes too long without a progress update is marked stalled, retried once,
// and then forced to failed, so every job reaches a terminal state. Job
// state is persisted through the job repository; delivery is at-least-once
// and the pipeline's writes are idempotent, so re-running an interrupted
// job is safe.
package queue
