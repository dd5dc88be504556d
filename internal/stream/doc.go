// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream turns a server-sent event response body into progressive
// updates of a single assistant message.
//
// The body is read chunk by chunk. Complete lines are extracted with a
// LineBuffer, "data: " records are decoded into content deltas, and the
// deltas are folded into an accumulator. The latest accumulated text is
// published through a Scheduler that holds at most one pending flush, so the
// consumer sees at most one write per flush interval. At end of data the
// pending flush runs synchronously; the final text is never lost.
//
// # Key Types
//
//   - LineBuffer: Splits arbitrary byte chunks into complete lines
//   - Chunk: One decoded streaming frame
//   - Scheduler: Single outstanding deferred task with in-place replacement
//   - Engine: Drives a response body into a Sink
//   - Metrics: Prometheus counters for frames, deltas and flushes
//
// # Usage
//
//	eng := stream.NewEngine(stream.WithLogger(logger))
//	text, err := eng.Run(ctx, resp.Body, target)
package stream
