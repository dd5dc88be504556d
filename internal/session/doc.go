// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session runs one chat session: it turns a submission into a user
// message, sends the transcript to the backend and writes the answer back.
//
// A Controller admits one request at a time. While a request is outstanding
// Submit returns ErrBusy. Any request-level failure leaves exactly one
// assistant message carrying FailureText in the transcript.
//
// Front ends register an Observer to hear about transcript and loading
// changes; the TUI forwards these into its event loop.
package session
