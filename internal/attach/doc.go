// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package attach turns local files into inline image content parts.
//
// Files are inspected when they are selected: the media type is sniffed from
// the first bytes and only images are accepted. Documents such as PDF or Word
// files are rejected at that point with ErrUnsupportedType, so nothing the
// user picked is dropped silently later. Accepted files wait in a Queue until
// the next submission drains it, and are then encoded as base64 data URIs.
//
// # Key Types
//
//   - Queue: Pending attachments, cleared when a submission starts
//   - Watcher: Offers files that appear in a drop directory to a Queue
//
// # Usage
//
//	q := attach.NewQueue(cfg.Attachments.MaxBytes)
//	if _, err := q.Add("photo.jpg"); err != nil {
//	    return err
//	}
//	for _, a := range q.Drain() {
//	    part, err := attach.Encode(a)
//	    ...
//	}
package attach
