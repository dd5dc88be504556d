// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for the chat transcript.
//
// The transcript is the ordered, append-only list of messages rendered by the
// front ends. Message content may only change after insertion through a
// StreamTarget, the handle returned when a placeholder assistant message is
// created for a streaming response.
//
// # Key Types
//
//   - Role: Message role enumeration (user, assistant)
//   - Message: Single message with role, text or multipart content, and attachments
//   - ContentPart: One text or inline image part of a multipart message
//   - Attachment: A local file selected by the user
//   - Transcript: Mutex-guarded, append-only message list
//   - StreamTarget: Write handle for the in-flight assistant message
//
// # Usage
//
//	t := model.NewTranscript()
//	t.AppendUser("Describe this image", parts, files)
//
//	target, err := t.BeginAssistant()
//	if err != nil {
//	    return err
//	}
//	_ = target.Update("A cat sitting")
//	_ = target.Update("A cat sitting on a mat.")
//	target.Close()
package model
