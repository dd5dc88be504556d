// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud is the client for an OpenAI-compatible chat-completions
// endpoint serving a vision-language model.
//
// Requests carry the whole transcript as {model, messages, stream}. Messages
// with attachments are sent as content-part arrays mixing text parts and
// image_url parts whose URL is a base64 data URI. Streaming responses are
// returned as a raw body for the stream package to ingest; buffered responses
// are decoded into a transcript message.
//
// # Key Types
//
//   - Client: HTTP client with bearer auth and TLS 1.2+
//   - ChatMessage: Wire form of a message, with string or multipart Content
//   - APIError: Non-2xx response from the endpoint
//
// # Usage
//
//	client := cloud.NewClient(cfg.Endpoint.URL, apiKey, cfg.Endpoint.Model)
//	body, err := client.OpenStream(ctx, transcript.History())
//	if err != nil {
//	    return err
//	}
//	defer body.Close()
//
// # Security
//
// The API key is never logged; log records carry a SHA-256 fingerprint.
// There are no retries: a failed request is reported once.
package cloud
