// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import "bytes"

// MaxLineSize bounds the retained partial line (1MB). A longer fragment is
// discarded and reported through LineBuffer.OnDiscard.
// SECURITY: A body that never sends a newline cannot grow the buffer without limit.
const MaxLineSize = 1024 * 1024

// LineBuffer splits a byte stream into newline-terminated lines.
// A trailing fragment without a newline is retained and prefixed to the next
// chunk. Splitting happens on bytes, so a multi-byte UTF-8 sequence cut by a
// chunk boundary is reassembled before it is converted to text.
type LineBuffer struct {
	buf []byte

	// OnDiscard, if set, is called with the size of a fragment dropped for
	// exceeding MaxLineSize.
	OnDiscard func(size int)
}

// Feed appends chunk and returns every complete line, without the line
// terminator. A trailing carriage return is trimmed.
func (b *LineBuffer) Feed(chunk []byte) []string {
	b.buf = append(b.buf, chunk...)

	var lines []string
	for {
		i := bytes.IndexByte(b.buf, '\n')
		if i < 0 {
			break
		}
		line := b.buf[:i]
		line = bytes.TrimSuffix(line, []byte{'\r'})
		lines = append(lines, string(line))
		b.buf = b.buf[i+1:]
	}

	switch {
	case len(b.buf) == 0:
		// Release the backing array once everything has been consumed.
		b.buf = nil
	case len(b.buf) > MaxLineSize:
		size := len(b.buf)
		b.buf = nil
		if b.OnDiscard != nil {
			b.OnDiscard(size)
		}
	}
	return lines
}

// Pending returns the retained fragment that has not yet seen a newline.
func (b *LineBuffer) Pending() string {
	return string(b.buf)
}

// Reset discards any retained fragment.
func (b *LineBuffer) Reset() {
	b.buf = nil
}
