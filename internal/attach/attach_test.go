// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attach

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/visionchat/internal/model"
)

var (
	pngHeader  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")
	jpegHeader = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00\x01\x01\x00\x00\x01\x00\x01\x00\x00")
	pdfHeader  = []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n")
)

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

// =============================================================================
// INSPECT TESTS
// =============================================================================

func TestInspect(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name      string
		file      string
		data      []byte
		mediaType string
		err       error
	}{
		{"png", "cat.png", pngHeader, "image/png", nil},
		{"jpeg with wrong extension", "photo.txt", jpegHeader, "image/jpeg", nil},
		{"pdf rejected", "paper.pdf", pdfHeader, "", ErrUnsupportedType},
		{"doc rejected", "notes.doc", []byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1}, "", ErrUnsupportedType},
		{"docx rejected", "notes.docx", []byte("PK\x03\x04\x14\x00\x06\x00"), "", ErrUnsupportedType},
		{"plain text rejected", "readme.md", []byte("# hello"), "", ErrUnsupportedType},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeFile(t, dir, tc.file, tc.data)
			a, err := Inspect(path, 0)
			if tc.err != nil {
				assert.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.mediaType, a.MediaType)
			assert.Equal(t, tc.file, a.Name)
			assert.Equal(t, int64(len(tc.data)), a.Size)
			assert.True(t, filepath.IsAbs(a.Path))
		})
	}
}

func TestInspect_Limits(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "big.png", append(pngHeader, make([]byte, 100)...))

	_, err := Inspect(path, 50)
	assert.ErrorIs(t, err, ErrTooLarge)

	_, err = Inspect(dir, 0)
	assert.ErrorIs(t, err, ErrNotRegular)

	_, err = Inspect(filepath.Join(dir, "missing.png"), 0)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestDetectMediaType_ExtensionFallback(t *testing.T) {
	assert.Equal(t, "application/pdf", DetectMediaType("x.pdf", []byte{0x00, 0x01}))
	assert.Equal(t, "application/msword", DetectMediaType("x.doc", []byte{0x00, 0x01}))
	assert.Equal(t, "image/png", DetectMediaType("x.txt", pngHeader))
}

// =============================================================================
// ENCODE TESTS
// =============================================================================

func TestEncode(t *testing.T) {
	path := writeFile(t, t.TempDir(), "cat.png", pngHeader)
	a, err := Inspect(path, 0)
	require.NoError(t, err)

	part, err := Encode(a)
	require.NoError(t, err)
	assert.Equal(t, model.PartImage, part.Type)

	prefix := "data:image/png;base64,"
	require.True(t, strings.HasPrefix(part.Data, prefix))
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(part.Data, prefix))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, decoded)
}

func TestEncode_RejectsNonImage(t *testing.T) {
	_, err := Encode(model.Attachment{Name: "a.pdf", MediaType: "application/pdf"})
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

// =============================================================================
// QUEUE TESTS
// =============================================================================

func TestQueue(t *testing.T) {
	dir := t.TempDir()
	png := writeFile(t, dir, "a.png", pngHeader)
	jpg := writeFile(t, dir, "b.jpg", jpegHeader)
	pdf := writeFile(t, dir, "c.pdf", pdfHeader)

	q := NewQueue(0)
	_, err := q.Add(png)
	require.NoError(t, err)
	_, err = q.Add(jpg)
	require.NoError(t, err)

	_, err = q.Add(pdf)
	assert.ErrorIs(t, err, ErrUnsupportedType)
	_, err = q.Add(png)
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.Equal(t, 2, q.Len())

	removed, ok := q.Remove(0)
	require.True(t, ok)
	assert.Equal(t, "a.png", removed.Name)
	_, ok = q.Remove(5)
	assert.False(t, ok)

	items := q.Drain()
	require.Len(t, items, 1)
	assert.Equal(t, "b.jpg", items[0].Name)
	assert.Equal(t, 0, q.Len())
	assert.Empty(t, q.Drain())
}

// =============================================================================
// PASTED PATH TESTS
// =============================================================================

func TestParsePastedPath(t *testing.T) {
	dir := t.TempDir()
	plain := writeFile(t, dir, "cat.png", pngHeader)
	spaced := writeFile(t, dir, "my cat.png", pngHeader)

	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"plain", plain, plain, true},
		{"padded", "  " + plain + " ", plain, true},
		{"single quoted", "'" + spaced + "'", spaced, true},
		{"double quoted", `"` + spaced + `"`, spaced, true},
		{"escaped spaces", strings.ReplaceAll(spaced, " ", `\ `), spaced, true},
		{"file url", "file://" + filepath.ToSlash(plain), filepath.ToSlash(plain), true},
		{"directory", dir, "", false},
		{"missing", filepath.Join(dir, "nope.png"), "", false},
		{"sentence", "what is in " + plain, "", false},
		{"empty", "", "", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParsePastedPath(tc.input)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

// =============================================================================
// WATCHER TESTS
// =============================================================================

func TestWatcher_QueuesDroppedImages(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "drop")
	q := NewQueue(0)
	events := make(chan DropEvent, 4)

	w, err := NewWatcher(dir, q,
		WithSettle(30*time.Millisecond),
		WithNotify(func(e DropEvent) { events <- e }),
	)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	t.Cleanup(func() { _ = w.Close() })

	writeFile(t, dir, "shot.png", pngHeader)
	writeFile(t, dir, "paper.pdf", pdfHeader)

	got := map[string]DropEvent{}
	deadline := time.After(5 * time.Second)
	for len(got) < 2 {
		select {
		case e := <-events:
			got[filepath.Base(e.Path)] = e
		case <-deadline:
			t.Fatalf("timed out waiting for drop events, got %v", got)
		}
	}

	assert.NoError(t, got["shot.png"].Err)
	assert.ErrorIs(t, got["paper.pdf"].Err, ErrUnsupportedType)

	items := q.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "shot.png", items[0].Name)
}

func TestNewWatcher_RequiresDir(t *testing.T) {
	_, err := NewWatcher("", NewQueue(0))
	assert.Error(t, err)
}
