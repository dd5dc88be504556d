// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attach

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/visionchat/internal/model"
)

// sniffLen is the number of bytes http.DetectContentType looks at.
const sniffLen = 512

var (
	// ErrUnsupportedType is returned for files that are not supported images.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrTooLarge is returned for files above the configured size limit.
	ErrTooLarge = errors.New("file too large")

	// ErrNotRegular is returned for directories and other non-regular files.
	ErrNotRegular = errors.New("not a regular file")
)

// supportedImages lists the media types accepted for inline encoding.
var supportedImages = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// documentTypes are offered by some pickers but cannot be sent inline.
var documentTypes = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// IsSupported reports whether mediaType can be attached.
func IsSupported(mediaType string) bool {
	return supportedImages[mediaType]
}

// DetectMediaType sniffs the media type of head, falling back to the file
// extension when sniffing is inconclusive.
func DetectMediaType(name string, head []byte) string {
	sniffed := http.DetectContentType(head)
	if i := strings.IndexByte(sniffed, ';'); i >= 0 {
		sniffed = strings.TrimSpace(sniffed[:i])
	}
	if sniffed != "application/octet-stream" && sniffed != "text/plain" {
		return sniffed
	}

	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := documentTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = t[:i]
		}
		return t
	}
	return sniffed
}

// Inspect validates the file at path and describes it.
// A maxBytes of 0 disables the size check.
func Inspect(path string, maxBytes int64) (model.Attachment, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return model.Attachment{}, fmt.Errorf("resolve %s: %w", path, err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return model.Attachment{}, fmt.Errorf("attach %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return model.Attachment{}, fmt.Errorf("attach %s: %w", path, ErrNotRegular)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return model.Attachment{}, fmt.Errorf("attach %s (%d bytes, limit %d): %w", path, info.Size(), maxBytes, ErrTooLarge)
	}

	f, err := os.Open(abs)
	if err != nil {
		return model.Attachment{}, fmt.Errorf("attach %s: %w", path, err)
	}
	defer f.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return model.Attachment{}, fmt.Errorf("attach %s: %w", path, err)
	}

	mediaType := DetectMediaType(abs, head[:n])
	if !IsSupported(mediaType) {
		return model.Attachment{}, fmt.Errorf("attach %s (%s): %w", filepath.Base(abs), mediaType, ErrUnsupportedType)
	}

	return model.Attachment{
		Name:      filepath.Base(abs),
		Path:      abs,
		MediaType: mediaType,
		Size:      info.Size(),
	}, nil
}

// DataURI renders data as a base64 data URI of the given media type.
func DataURI(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Encode reads an inspected attachment and returns it as an image part.
// Attachments that are not images are rejected.
func Encode(a model.Attachment) (model.ContentPart, error) {
	if !a.IsImage() || !IsSupported(a.MediaType) {
		return model.ContentPart{}, fmt.Errorf("encode %s (%s): %w", a.Name, a.MediaType, ErrUnsupportedType)
	}
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return model.ContentPart{}, fmt.Errorf("encode %s: %w", a.Name, err)
	}
	return model.ImagePart(DataURI(a.MediaType, data)), nil
}
