// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/jeranaias/visionchat/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrNoCredential is returned when neither the environment nor the key
	// file provides a token.
	ErrNoCredential = errors.New("no API key configured")

	// ErrInsecureKeyFile is returned when the key file is readable by group or others.
	ErrInsecureKeyFile = errors.New("key file has insecure permissions")
)

// =============================================================================
// KEY STORE
// =============================================================================

// KeyStore stores the endpoint bearer token.
type KeyStore interface {
	// Store saves the token.
	Store(key string) error
	// Retrieve returns the stored token.
	Retrieve() (string, error)
	// Delete removes the token.
	Delete() error
	// Exists reports whether a token is stored.
	Exists() bool
}

var _ KeyStore = (*FileKeyStore)(nil)

// FileKeyStore keeps the token in an owner-only file.
type FileKeyStore struct {
	path string
}

// NewFileKeyStore creates a file-based key store.
func NewFileKeyStore(path string) *FileKeyStore {
	return &FileKeyStore{path: path}
}

// Path returns the key file path.
func (f *FileKeyStore) Path() string {
	return f.path
}

// Store writes the token with 0600 permissions.
// RELIABILITY: Atomic write with fsync prevents data loss on crash
func (f *FileKeyStore) Store(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("refusing to store an empty key")
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	if err := util.AtomicWriteFile(f.path, []byte(key+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// Retrieve reads the token. On Unix a file readable by group or others is
// rejected rather than used.
func (f *FileKeyStore) Retrieve() (string, error) {
	info, err := os.Stat(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNoCredential
		}
		return "", fmt.Errorf("failed to stat key file: %w", err)
	}

	// SECURITY: a shared token file is treated as compromised configuration
	if runtime.GOOS != "windows" {
		if mode := info.Mode().Perm(); mode&0077 != 0 {
			return "", fmt.Errorf("%w (%o): fix with: chmod 600 %s", ErrInsecureKeyFile, mode, f.path)
		}
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return "", fmt.Errorf("failed to read key file: %w", err)
	}
	key := strings.TrimSpace(string(data))
	if key == "" {
		return "", ErrNoCredential
	}
	return key, nil
}

// Delete overwrites the key file with zeros and removes it.
func (f *FileKeyStore) Delete() error {
	info, err := os.Stat(f.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat key file for deletion: %w", err)
	}

	if size := info.Size(); size > 0 {
		if fh, err := os.OpenFile(f.path, os.O_WRONLY, 0600); err == nil {
			_, _ = fh.Write(make([]byte, size))
			_ = fh.Sync()
			_ = fh.Close()
		}
	}

	if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete key file: %w", err)
	}
	return nil
}

// Exists checks if the key file exists.
func (f *FileKeyStore) Exists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

// =============================================================================
// RESOLUTION
// =============================================================================

// CredentialSource says where a resolved token came from.
type CredentialSource string

const (
	SourceEnv     CredentialSource = "env"
	SourceKeyFile CredentialSource = "key_file"
)

// KeyStore returns the file key store for this configuration.
func (c *Config) KeyStore() *FileKeyStore {
	return NewFileKeyStore(c.Credentials.KeyFile)
}

// ResolveAPIKey returns the bearer token: first the environment variable
// named by credentials.api_key_env (which .env may have populated), then the
// key file.
func (c *Config) ResolveAPIKey() (string, CredentialSource, error) {
	if name := c.Credentials.APIKeyEnv; name != "" {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return v, SourceEnv, nil
		}
	}

	if c.Credentials.KeyFile == "" {
		return "", "", ErrNoCredential
	}
	key, err := c.KeyStore().Retrieve()
	if err != nil {
		return "", "", err
	}
	return key, SourceKeyFile, nil
}

// Fingerprint identifies a token without exposing any part of it.
// SECURITY: Uses SHA-256 so logs and status output never carry key fragments.
func Fingerprint(key string) string {
	if key == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:4])
}

// Redact renders a token for display as its length and fingerprint.
func Redact(key string) string {
	if key == "" {
		return "[not set]"
	}
	return fmt.Sprintf("[REDACTED, length=%d, fingerprint=%s]", len(key), Fingerprint(key))
}
