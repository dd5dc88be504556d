// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the front ends and the
// configuration layer.
//
// # Key Functions
//
//   - AtomicWriteFile: Crash-safe file writing with fsync
//   - ExpandHome: Resolves a leading ~ in configured paths
//   - TruncateWidth: Display-width aware truncation with ellipsis
//   - FormatBytes: Human-readable file sizes for attachment chips
//
// # Usage
//
//	err := util.AtomicWriteFile(path, data, 0600)
//	label := util.TruncateWidth(name, 24) + " " + util.FormatBytes(size)
package util
