// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package attach

import (
	"net/url"
	"os"
	"strings"
)

// ParsePastedPath recognizes input that is a single existing file path, as
// terminals insert when a file is dragged onto them. Quoted paths,
// backslash-escaped spaces and file:// URLs are accepted.
func ParsePastedPath(input string) (string, bool) {
	s := strings.TrimSpace(input)
	if s == "" || strings.ContainsAny(s, "\n\r") {
		return "", false
	}

	if len(s) >= 2 && (s[0] == '\'' || s[0] == '"') && s[len(s)-1] == s[0] {
		s = s[1 : len(s)-1]
	} else if strings.Contains(s, `\ `) {
		s = unescapeSpaces(s)
	}

	if strings.HasPrefix(s, "file://") {
		u, err := url.Parse(s)
		if err != nil {
			return "", false
		}
		s = u.Path
	}

	info, err := os.Stat(s)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return s, true
}

func unescapeSpaces(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) && s[i+1] == ' ' {
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
