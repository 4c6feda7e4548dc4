package session

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// IdentifierLayout formats session identifiers; it sorts chronologically and is filename safe.
const IdentifierLayout = "2006-01-02_15-04-05"

// maxIdentifierLen leaves room for the file extension within a 255-byte name.
const maxIdentifierLen = 250

// NewIdentifier derives an identifier from t at second resolution.
func NewIdentifier(t time.Time) string {
	return t.Format(IdentifierLayout)
}

// UniqueIdentifier returns base, or base with the first free numeric suffix
// when taken reports it as used. Suffixes are zero-padded so they sort in
// creation order.
func UniqueIdentifier(base string, taken func(string) bool) string {
	if taken == nil || !taken(base) {
		return base
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%02d", base, n)
		if !taken(candidate) {
			return candidate
		}
	}
}

// ValidIdentifier reports whether id can name a file directly inside the
// store directory. Older files are named after their persona, so any UTF-8
// name is accepted as long as it has no path separators, control characters,
// leading dot or surrounding spaces.
func ValidIdentifier(id string) bool {
	if id == "" || len(id) > maxIdentifierLen || !utf8.ValidString(id) {
		return false
	}
	if strings.HasPrefix(id, ".") || strings.TrimSpace(id) != id {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && strings.IndexFunc(id, unicode.IsControl) < 0
}
