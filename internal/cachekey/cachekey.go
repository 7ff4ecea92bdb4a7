package cachekey

import (
	"fmt"
	"hash/crc32"
	"path/filepath"
	"strconv"
	"strings"
)

// translit maps accented and extended Latin characters to their ASCII
// equivalents. Characters not in this table and not alphanumeric are
// treated as blanks and collapse away during slugification.
var translit = map[rune]string{
	'à': "a", 'á': "a", 'â': "a", 'ã': "a", 'ä': "a", 'å': "a", 'æ': "ae",
	'ç': "c",
	'è': "e", 'é': "e", 'ê': "e", 'ë': "e",
	'ì': "i", 'í': "i", 'î': "i", 'ï': "i",
	'ð': "d", 'ñ': "n",
	'ò': "o", 'ó': "o", 'ô': "o", 'õ': "o", 'ö': "o", 'ø': "o",
	'ù': "u", 'ú': "u", 'û': "u", 'ü': "u",
	'ý': "y", 'ÿ': "y",
	'þ': "th", 'ß': "ss",
	'œ': "oe", 'š': "s", 'ž': "z",
}

// Derive builds the cache key for one (source, dimensions) combination.
//
// The key consists of the slugified base filename, a "-{width}" suffix,
// an "x{height}" suffix when the caller requested an explicit height
// (pass height <= 0 when the height was derived from the source aspect
// ratio), and a trailing CRC32 of the raw filename including extension.
//
// The hash covers the filename component only, not the full path and not
// the file contents. It disambiguates same-named files from different
// source directories but does not detect in-place content changes; two
// different files sharing a basename collide on the hash portion. This is
// a best-effort cache identity, not a content checksum.
//
// Derive is deterministic: identical inputs always produce the same key.
func Derive(sourcePath string, width, height int) string {
	name := filepath.Base(sourcePath)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)

	var b strings.Builder
	b.WriteString(Slug(base))
	b.WriteByte('-')
	b.WriteString(strconv.Itoa(width))
	if height > 0 {
		b.WriteByte('x')
		b.WriteString(strconv.Itoa(height))
	}
	b.WriteByte('-')
	b.WriteString(HashFor(sourcePath))
	return b.String()
}

// HashFor returns the 8 hex character CRC32 checksum of the filename
// component of sourcePath (including extension). All cached size variants
// of one source share this suffix, which is what selective flush matches.
func HashFor(sourcePath string) string {
	name := filepath.Base(sourcePath)
	return fmt.Sprintf("%08x", crc32.ChecksumIEEE([]byte(name)))
}

// HashComponent extracts the trailing hash from a derived key. It returns
// false when the key does not end in an 8 hex character component, so
// unrelated files sitting in the cache directory never match a flush.
func HashComponent(key string) (string, bool) {
	i := strings.LastIndexByte(key, '-')
	if i < 0 {
		return "", false
	}
	h := key[i+1:]
	if len(h) != 8 {
		return "", false
	}
	for _, r := range h {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return "", false
		}
	}
	return h, true
}

// Slug normalizes a filename fragment into a lowercase, filesystem-safe
// identifier: accents folded to ASCII, punctuation stripped, whitespace
// and hyphen runs collapsed to single hyphens.
func Slug(s string) string {
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-':
			b.WriteByte('-')
		default:
			if t, ok := translit[r]; ok {
				b.WriteString(t)
			} else {
				b.WriteByte(' ')
			}
		}
	}

	// whitespace to hyphens, then collapse runs
	slug := strings.Join(strings.Fields(b.String()), "-")
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	return strings.Trim(slug, "-")
}
