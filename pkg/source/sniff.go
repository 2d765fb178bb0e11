/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: sniff.go
Description: Magic-number sniffing. Classifies a leading byte prefix as a
compression container, an archive, a binary format with a known signature, or
one of the text formats recognisable from its first significant characters.
*/

package source

import (
	"bytes"
	"unicode/utf8"
)

// MagicSize is the prefix length needed by Sniff
const MagicSize = 512

// Kind is the result of content sniffing
type Kind string

const (
	KindUnknown Kind = ""

	// Containers unwrapped by the resolver
	KindGzip  Kind = "gzip"
	KindZstd  Kind = "zstd"
	KindXz    Kind = "xz"
	KindBzip2 Kind = "bzip2"
	KindZip   Kind = "zip"

	// Binary formats with signatures
	KindParquet Kind = "parquet"
	KindSQLite  Kind = "sqlite"
	KindPDF     Kind = "pdf"
	KindImage   Kind = "image"

	// Text formats recognised by their leading characters
	KindJSON  Kind = "json"
	KindJSONL Kind = "jsonl"
	KindXML   Kind = "xml"
	KindHTML  Kind = "html"
	KindYAML  Kind = "yaml"
	KindText  Kind = "text"
)

// IsCompression reports whether the kind is a single-stream compression layer
func (k Kind) IsCompression() bool {
	switch k {
	case KindGzip, KindZstd, KindXz, KindBzip2:
		return true
	}
	return false
}

var signatures = []struct {
	magic []byte
	kind  Kind
}{
	{[]byte{0x1f, 0x8b}, KindGzip},
	{[]byte{0x28, 0xb5, 0x2f, 0xfd}, KindZstd},
	{[]byte{0xfd, '7', 'z', 'X', 'Z', 0x00}, KindXz},
	{[]byte("BZh"), KindBzip2},
	{[]byte("PK\x03\x04"), KindZip},
	{[]byte("PK\x05\x06"), KindZip}, // empty archive
	{[]byte("PAR1"), KindParquet},
	{[]byte("SQLite format 3\x00"), KindSQLite},
	{[]byte("%PDF"), KindPDF},
	{[]byte("\x89PNG\r\n\x1a\n"), KindImage},
	{[]byte{0xff, 0xd8, 0xff}, KindImage},
	{[]byte("GIF87a"), KindImage},
	{[]byte("GIF89a"), KindImage},
	{[]byte("II*\x00"), KindImage},
	{[]byte("MM\x00*"), KindImage},
}

var utf8BOM = []byte{0xef, 0xbb, 0xbf}

// Sniff classifies a leading prefix of a byte stream
func Sniff(prefix []byte) Kind {
	if len(prefix) == 0 {
		return KindUnknown
	}
	for _, sig := range signatures {
		if bytes.HasPrefix(prefix, sig.magic) {
			return sig.kind
		}
	}
	if len(prefix) >= 12 && bytes.Equal(prefix[:4], []byte("RIFF")) && bytes.Equal(prefix[8:12], []byte("WEBP")) {
		return KindImage
	}
	if !looksLikeText(prefix) {
		return KindUnknown
	}
	return sniffText(prefix)
}

func sniffText(prefix []byte) Kind {
	body := bytes.TrimPrefix(prefix, utf8BOM)
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) == 0 {
		return KindText
	}

	switch trimmed[0] {
	case '[':
		return KindJSON
	case '{':
		if isJSONLines(trimmed) {
			return KindJSONL
		}
		return KindJSON
	case '<':
		lower := bytes.ToLower(trimmed[:min(len(trimmed), 256)])
		if bytes.HasPrefix(lower, []byte("<!doctype html")) || bytes.HasPrefix(lower, []byte("<html")) {
			return KindHTML
		}
		if bytes.HasPrefix(lower, []byte("<?xml")) {
			if bytes.Contains(lower, []byte("<html")) {
				return KindHTML
			}
			return KindXML
		}
		return KindXML
	}
	if bytes.HasPrefix(trimmed, []byte("---")) || bytes.HasPrefix(trimmed, []byte("%YAML")) {
		return KindYAML
	}
	return KindText
}

// isJSONLines reports whether the first two non-blank lines are both
// complete JSON objects
func isJSONLines(b []byte) bool {
	lines := bytes.Split(b, []byte("\n"))
	count := 0
	for i, line := range lines {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		// the last split line may be cut off by the prefix window
		if i == len(lines)-1 && count > 0 {
			return line[0] == '{'
		}
		if line[0] != '{' || line[len(line)-1] != '}' {
			return false
		}
		count++
		if count == 2 {
			return true
		}
	}
	return false
}

// looksLikeText rejects prefixes with NUL bytes or mostly invalid UTF-8.
// Legacy single-byte encodings pass because only control bytes are counted.
func looksLikeText(prefix []byte) bool {
	if bytes.IndexByte(prefix, 0x00) >= 0 {
		// UTF-16 with a BOM is still text
		return bytes.HasPrefix(prefix, []byte{0xff, 0xfe}) || bytes.HasPrefix(prefix, []byte{0xfe, 0xff})
	}
	control := 0
	for _, c := range prefix {
		if c < 0x20 && c != '\n' && c != '\r' && c != '\t' && c != '\f' && c != 0x1b {
			control++
		}
	}
	if control*10 > len(prefix) {
		return false
	}
	// a cut multi-byte rune at the end of the window is fine
	if !utf8.Valid(prefix) {
		invalid := 0
		for i := 0; i < len(prefix); {
			r, size := utf8.DecodeRune(prefix[i:])
			if r == utf8.RuneError && size == 1 {
				invalid++
			}
			i += size
		}
		return invalid*4 < len(prefix)
	}
	return true
}
