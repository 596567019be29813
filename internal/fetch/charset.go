package fetch

import (
	"bytes"
	"mime"
	"regexp"
	"strings"
	"unicode/utf8"

	xcharset "golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/unicode"
)

var metaCharsetRe = regexp.MustCompile(`(?i)<meta[^>]+charset\s*=\s*["']?\s*([a-zA-Z0-9_\-]+)`)

// DecodeHTML decodes raw bytes to a string using the heuristic chain:
// Content-Type charset, server-apparent encoding, meta charset in the
// first 4 KiB, then utf-8, cp949, euc-kr, latin-1. Strict decoding is
// tried first; the last resort is utf-8 with replacement runes. Returns
// the decoded text and the name of the encoding that succeeded.
func DecodeHTML(body []byte, contentType string) (string, string) {
	var chain []string

	if cs := charsetFromContentType(contentType); cs != "" {
		chain = append(chain, cs)
	}
	if _, name, certain := xcharset.DetermineEncoding(body, contentType); certain && name != "" {
		chain = append(chain, name)
	}
	if cs := charsetFromMeta(body); cs != "" {
		chain = append(chain, cs)
	}
	chain = append(chain, "utf-8", "cp949", "euc-kr", "latin-1")

	tried := make(map[string]bool, len(chain))
	for _, name := range chain {
		key := strings.ToLower(name)
		if tried[key] {
			continue
		}
		tried[key] = true
		if s, ok := decodeStrict(body, key); ok {
			return s, key
		}
	}

	// Last resort: utf-8 with replacement.
	return strings.ToValidUTF8(string(body), "�"), "utf-8"
}

// charsetFromContentType pulls the charset parameter from a Content-Type
// header value.
func charsetFromContentType(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return params["charset"]
}

// charsetFromMeta scans the first 4 KiB for a meta charset declaration.
func charsetFromMeta(body []byte) string {
	head := body
	if len(head) > 4096 {
		head = head[:4096]
	}
	m := metaCharsetRe.FindSubmatch(head)
	if m == nil {
		return ""
	}
	return string(bytes.ToLower(m[1]))
}

// decodeStrict decodes with the named encoding. The x/text decoders map
// invalid bytes to U+FFFD rather than erroring, so a replacement rune in
// the output is treated as a failed strict decode.
func decodeStrict(body []byte, name string) (string, bool) {
	var enc encoding.Encoding
	switch name {
	case "utf-8", "utf8":
		if utf8.Valid(body) {
			return string(body), true
		}
		return "", false
	case "cp949", "euc-kr", "euckr", "ks_c_5601-1987", "windows-949":
		enc = korean.EUCKR
	case "latin-1", "iso-8859-1", "windows-1252":
		enc = charmap.ISO8859_1
	case "utf-16", "utf-16le":
		enc = unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
	case "utf-16be":
		enc = unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
	default:
		e, _ := xcharset.Lookup(name)
		if e == nil {
			return "", false
		}
		enc = e
	}

	out, err := enc.NewDecoder().Bytes(body)
	if err != nil || !utf8.Valid(out) {
		return "", false
	}
	if bytes.ContainsRune(out, utf8.RuneError) {
		return "", false
	}
	return string(out), true
}
