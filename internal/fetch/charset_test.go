package fetch

import (
	"strings"
	"testing"

	"golang.org/x/text/encoding/korean"
)

func TestDecodeHTMLUTF8(t *testing.T) {
	body := []byte("<html><body>안녕하세요</body></html>")
	text, enc := DecodeHTML(body, "text/html; charset=utf-8")
	if enc != "utf-8" {
		t.Errorf("encoding = %q, want utf-8", enc)
	}
	if !strings.Contains(text, "안녕하세요") {
		t.Errorf("decoded text lost content: %q", text)
	}
}

func TestDecodeHTMLEUCKRFromContentType(t *testing.T) {
	enc := korean.EUCKR.NewEncoder()
	raw, err := enc.Bytes([]byte("<html><body>한국어 본문</body></html>"))
	if err != nil {
		t.Fatal(err)
	}

	text, name := DecodeHTML(raw, "text/html; charset=euc-kr")
	if name != "euc-kr" {
		t.Errorf("encoding = %q, want euc-kr", name)
	}
	if !strings.Contains(text, "한국어 본문") {
		t.Errorf("decoded text lost content: %q", text)
	}
}

func TestDecodeHTMLMetaCharsetFallback(t *testing.T) {
	enc := korean.EUCKR.NewEncoder()
	raw, err := enc.Bytes([]byte(`<html><head><meta charset="euc-kr"></head><body>게시판 제목</body></html>`))
	if err != nil {
		t.Fatal(err)
	}

	// No charset in Content-Type; the meta tag (or the cp949 chain entry)
	// must still recover the text.
	text, _ := DecodeHTML(raw, "text/html")
	if !strings.Contains(text, "게시판 제목") {
		t.Errorf("decoded text lost content: %q", text)
	}
}

func TestDecodeHTMLInvalidBytesNeverPanics(t *testing.T) {
	body := []byte{0xff, 0xfe, 0xfd, '<', 'p', '>'}
	text, enc := DecodeHTML(body, "")
	if text == "" {
		t.Error("expected non-empty replacement decode")
	}
	if enc == "" {
		t.Error("expected an encoding name")
	}
}

func TestCharsetFromMeta(t *testing.T) {
	tests := []struct {
		html string
		want string
	}{
		{`<meta charset="UTF-8">`, "utf-8"},
		{`<meta http-equiv="Content-Type" content="text/html; charset=euc-kr">`, "euc-kr"},
		{`<p>no meta</p>`, ""},
	}
	for _, tt := range tests {
		if got := charsetFromMeta([]byte(tt.html)); got != tt.want {
			t.Errorf("charsetFromMeta(%q) = %q, want %q", tt.html, got, tt.want)
		}
	}
}
