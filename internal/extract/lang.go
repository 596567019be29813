package extract

import (
	"strings"

	"github.com/abadojack/whatlanggo"
)

// DetectLang returns the ISO 639-3 code of the dominant language of
// text, or "und" when the text is empty or nothing is recognized.
// Detection is trigram-based and deterministic for a given input.
func DetectLang(text string) string {
	if strings.TrimSpace(text) == "" {
		return "und"
	}
	info := whatlanggo.Detect(text)
	code := info.Lang.Iso6393()
	if code == "" {
		return "und"
	}
	return code
}
