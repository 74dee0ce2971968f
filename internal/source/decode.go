package source

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Decode converts raw script bytes to text. A byte order mark selects UTF-8
// or UTF-16 and is dropped. Input that is not valid UTF-8 is read as GB18030.
func Decode(raw []byte) (string, error) {
	var dec transform.Transformer
	switch {
	case bytes.HasPrefix(raw, bomUTF16LE), bytes.HasPrefix(raw, bomUTF16BE), utf8.Valid(raw):
		dec = unicode.BOMOverride(unicode.UTF8.NewDecoder())
	default:
		dec = simplifiedchinese.GB18030.NewDecoder()
	}

	out, _, err := transform.Bytes(dec, raw)
	if err != nil {
		return "", fmt.Errorf("failed to decode: %w", err)
	}
	return string(out), nil
}
