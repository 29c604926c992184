package dialect

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// encodingAliases covers common spellings that neither the WHATWG nor the
// IANA index knows.
var encodingAliases = map[string]string{
	"latin-1":   "iso-8859-1",
	"latin_1":   "iso-8859-1",
	"utf_8":     "utf-8",
	"utf8":      "utf-8",
	"utf-8-sig": "utf-8",
	"utf_8_sig": "utf-8",
	"ascii":     "us-ascii",
}

// lookupEncoding resolves an encoding label. A nil encoding means UTF-8.
func lookupEncoding(label string) (encoding.Encoding, error) {
	name := strings.ToLower(strings.TrimSpace(label))
	if name == "" {
		return nil, nil
	}
	if alias, ok := encodingAliases[name]; ok {
		name = alias
	}
	if name == "utf-8" {
		return nil, nil
	}
	if enc, err := htmlindex.Get(name); err == nil {
		return enc, nil
	}
	enc, err := ianaindex.IANA.Encoding(name)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q", label)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported encoding %q", label)
	}
	return enc, nil
}

// decode converts data to UTF-8 text using the named encoding. A leading
// byte order mark is removed.
func decode(data []byte, label string) (string, error) {
	enc, err := lookupEncoding(label)
	if err != nil {
		return "", &ParseError{Reason: "invalid encoding", Err: err}
	}

	if enc != nil {
		out, _, err := transform.Bytes(enc.NewDecoder(), data)
		if err != nil {
			return "", &ParseError{Reason: "unreadable input", Err: err}
		}
		data = out
	}

	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", &ParseError{
			Reason: "unreadable input",
			Err:    fmt.Errorf("file is not valid %s", displayEncoding(label)),
		}
	}
	return string(data), nil
}

func displayEncoding(label string) string {
	if strings.TrimSpace(label) == "" {
		return DefaultEncoding
	}
	return label
}
