// Package dialect turns raw delimited bytes into a table.Table under a
// user-supplied parsing configuration.
//
// Parsing is tolerant: records with the wrong number of fields are dropped
// and reported as warnings. Only problems that leave no usable table, such as
// an unknown encoding or a file without any columns, are returned as a
// *ParseError.
package dialect

import (
	"fmt"
	"unicode/utf8"
)

// Defaults used when a file has no explicit configuration.
const (
	DefaultEncoding  = "utf-8"
	DefaultDelimiter = ";"
	DefaultQuoteChar = `"`
)

// Options is the parsing configuration for one file.
type Options struct {
	Encoding  string `json:"encoding"`
	Delimiter string `json:"delimiter"`
	QuoteChar string `json:"quotechar"`
	HasHeader bool   `json:"has_header"`
	SkipRows  int    `json:"skip_rows"`
}

// DefaultOptions returns utf-8, ';', '"', header present, no skipped rows.
func DefaultOptions() Options {
	return Options{
		Encoding:  DefaultEncoding,
		Delimiter: DefaultDelimiter,
		QuoteChar: DefaultQuoteChar,
		HasHeader: true,
	}
}

// delimiterAliases maps escape spellings typed into a form to the rune they mean.
var delimiterAliases = map[string]string{
	`\t`:  "\t",
	"tab": "\t",
}

// runes validates the options and returns the delimiter and quote rune.
// A quote of -1 disables quoting.
func (o Options) runes() (delim rune, quote rune, err error) {
	d := o.Delimiter
	if alias, ok := delimiterAliases[d]; ok {
		d = alias
	}
	if utf8.RuneCountInString(d) != 1 {
		return 0, 0, fmt.Errorf("delimiter must be a single character, got %q", o.Delimiter)
	}
	delim, _ = utf8.DecodeRuneInString(d)
	if delim == '\n' || delim == '\r' {
		return 0, 0, fmt.Errorf("delimiter cannot be a line break")
	}

	quote = -1
	switch utf8.RuneCountInString(o.QuoteChar) {
	case 0:
	case 1:
		quote, _ = utf8.DecodeRuneInString(o.QuoteChar)
		if quote == delim {
			return 0, 0, fmt.Errorf("quote character cannot equal the delimiter")
		}
	default:
		return 0, 0, fmt.Errorf("quote character must be a single character, got %q", o.QuoteChar)
	}

	if o.SkipRows < 0 {
		return 0, 0, fmt.Errorf("skip rows cannot be negative")
	}
	return delim, quote, nil
}

// Validate reports whether the options can be used for parsing.
func (o Options) Validate() error {
	if _, _, err := o.runes(); err != nil {
		return &ParseError{Reason: "invalid parsing options", Err: err}
	}
	return nil
}
