package dialect

import "strings"

// record is one logical row of fields. Line is the physical line where it
// starts, which differs from its index once quoted fields span lines.
type record struct {
	line   int
	fields []string
	blank  bool
}

// splitter breaks decoded text into records. A quote only opens at the start
// of a field; inside a quoted field a doubled quote is a literal quote and
// line breaks are part of the value. Text after a closing quote is kept
// literally up to the next delimiter.
type splitter struct {
	delim rune
	quote rune
}

// split returns all records and whether the input ended inside a quoted field.
func (s splitter) split(text string, firstLine int) ([]record, bool) {
	var (
		records  []record
		fields   []string
		buf      strings.Builder
		inQuote  bool
		atStart  = true
		line     = firstLine
		recStart = firstLine
		runes    = []rune(text)
	)

	endField := func() {
		fields = append(fields, buf.String())
		buf.Reset()
		atStart = true
	}
	endRecord := func() {
		blank := len(fields) == 0 && buf.Len() == 0
		endField()
		records = append(records, record{line: recStart, fields: fields, blank: blank})
		fields = nil
	}

	for i := 0; i < len(runes); i++ {
		r := runes[i]

		if inQuote {
			switch {
			case r == s.quote:
				if i+1 < len(runes) && runes[i+1] == s.quote {
					buf.WriteRune(s.quote)
					i++
				} else {
					inQuote = false
				}
			case r == '\r' && i+1 < len(runes) && runes[i+1] == '\n':
				buf.WriteString("\r\n")
				i++
				line++
			default:
				if r == '\n' {
					line++
				}
				buf.WriteRune(r)
			}
			continue
		}

		switch {
		case r == s.quote && atStart:
			inQuote = true
			atStart = false
		case r == s.delim:
			endField()
		case r == '\r' || r == '\n':
			if r == '\r' && i+1 < len(runes) && runes[i+1] == '\n' {
				i++
			}
			endRecord()
			line++
			recStart = line
		default:
			atStart = false
			buf.WriteRune(r)
		}
	}

	// Flush a final record without a trailing newline.
	if len(fields) > 0 || buf.Len() > 0 || inQuote {
		endRecord()
	}
	return records, inQuote
}

// skipLines drops the first n physical lines of text.
func skipLines(text string, n int) string {
	for ; n > 0 && text != ""; n-- {
		i := strings.IndexByte(text, '\n')
		if i < 0 {
			return ""
		}
		text = text[i+1:]
	}
	return text
}
