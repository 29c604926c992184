package table

// wire.go encodes tables in the JSON shape shared by the API and the stores:
//
//	{"headers": ["id", "name"], "rows": [[1, "a"], [2, null]]}
//
// Null cells are JSON null. Cells of numeric columns are emitted as JSON
// numbers when their text is already a valid JSON number literal, so the
// decoded text is byte-identical to what was encoded. Boolean columns are
// emitted as JSON booleans.

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
)

var jsonNumberRegex = regexp.MustCompile(`^-?(0|[1-9]\d*)(\.\d+)?([eE][+-]?\d+)?$`)

// Wire is the encoded form of a table. Embedding it in a response struct
// adds "headers" and "rows" fields next to the response's own fields.
type Wire struct {
	Headers []string `json:"headers"`
	Rows    [][]any  `json:"rows"`
}

// MarshalJSON implements json.Marshaler.
func (t Table) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Wire())
}

// Wire encodes the table cells for JSON output.
func (t *Table) Wire() Wire {
	w := Wire{
		Headers: t.Columns,
		Rows:    make([][]any, len(t.Rows)),
	}
	if w.Headers == nil {
		w.Headers = []string{}
	}
	kinds := t.Kinds()
	for i, row := range t.Rows {
		out := make([]any, len(row))
		for j, v := range row {
			out[j] = encodeCell(v, kinds[j])
		}
		w.Rows[i] = out
	}
	return w
}

func encodeCell(v Value, k Kind) any {
	if v.IsNull() {
		return nil
	}
	s := v.String()
	switch k {
	case KindNumeric:
		if jsonNumberRegex.MatchString(s) {
			return json.Number(s)
		}
	case KindBool:
		return s == TrueText
	}
	return s
}

// UnmarshalJSON implements json.Unmarshaler. Scalars become text cells:
// numbers keep their literal text and booleans become "True"/"False".
func (t *Table) UnmarshalJSON(data []byte) error {
	var w struct {
		Headers []string          `json:"headers"`
		Rows    []json.RawMessage `json:"rows"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	out, err := New(w.Headers)
	if err != nil {
		return err
	}
	out.Rows = make([][]Value, 0, len(w.Rows))
	for i, raw := range w.Rows {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		var cells []any
		if err := dec.Decode(&cells); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		if len(cells) != len(out.Columns) {
			return fmt.Errorf("row %d has %d cells, want %d", i, len(cells), len(out.Columns))
		}
		row := make([]Value, len(cells))
		for j, c := range cells {
			v, err := DecodeScalar(c)
			if err != nil {
				return fmt.Errorf("row %d column %q: %w", i, out.Columns[j], err)
			}
			row[j] = v
		}
		out.Rows = append(out.Rows, row)
	}
	*t = *out
	return nil
}

// DecodeScalar converts a JSON scalar decoded with UseNumber into a cell.
func DecodeScalar(c any) (Value, error) {
	switch x := c.(type) {
	case nil:
		return Null(), nil
	case string:
		return Text(x), nil
	case json.Number:
		return Text(x.String()), nil
	case bool:
		return Bool(x), nil
	default:
		return Null(), fmt.Errorf("unsupported cell type %T", c)
	}
}
