package mutate

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/JonMunkholm/tabwork/internal/table"
)

// rawOperation is the JSON form of one operation:
//
//	{"type": "edit", "row": 3, "column": "price", "value": 9.5}
//	{"type": "delete_group", "column": "region", "value": "EU"}
//	{"type": "find_replace", "find": "n/a", "replace": "", "column": ""}
//
// Cell values may be any JSON scalar and are stored by their text.
type rawOperation struct {
	Type    string `json:"type"`
	Row     *int   `json:"row"`
	Column  string `json:"column"`
	Name    string `json:"name"`
	Value   any    `json:"value"`
	Find    any    `json:"find"`
	Replace any    `json:"replace"`
}

// DecodeBatch parses a JSON array of operations. An unknown type or a
// missing row index rejects the whole batch.
func DecodeBatch(data []byte) (Batch, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raws []rawOperation
	if err := dec.Decode(&raws); err != nil {
		return nil, fmt.Errorf("decode change batch: %w", err)
	}

	batch := make(Batch, 0, len(raws))
	for i, r := range raws {
		op, err := r.operation()
		if err != nil {
			return nil, fmt.Errorf("change %d: %w", i, err)
		}
		batch = append(batch, op)
	}
	return batch, nil
}

func (r rawOperation) operation() (Operation, error) {
	switch r.Type {
	case "edit":
		if r.Row == nil {
			return nil, fmt.Errorf("edit requires row")
		}
		v, err := scalarText(r.Value)
		if err != nil {
			return nil, err
		}
		return Edit{Row: *r.Row, Column: r.Column, Value: v}, nil
	case "add_row":
		return AddRow{}, nil
	case "delete_row":
		if r.Row == nil {
			return nil, fmt.Errorf("delete_row requires row")
		}
		return DeleteRow{Row: *r.Row}, nil
	case "delete_group":
		v, err := scalarText(r.Value)
		if err != nil {
			return nil, err
		}
		return DeleteGroup{Column: r.Column, Value: v}, nil
	case "add_column":
		return AddColumn{Name: r.columnName()}, nil
	case "delete_column":
		return DeleteColumn{Name: r.columnName()}, nil
	case "find_replace":
		find, err := scalarText(r.Find)
		if err != nil {
			return nil, err
		}
		repl, err := scalarText(r.Replace)
		if err != nil {
			return nil, err
		}
		return FindReplace{Find: find, Replace: repl, Column: r.Column}, nil
	default:
		return nil, fmt.Errorf("unknown operation type %q", r.Type)
	}
}

// columnName accepts either "name" or "column" for column operations.
func (r rawOperation) columnName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Column
}

func scalarText(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case bool:
		return table.Bool(x).String(), nil
	default:
		return "", fmt.Errorf("value must be a scalar, got %T", v)
	}
}
