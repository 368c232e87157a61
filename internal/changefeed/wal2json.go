package changefeed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type walKeys struct {
	KeyNames  []string `json:"keynames"`
	KeyValues []any    `json:"keyvalues"`
}

type walChange struct {
	Kind         string   `json:"kind"`
	Schema       string   `json:"schema"`
	Table        string   `json:"table"`
	ColumnNames  []string `json:"columnnames"`
	ColumnValues []any    `json:"columnvalues"`
	OldKeys      walKeys  `json:"oldkeys"`
}

type walEnvelope struct {
	Change []walChange `json:"change"`
}

// DecodeWal2JSON turns one wal2json (format-version 1) transaction into
// changes, folding the column arrays into row objects.
func DecodeWal2JSON(data []byte) ([]Change, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var env walEnvelope
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("wal2json decode: %w", err)
	}

	out := make([]Change, 0, len(env.Change))
	for _, wc := range env.Change {
		ch := Change{
			Event:  strings.ToUpper(wc.Kind),
			Schema: wc.Schema,
			Table:  wc.Table,
		}
		switch ch.Event {
		case Insert, Update:
			row, err := fold(wc.ColumnNames, wc.ColumnValues)
			if err != nil {
				return nil, err
			}
			ch.New = row
		case Delete:
		default:
			// truncate and message records carry no row
			continue
		}
		if len(wc.OldKeys.KeyNames) > 0 {
			old, err := fold(wc.OldKeys.KeyNames, wc.OldKeys.KeyValues)
			if err != nil {
				return nil, err
			}
			ch.Old = old
		}
		out = append(out, ch)
	}
	return out, nil
}

func fold(names []string, values []any) (json.RawMessage, error) {
	row := make(map[string]any, len(names))
	for i, name := range names {
		var v any
		if i < len(values) {
			v = values[i]
		}
		row[name] = v
	}
	b, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("wal2json fold: %w", err)
	}
	return b, nil
}
