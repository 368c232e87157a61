// Package changefeed turns Postgres row changes on the disasters and
// resources tables into global pushes.
package changefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Row change kinds.
const (
	Insert = "INSERT"
	Update = "UPDATE"
	Delete = "DELETE"
)

// Watched tables.
const (
	TableDisasters = "disasters"
	TableResources = "resources"
)

// Change is one row-level mutation. Truncated changes carry only the row
// keys because the full row did not fit in a notification.
type Change struct {
	Event     string
	Schema    string
	Table     string
	New       json.RawMessage
	Old       json.RawMessage
	Truncated bool
}

// Row is the state a client should see: the new row, or the prior row for
// deletions.
func (c Change) Row() json.RawMessage {
	if c.Event == Delete || len(c.New) == 0 {
		return c.Old
	}
	return c.New
}

// Source streams changes until the underlying connection drops or ctx ends.
// fn is called from the goroutine running Stream.
type Source interface {
	Stream(ctx context.Context, fn func(Change)) error
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, fn func(Change)) error

func (f SourceFunc) Stream(ctx context.Context, fn func(Change)) error { return f(ctx, fn) }

// ParseNotification decodes the payload sent by the notify_row_change
// trigger:
//
//	{"event":"UPDATE","table":"disasters","new":{...},"old":{...}}
//
// Rows too large for NOTIFY arrive as {"truncated":true,"new":{"id":...}}.
func ParseNotification(payload string) (Change, error) {
	if !gjson.Valid(payload) {
		return Change{}, fmt.Errorf("notification payload is not JSON")
	}
	doc := gjson.Parse(payload)

	ch := Change{
		Event:     strings.ToUpper(doc.Get("event").String()),
		Schema:    doc.Get("schema").String(),
		Table:     doc.Get("table").String(),
		New:       rawRow(doc.Get("new")),
		Old:       rawRow(doc.Get("old")),
		Truncated: doc.Get("truncated").Bool(),
	}
	switch ch.Event {
	case Insert, Update, Delete:
	default:
		return Change{}, fmt.Errorf("notification has unknown event %q", ch.Event)
	}
	if ch.Table == "" {
		return Change{}, fmt.Errorf("notification without table")
	}
	return ch, nil
}

func rawRow(r gjson.Result) json.RawMessage {
	if !r.Exists() || r.Type == gjson.Null {
		return nil
	}
	return json.RawMessage(r.Raw)
}
