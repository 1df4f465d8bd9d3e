// Package transformer provides implementations of the publisher.Transformer
// interface for encoding change events into sink payload formats.
package transformer

import (
	"encoding/json"
	"fmt"

	"github.com/maxpert/mongoriver/river"
	"go.mongodb.org/mongo-driver/bson"
)

// eventFields flattens the river event variants into one shape that every
// format encodes from
type eventFields struct {
	Database   string
	Collection string
	Document   bson.D
	Filter     bson.D
	Key        bson.D
	Options    bson.D
	From       string
	To         string
	Index      string
}

func fieldsOf(ev river.Event) (eventFields, error) {
	switch e := ev.(type) {
	case river.Insert:
		return eventFields{Database: e.Database, Collection: e.Collection, Document: e.Document}, nil
	case river.Update:
		return eventFields{Database: e.Database, Collection: e.Collection, Filter: e.Filter, Document: e.Document}, nil
	case river.Delete:
		return eventFields{Database: e.Database, Collection: e.Collection, Filter: e.Filter}, nil
	case river.CreateCollection:
		return eventFields{Database: e.Database, Collection: e.Collection, Options: e.Options}, nil
	case river.RenameCollection:
		return eventFields{Database: e.Database, Collection: e.From, From: e.From, To: e.To}, nil
	case river.DeleteCollection:
		return eventFields{Database: e.Database, Collection: e.Collection}, nil
	case river.CreateIndex:
		return eventFields{Database: e.Database, Collection: e.Collection, Key: e.Key, Options: e.Options}, nil
	case river.DeleteIndex:
		return eventFields{Database: e.Database, Collection: e.Collection, Index: e.Index}, nil
	case river.DeleteDatabase:
		return eventFields{Database: e.Database}, nil
	case nil:
		return eventFields{}, fmt.Errorf("nil event")
	default:
		return eventFields{}, fmt.Errorf("unsupported event kind: %s", ev.Kind())
	}
}

// extJSON renders doc as relaxed MongoDB Extended JSON. nil stays nil so
// omitempty drops the field.
func extJSON(doc bson.D) (json.RawMessage, error) {
	if doc == nil {
		return nil, nil
	}
	data, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// isModifier reports whether an update document is an operator/diff
// document rather than a full replacement
func isModifier(doc bson.D) bool {
	return len(doc) > 0 && len(doc[0].Key) > 0 && doc[0].Key[0] == '$'
}
