package transformer

import (
	"encoding/json"
	"fmt"

	"github.com/maxpert/mongoriver/oplog"
	"github.com/maxpert/mongoriver/publisher"
)

func init() {
	publisher.RegisterTransformer("json", func() publisher.Transformer {
		return NewJSONTransformer()
	})
}

// JSONTransformer encodes events as a flat JSON envelope. Documents are
// embedded as relaxed Extended JSON so BSON types survive the trip.
//
//	{"kind":"insert","db":"app","coll":"users","position":{"t":1700000000,"i":1},
//	 "node_id":42,"document":{"_id":{"$oid":"..."},"name":"x"}}
type JSONTransformer struct{}

// NewJSONTransformer creates a JSON transformer
func NewJSONTransformer() *JSONTransformer {
	return &JSONTransformer{}
}

type jsonEnvelope struct {
	Kind     string          `json:"kind"`
	Database string          `json:"db"`
	Coll     string          `json:"coll,omitempty"`
	Position oplog.Position  `json:"position"`
	NodeID   uint64          `json:"node_id"`
	Document json.RawMessage `json:"document,omitempty"`
	Filter   json.RawMessage `json:"filter,omitempty"`
	Key      json.RawMessage `json:"key,omitempty"`
	Options  json.RawMessage `json:"options,omitempty"`
	From     string          `json:"from,omitempty"`
	To       string          `json:"to,omitempty"`
	Index    string          `json:"index,omitempty"`
}

// Transform encodes msg as a JSON envelope
func (j *JSONTransformer) Transform(msg publisher.Message) ([]byte, error) {
	f, err := fieldsOf(msg.Event)
	if err != nil {
		return nil, err
	}

	env := jsonEnvelope{
		Kind:     string(msg.Event.Kind()),
		Database: f.Database,
		Coll:     f.Collection,
		Position: msg.Position,
		NodeID:   msg.NodeID,
		From:     f.From,
		To:       f.To,
		Index:    f.Index,
	}

	if env.Document, err = extJSON(f.Document); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	if env.Filter, err = extJSON(f.Filter); err != nil {
		return nil, fmt.Errorf("failed to encode filter: %w", err)
	}
	if env.Key, err = extJSON(f.Key); err != nil {
		return nil, fmt.Errorf("failed to encode index key: %w", err)
	}
	if env.Options, err = extJSON(f.Options); err != nil {
		return nil, fmt.Errorf("failed to encode options: %w", err)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return data, nil
}

// Tombstone returns nil (null value for Kafka log compaction)
func (j *JSONTransformer) Tombstone(key string) []byte {
	return nil
}
