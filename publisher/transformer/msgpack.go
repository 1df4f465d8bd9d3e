package transformer

import (
	"fmt"

	"github.com/maxpert/mongoriver/encoding"
	"github.com/maxpert/mongoriver/oplog"
	"github.com/maxpert/mongoriver/publisher"
	"go.mongodb.org/mongo-driver/bson"
)

func init() {
	publisher.RegisterTransformer("msgpack", func() publisher.Transformer {
		return NewMsgpackTransformer()
	})
}

// MsgpackTransformer encodes events as a msgpack envelope. Documents are
// carried as raw BSON so consumers decode them with any BSON library and
// keep every type intact.
type MsgpackTransformer struct{}

// NewMsgpackTransformer creates a msgpack transformer
func NewMsgpackTransformer() *MsgpackTransformer {
	return &MsgpackTransformer{}
}

// MsgpackEnvelope is the decoded form of a msgpack payload
type MsgpackEnvelope struct {
	Kind       string         `msgpack:"kind"`
	Database   string         `msgpack:"db"`
	Collection string         `msgpack:"coll,omitempty"`
	Position   oplog.Position `msgpack:"position"`
	NodeID     uint64         `msgpack:"node_id"`
	Document   []byte         `msgpack:"document,omitempty"`
	Filter     []byte         `msgpack:"filter,omitempty"`
	Key        []byte         `msgpack:"key,omitempty"`
	Options    []byte         `msgpack:"options,omitempty"`
	From       string         `msgpack:"from,omitempty"`
	To         string         `msgpack:"to,omitempty"`
	Index      string         `msgpack:"index,omitempty"`
}

// Transform encodes msg as a msgpack envelope
func (m *MsgpackTransformer) Transform(msg publisher.Message) ([]byte, error) {
	f, err := fieldsOf(msg.Event)
	if err != nil {
		return nil, err
	}

	env := MsgpackEnvelope{
		Kind:       string(msg.Event.Kind()),
		Database:   f.Database,
		Collection: f.Collection,
		Position:   msg.Position,
		NodeID:     msg.NodeID,
		From:       f.From,
		To:         f.To,
		Index:      f.Index,
	}

	for _, part := range []struct {
		name string
		doc  bson.D
		dst  *[]byte
	}{
		{"document", f.Document, &env.Document},
		{"filter", f.Filter, &env.Filter},
		{"key", f.Key, &env.Key},
		{"options", f.Options, &env.Options},
	} {
		if part.doc == nil {
			continue
		}
		raw, err := bson.Marshal(part.doc)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", part.name, err)
		}
		*part.dst = raw
	}

	data, err := encoding.Marshal(&env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal msgpack: %w", err)
	}
	return data, nil
}

// Tombstone returns nil (null value for Kafka log compaction)
func (m *MsgpackTransformer) Tombstone(key string) []byte {
	return nil
}
