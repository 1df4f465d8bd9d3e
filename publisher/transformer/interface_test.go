package transformer

import (
	"testing"

	"github.com/maxpert/mongoriver/publisher"
	"github.com/maxpert/mongoriver/river"
	"github.com/stretchr/testify/assert"
)

var (
	_ publisher.Transformer = (*DebeziumTransformer)(nil)
	_ publisher.Transformer = (*JSONTransformer)(nil)
	_ publisher.Transformer = (*MsgpackTransformer)(nil)
)

func TestTransformersRejectOptimeUpdates(t *testing.T) {
	msg := publisher.Message{Event: river.OptimeUpdate{}}
	for name, tr := range map[string]publisher.Transformer{
		"json":     NewJSONTransformer(),
		"debezium": NewDebeziumTransformer(),
		"msgpack":  NewMsgpackTransformer(),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := tr.Transform(msg)
			assert.Error(t, err)
			assert.Nil(t, tr.Tombstone("k"))
		})
	}
}

func TestIsModifier(t *testing.T) {
	assert.True(t, isModifier(bsonDoc("$set", 1)))
	assert.True(t, isModifier(bsonDoc("$v", 2)))
	assert.False(t, isModifier(bsonDoc("name", "x")))
	assert.False(t, isModifier(nil))
}
