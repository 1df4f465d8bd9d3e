package oplog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestWithout_DoesNotMutateInput(t *testing.T) {
	doc := bson.D{{Key: "create", Value: "bar"}, {Key: "capped", Value: true}, {Key: "size", Value: int32(10)}}

	out := Without(doc, "create")

	assert.Equal(t, bson.D{{Key: "capped", Value: true}, {Key: "size", Value: int32(10)}}, out)
	require.Len(t, doc, 3)
	assert.Equal(t, "create", doc[0].Key)
}

func TestWithout_Nil(t *testing.T) {
	out := Without(nil, "x")
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestLookupAndHas(t *testing.T) {
	doc := bson.D{{Key: "a", Value: 1}, {Key: "b", Value: nil}}

	v, ok := Lookup(doc, "a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.True(t, Has(doc, "b"))
	assert.False(t, Has(doc, "c"))
}

func TestIntValue(t *testing.T) {
	for _, v := range []interface{}{int32(2), int64(2), 2, float64(2)} {
		n, ok := IntValue(v)
		assert.True(t, ok)
		assert.Equal(t, int64(2), n)
	}
	_, ok := IntValue("2")
	assert.False(t, ok)
}

func TestSubDocument(t *testing.T) {
	d, ok := SubDocument(bson.D{{Key: "a", Value: int32(1)}})
	require.True(t, ok)
	assert.Len(t, d, 1)

	raw, err := bson.Marshal(bson.D{{Key: "x", Value: "y"}})
	require.NoError(t, err)
	d, ok = SubDocument(bson.Raw(raw))
	require.True(t, ok)
	assert.Equal(t, bson.D{{Key: "x", Value: "y"}}, d)

	_, ok = SubDocument("nope")
	assert.False(t, ok)

	// unordered maps cannot carry a compound index key
	_, ok = SubDocument(bson.M{"a": 1, "b": -1})
	assert.False(t, ok)
}

func TestStringValue(t *testing.T) {
	assert.Equal(t, "abc", StringValue("abc"))
	assert.Equal(t, "5", StringValue(int32(5)))
	assert.Equal(t, "", StringValue(nil))
}
