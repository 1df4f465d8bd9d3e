package oplog

import (
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Lookup returns the value of the first element named key.
func Lookup(doc bson.D, key string) (interface{}, bool) {
	for _, e := range doc {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

// Has reports whether doc contains key.
func Has(doc bson.D, key string) bool {
	_, ok := Lookup(doc, key)
	return ok
}

// Without returns a copy of doc minus the named keys. The input is never
// modified, so emitted payloads never alias a record's buffers.
func Without(doc bson.D, keys ...string) bson.D {
	out := make(bson.D, 0, len(doc))
	for _, e := range doc {
		if containsKey(keys, e.Key) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}
	return false
}

// StringValue renders a document value the way the server echoes names:
// strings verbatim, everything else through its default formatting.
func StringValue(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case primitive.Symbol:
		return string(s)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// IntValue converts numeric BSON values to int64.
func IntValue(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		return int64(n), true
	case primitive.Decimal128:
		i, _, err := n.BigInt()
		if err != nil || !i.IsInt64() {
			return 0, false
		}
		return i.Int64(), true
	default:
		return 0, false
	}
}

// SubDocument converts an embedded document value to bson.D. Only ordered
// documents are accepted: a bson.M loses field order, which index keys and
// sort specs depend on.
func SubDocument(v interface{}) (bson.D, bool) {
	switch d := v.(type) {
	case bson.D:
		return d, true
	case bson.Raw:
		var out bson.D
		if err := bson.Unmarshal(d, &out); err != nil {
			return nil, false
		}
		return out, true
	default:
		return nil, false
	}
}
