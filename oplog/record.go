package oplog

import "go.mongodb.org/mongo-driver/bson"

// OpKind is the "op" field of an oplog entry. Unknown kinds are carried
// through unchanged so newer server versions do not break the reader.
type OpKind string

const (
	OpInsert  OpKind = "i"
	OpUpdate  OpKind = "u"
	OpDelete  OpKind = "d"
	OpCommand OpKind = "c"
	OpNoop    OpKind = "n"
)

// String returns a readable name, used as a metrics label.
func (k OpKind) String() string {
	switch k {
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	case OpCommand:
		return "command"
	case OpNoop:
		return "noop"
	default:
		return "unknown"
	}
}

// Record is one raw replication log entry.
type Record struct {
	Position  Position
	Namespace string
	Op        OpKind

	// Object is the inserted document, the update replacement, the delete
	// filter, or the command document, depending on Op.
	Object bson.D

	// Object2 is the update filter; only set for OpUpdate.
	Object2 bson.D
}

// ParseNamespace parses the record's namespace.
func (r Record) ParseNamespace() (Namespace, error) {
	return ParseNamespace(r.Namespace)
}
