package river

import (
	"github.com/maxpert/mongoriver/oplog"
	"go.mongodb.org/mongo-driver/bson"
)

// EventKind names an Event variant.
type EventKind string

const (
	KindOptimeUpdate     EventKind = "optime_update"
	KindInsert           EventKind = "insert"
	KindUpdate           EventKind = "update"
	KindDelete           EventKind = "delete"
	KindCreateCollection EventKind = "create_collection"
	KindRenameCollection EventKind = "rename_collection"
	KindDeleteCollection EventKind = "delete_collection"
	KindCreateIndex      EventKind = "create_index"
	KindDeleteIndex      EventKind = "delete_index"
	KindDeleteDatabase   EventKind = "delete_database"
)

// Event is a normalized change event. The set of implementations is closed;
// sinks dispatch with a type switch.
type Event interface {
	Kind() EventKind
	event()
}

// OptimeUpdate marks every event before it as processed up to Position.
type OptimeUpdate struct {
	Position oplog.Position
}

// Insert carries an inserted document.
type Insert struct {
	Database   string
	Collection string
	Document   bson.D
}

// Update carries the filter selecting the target and its replacement or
// modifier document.
type Update struct {
	Database   string
	Collection string
	Filter     bson.D
	Document   bson.D
}

// Delete carries the filter of a removed document.
type Delete struct {
	Database   string
	Collection string
	Filter     bson.D
}

type CreateCollection struct {
	Database   string
	Collection string
	Options    bson.D
}

// RenameCollection renames From to To inside Database.
type RenameCollection struct {
	Database string
	From     string
	To       string
}

type DeleteCollection struct {
	Database   string
	Collection string
}

// CreateIndex carries the key specification and the remaining index options
// (name, unique, ...).
type CreateIndex struct {
	Database   string
	Collection string
	Key        bson.D
	Options    bson.D
}

type DeleteIndex struct {
	Database   string
	Collection string
	Index      string
}

type DeleteDatabase struct {
	Database string
}

func (OptimeUpdate) Kind() EventKind     { return KindOptimeUpdate }
func (Insert) Kind() EventKind           { return KindInsert }
func (Update) Kind() EventKind           { return KindUpdate }
func (Delete) Kind() EventKind           { return KindDelete }
func (CreateCollection) Kind() EventKind { return KindCreateCollection }
func (RenameCollection) Kind() EventKind { return KindRenameCollection }
func (DeleteCollection) Kind() EventKind { return KindDeleteCollection }
func (CreateIndex) Kind() EventKind      { return KindCreateIndex }
func (DeleteIndex) Kind() EventKind      { return KindDeleteIndex }
func (DeleteDatabase) Kind() EventKind   { return KindDeleteDatabase }

func (OptimeUpdate) event()     {}
func (Insert) event()           {}
func (Update) event()           {}
func (Delete) event()           {}
func (CreateCollection) event() {}
func (RenameCollection) event() {}
func (DeleteCollection) event() {}
func (CreateIndex) event()      {}
func (DeleteIndex) event()      {}
func (DeleteDatabase) event()   {}

// Target returns the database and collection an event applies to. The
// collection is empty for DeleteDatabase; ok is false for OptimeUpdate.
func Target(ev Event) (database, collection string, ok bool) {
	switch e := ev.(type) {
	case Insert:
		return e.Database, e.Collection, true
	case Update:
		return e.Database, e.Collection, true
	case Delete:
		return e.Database, e.Collection, true
	case CreateCollection:
		return e.Database, e.Collection, true
	case RenameCollection:
		return e.Database, e.From, true
	case DeleteCollection:
		return e.Database, e.Collection, true
	case CreateIndex:
		return e.Database, e.Collection, true
	case DeleteIndex:
		return e.Database, e.Collection, true
	case DeleteDatabase:
		return e.Database, "", true
	default:
		return "", "", false
	}
}

// Sink receives events synchronously, one at a time, in log order. An error
// aborts the stream that emitted the event.
type Sink interface {
	Emit(ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ev Event) error

func (f SinkFunc) Emit(ev Event) error { return f(ev) }
