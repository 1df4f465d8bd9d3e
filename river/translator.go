package river

import (
	"fmt"

	"github.com/maxpert/mongoriver/oplog"
	"github.com/maxpert/mongoriver/telemetry"
	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
)

// Command document markers, tested in this order.
const (
	cmdDropIndexes      = "dropIndexes"
	cmdCreate           = "create"
	cmdDrop             = "drop"
	cmdRenameCollection = "renameCollection"
	cmdDropDatabase     = "dropDatabase"
)

// supportedIndexVersion is the only index catalog format translated.
const supportedIndexVersion = 1

// Translator converts raw records into events. It holds no state and may be
// shared between streams.
type Translator struct{}

// Handle classifies rec and calls emit for the resulting events. No-op
// records emit nothing. Every other record emits at most one content event
// followed by OptimeUpdate(rec.Position). An error from emit is returned
// immediately; so is a malformed namespace or document, before anything for
// that record is emitted.
func (t Translator) Handle(rec oplog.Record, emit func(Event) error) error {
	telemetry.RecordsTotal.With(rec.Op.String()).Inc()

	if rec.Op == oplog.OpNoop {
		return nil
	}

	ev, err := t.translate(rec)
	if err != nil {
		return err
	}

	if ev != nil {
		if err := emit(ev); err != nil {
			return err
		}
	}

	return emit(OptimeUpdate{Position: rec.Position})
}

// translate returns the content event for rec, or nil when rec only advances
// the optime.
func (t Translator) translate(rec oplog.Record) (Event, error) {
	switch rec.Op {
	case oplog.OpInsert:
		ns, err := rec.ParseNamespace()
		if err != nil {
			return nil, err
		}
		if ns.IsIndexCatalog() {
			return t.createIndex(rec)
		}
		return Insert{Database: ns.Database, Collection: ns.Collection, Document: rec.Object}, nil

	case oplog.OpUpdate:
		ns, err := rec.ParseNamespace()
		if err != nil {
			return nil, err
		}
		return Update{Database: ns.Database, Collection: ns.Collection, Filter: rec.Object2, Document: rec.Object}, nil

	case oplog.OpDelete:
		ns, err := rec.ParseNamespace()
		if err != nil {
			return nil, err
		}
		return Delete{Database: ns.Database, Collection: ns.Collection, Filter: rec.Object}, nil

	case oplog.OpCommand:
		ns, err := rec.ParseNamespace()
		if err != nil {
			return nil, err
		}
		if !ns.IsCommand() {
			skip(rec, "command_outside_cmd")
			return nil, nil
		}
		return t.command(rec, ns.Database)

	default:
		skip(rec, "unknown_op")
		return nil, nil
	}
}

// createIndex translates an insert into the legacy index catalog. The target
// collection comes from the document's own ns field.
func (t Translator) createIndex(rec oplog.Record) (Event, error) {
	doc := rec.Object

	nsVal, ok := oplog.Lookup(doc, "ns")
	if !ok {
		return nil, malformed(rec, "index document without ns")
	}
	ns, err := oplog.ParseNamespace(oplog.StringValue(nsVal))
	if err != nil {
		return nil, err
	}

	if v, ok := oplog.Lookup(doc, "v"); ok {
		version, isInt := oplog.IntValue(v)
		if !isInt || version != supportedIndexVersion {
			skip(rec, "index_version")
			return nil, nil
		}
	}

	keyVal, ok := oplog.Lookup(doc, "key")
	if !ok {
		return nil, malformed(rec, "index document without key")
	}
	key, ok := oplog.SubDocument(keyVal)
	if !ok {
		return nil, malformed(rec, "index key is not a document")
	}

	return CreateIndex{
		Database:   ns.Database,
		Collection: ns.Collection,
		Key:        key,
		Options:    oplog.Without(doc, "ns", "key", "_id"),
	}, nil
}

// command translates a document written to db.$cmd. The first marker
// present wins.
func (t Translator) command(rec oplog.Record, database string) (Event, error) {
	doc := rec.Object

	if v, ok := oplog.Lookup(doc, cmdDropIndexes); ok {
		index, ok := oplog.Lookup(doc, "index")
		if !ok {
			return nil, malformed(rec, "dropIndexes without index")
		}
		return DeleteIndex{
			Database:   database,
			Collection: oplog.StringValue(v),
			Index:      oplog.StringValue(index),
		}, nil
	}

	if v, ok := oplog.Lookup(doc, cmdCreate); ok {
		return CreateCollection{
			Database:   database,
			Collection: oplog.StringValue(v),
			Options:    oplog.Without(doc, cmdCreate),
		}, nil
	}

	if v, ok := oplog.Lookup(doc, cmdDrop); ok {
		return DeleteCollection{Database: database, Collection: oplog.StringValue(v)}, nil
	}

	if v, ok := oplog.Lookup(doc, cmdRenameCollection); ok {
		return t.rename(rec, doc, v)
	}

	if oplog.Has(doc, cmdDropDatabase) {
		return DeleteDatabase{Database: database}, nil
	}

	skip(rec, "unrecognized_command")
	return nil, nil
}

// rename keeps the source database; a target in another database only
// contributes its collection name.
func (t Translator) rename(rec oplog.Record, doc bson.D, from interface{}) (Event, error) {
	to, ok := oplog.Lookup(doc, "to")
	if !ok {
		return nil, malformed(rec, "renameCollection without to")
	}

	oldNs, err := oplog.ParseNamespace(oplog.StringValue(from))
	if err != nil {
		return nil, err
	}
	newNs, err := oplog.ParseNamespace(oplog.StringValue(to))
	if err != nil {
		return nil, err
	}

	if newNs.Database != oldNs.Database {
		log.Warn().
			Str("from", oldNs.String()).
			Str("to", newNs.String()).
			Msg("Cross-database rename reported as same-database rename")
	}

	return RenameCollection{Database: oldNs.Database, From: oldNs.Collection, To: newNs.Collection}, nil
}

func skip(rec oplog.Record, reason string) {
	telemetry.SkippedRecordsTotal.With(reason).Inc()
	log.Debug().
		Stringer("position", rec.Position).
		Str("ns", rec.Namespace).
		Str("op", string(rec.Op)).
		Str("reason", reason).
		Msg("Record produced no content event")
}

func malformed(rec oplog.Record, msg string) error {
	return fmt.Errorf("%w at %s (%s): %s", oplog.ErrMalformedRecord, rec.Position, rec.Namespace, msg)
}
