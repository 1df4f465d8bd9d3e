// Package oplog defines the data model shared by every mongoriver component:
// log positions, raw replication log records, namespaces, and the Source and
// Cursor abstractions that a replicated log must provide.
//
// # Positions
//
// A Position is the (seconds, ordinal) pair MongoDB calls a BSON timestamp.
// Positions are totally ordered: seconds first, then ordinal. A Position is
// used both as the exclusive lower bound for a tail and as the optime that is
// handed to sinks after each processed record.
//
// # Records
//
// A Record mirrors one oplog entry:
//
//	{ts: Timestamp, ns: "db.coll", op: "i"|"u"|"d"|"c"|"n", o: {...}, o2: {...}}
//
// Documents are kept as bson.D so field order survives untouched (index key
// specifications depend on it). Helpers in document.go never mutate their
// input; stripping administrative fields always produces a fresh document.
//
// # Sources
//
// A Source answers two questions: "what is the most recent record at or
// before P" and "open a cursor over everything strictly after P that blocks
// for new appends". Implementations live in the source package.
package oplog
