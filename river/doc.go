// Package river translates raw oplog records into normalized change events
// and drives them from a tail session into an event sink.
//
// A Stream resolves a start point, opens a tailer.Tailer and hands every
// record to a Translator. For every record other than a no-op the translator
// emits at most one content event followed by exactly one OptimeUpdate
// carrying the record's position, so a sink that has processed an
// OptimeUpdate has processed everything before it.
package river
