// Package tailer owns the read side of the engine: resolving a resume point
// in the oplog and driving a single tailable read over it.
//
// A Tailer is a small state machine:
//
//	Idle --Tail--> Positioning --> Streaming --Stop/error--> Stopped
//	  ^                                                         |
//	  +------------------------- Close -------------------------+
//
// Only Idle accepts Tail; any other state rejects it with ErrAlreadyTailing,
// so at most one cursor is ever bound to a session. Stop raises a flag and
// interrupts a blocked read; Close waits for the loop to exit, closes the
// cursor and returns the session to Idle.
package tailer
