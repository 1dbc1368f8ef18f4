package session

import "errors"

var (
	// ErrBusy is returned by AppendUserMessage when a concurrent driver is
	// already Running (spec §4.6, "Ordering and reentrancy").
	ErrBusy = errors.New("session: busy")
	// ErrInvalidTransition is returned when a status transition would
	// violate I3's DAG.
	ErrInvalidTransition = errors.New("session: invalid status transition")
	// ErrNotQuiescent is returned by Snapshot when status is Running
	// (spec I4: "Snapshots are consistent iff taken when status is
	// quiescent").
	ErrNotQuiescent = errors.New("session: not quiescent")
	// ErrUnsupportedSnapshot is returned by Restore when the snapshot's
	// Version is newer than this build understands.
	ErrUnsupportedSnapshot = errors.New("session: unsupported snapshot version")
)
