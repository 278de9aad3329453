/*
Package voxelsync is the core of a delta synchronization engine for
collaborative editing of 3-d labeled voxel volumes.  Multiple participants
edit private copies of a segmentation volume; the engine propagates their
changes as sparse deltas so everyone converges on the same labels without
shipping whole volumes on every edit.

This package holds the pieces shared by the rest of the engine: the
(z, y, x) point type, the logging layer, configuration, versioning, the
error taxonomy, and optional kafka activity logging.  The engine proper is
layered on top:

	volume     in-memory label volume with geometry metadata
	diff       baseline comparison producing sparse deltas
	reconcile  application of remote deltas and snapshots
	coalesce   debounce window batching rapid local edits
	codec      compression and text encoding of binary payloads
	message    JSON envelope wire protocol
	transport  pluggable frame transports (websocket, in-process)
	session    per-participant connection lifecycle
	relay      websocket fan-out server for sessions

Two executables live under cmd: voxsync-relay runs the fan-out server and
voxsync is a demo client that joins a session and makes random edits.

Labels are uint64 with 0 meaning "unlabeled".  On the wire, label arrays
travel as the smallest unsigned integer type that holds the largest label
present, little-endian, compressed and base64-encoded inside JSON text
frames.  Conflicting concurrent edits resolve by last write wins at voxel
granularity; deltas arriving from a participant with different volume
geometry are rescaled by nearest neighbor before application.
*/
package voxelsync
