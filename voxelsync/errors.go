package voxelsync

import "fmt"

// Per-message failures are isolated: a CodecError, ApplyError or
// ProtocolError causes the offending message to be dropped (and logged)
// while the session continues.  Only a TransportError ends the session.

// CodecError indicates a malformed or corrupt payload that could not be
// decompressed or decoded.  The message carrying it is dropped.
type CodecError struct {
	Op  string // "compress", "decompress", "encode", "decode"
	Err error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("codec %s: %v", e.Op, e.Err)
}

func (e *CodecError) Unwrap() error { return e.Err }

// ApplyError indicates that part of a reconciliation could not be applied,
// e.g. indices out of bounds even after rescaling.  Offending voxels are
// skipped and the remainder applied, so an ApplyError is advisory.
type ApplyError struct {
	Skipped int
	Total   int
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("skipped %d of %d voxel writes (out of bounds after rescale)", e.Skipped, e.Total)
}

// TransportError indicates a connect failure or mid-session transport drop.
// It is the only error class that ends a session.
type TransportError struct {
	Op  string // "open", "send", "receive"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError indicates an unrecognized message tag or a missing required
// field.  The message is ignored and the session continues.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "protocol: " + e.Reason
}
