// Package checkpoint implements the checkpointing transaction abstraction
// (§4.3): a thin wrapper around a black-box bytecode execution session
// that raises typed storage-access callbacks and supports
// checkpoint/restore so a caller can resume execution just before the
// storage operation that followed a given checkpoint.
//
// The embedded bytecode interpreter itself is out of scope (§1); Program
// stands in for "compiled bytecode" as a flat sequence of storage
// operations over a fixed key list, which is all the storage-handler
// contract below actually depends on.
package checkpoint

import "github.com/jacklightChen/spectrum-sub001/kv"

// OpKind distinguishes a storage read from a storage write.
type OpKind uint8

const (
	OpGet OpKind = iota
	OpPut
)

// Step is one storage operation in a Program, referencing a key by index
// into the Program's Keys slice (mirroring how EVM bytecode references
// storage slots resolved from call-data at run time).
type Step struct {
	Kind     OpKind
	KeyIndex int
}

// Program is the flat storage-access trace a transaction's bytecode would
// produce; call-data decoding and actual opcode dispatch are the embedded
// interpreter's job and are out of scope here (§1).
type Program struct {
	Keys  []kv.Key
	Steps []Step
}

// StorageStatus is returned by a SetStorageFunc to indicate whether the
// write was accepted.
type StorageStatus uint8

const (
	StatusOK StorageStatus = iota
	StatusAborted
)

// GetStorageFunc is installed by the caller to service storage reads
// raised during Execute.
type GetStorageFunc func(addr kv.Address, slot kv.Slot) kv.Value

// SetStorageFunc is installed by the caller to service storage writes
// raised during Execute.
type SetStorageFunc func(addr kv.Address, slot kv.Slot, value kv.Value) StorageStatus
