package storage

import "errors"

// ErrNotFound is returned by ReadArtifact when no artifact exists under
// the given name.
var ErrNotFound = errors.New("storage: not found")

// Store abstracts the durable backend behind the dialogue log and report
// artifacts. Segments are append-only ordered collections of lines keyed
// by name (one per calendar day in practice); artifacts are whole-value
// documents overwritten on every write.
//
// Implementations must be safe for concurrent use and give a reader a
// consistent snapshot while a writer appends: Read must never surface a
// partially written line.
type Store interface {
	Append(segment string, line []byte) error
	Read(segment string) ([][]byte, error)
	WriteArtifact(name string, data []byte) error
	ReadArtifact(name string) ([]byte, error)
}
