// Package storage abstracts artifact byte storage behind a small capability
// (put bytes, resolve path, read, delete) so the pipeline can run against an
// in-memory implementation in tests without touching real disk.
package storage

import "errors"

// ErrNotFound is returned when a named object does not exist in the store.
var ErrNotFound = errors.New("storage: object not found")

// Store is the artifact storage capability.
type Store interface {
	// Put writes data under name and returns the object's resolved path.
	Put(name string, data []byte) (string, error)
	// Get returns the bytes stored under name.
	Get(name string) ([]byte, error)
	// Delete removes the object; deleting a missing object is an error.
	Delete(name string) error
	// Path resolves the location Put would produce for name.
	Path(name string) string
}
