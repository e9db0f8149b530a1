// Package storage provides the key/value persistence medium used by the
// session store. Records live in named regions with different lifetimes.
package storage

import "errors"

// Region names a partition of the persistence medium.
type Region string

const (
	// RegionLocal holds durable general settings such as the user config.
	RegionLocal Region = "local"
	// RegionSync holds durable lightweight data such as UI toggles.
	RegionSync Region = "sync"
	// RegionSession holds data that must not outlive the process.
	RegionSession Region = "session"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrRegionNotFound is returned when nothing was ever written to a region.
	ErrRegionNotFound = errors.New("region not found")
)

// Repository defines the interface for region-scoped record storage.
type Repository interface {
	Put(region Region, recordType, recordID string, envelope *Envelope) error
	Get(region Region, recordType, recordID string) (*Envelope, error)
	List(region Region, recordType string) ([]string, error)
	Delete(region Region, recordType, recordID string) error
}

// IsNotFound reports whether err means the record or its region is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrRegionNotFound)
}
