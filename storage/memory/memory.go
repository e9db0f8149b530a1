// Package memory provides a thread-safe in-memory implementation of storage.Repository.
package memory

import (
	"fmt"
	"strings"
	"sync"

	"github.com/jmcleod/suilink/storage"
)

// Repository is a thread-safe in-memory implementation of storage.Repository.
// Its contents disappear with the process, which makes it the backend for
// the session region.
type Repository struct {
	mu   sync.RWMutex
	data map[storage.Region]map[string]*storage.Envelope
}

var _ storage.Repository = (*Repository)(nil)

// NewRepository creates a new empty in-memory Repository.
func NewRepository() *Repository {
	return &Repository{data: make(map[storage.Region]map[string]*storage.Envelope)}
}

func makeKey(recordType, recordID string) string {
	return recordType + ":" + recordID
}

func (r *Repository) Put(region storage.Region, recordType, recordID string, envelope *storage.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[region]; !ok {
		r.data[region] = make(map[string]*storage.Envelope)
	}
	r.data[region][makeKey(recordType, recordID)] = storage.CloneEnvelope(envelope)
	return nil
}

func (r *Repository) Get(region storage.Region, recordType, recordID string) (*storage.Envelope, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	records, ok := r.data[region]
	if !ok {
		return nil, fmt.Errorf("%s: %w", region, storage.ErrRegionNotFound)
	}
	env, ok := records[makeKey(recordType, recordID)]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
	}
	return storage.CloneEnvelope(env), nil
}

func (r *Repository) List(region storage.Region, recordType string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var ids []string
	prefix := recordType + ":"
	for k := range r.data[region] {
		if id, ok := strings.CutPrefix(k, prefix); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *Repository) Delete(region storage.Region, recordType, recordID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	records, ok := r.data[region]
	if !ok {
		return fmt.Errorf("%s: %w", region, storage.ErrRegionNotFound)
	}
	k := makeKey(recordType, recordID)
	if _, ok := records[k]; !ok {
		return fmt.Errorf("%s/%s: %w", recordType, recordID, storage.ErrNotFound)
	}
	delete(records, k)
	return nil
}
