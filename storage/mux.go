package storage

import "fmt"

// Mux routes each region to its own backend, so ephemeral and durable
// regions can live on different media.
type Mux map[Region]Repository

var _ Repository = Mux(nil)

func (m Mux) backend(region Region) (Repository, error) {
	r, ok := m[region]
	if !ok || r == nil {
		return nil, fmt.Errorf("%s: no backend configured: %w", region, ErrRegionNotFound)
	}
	return r, nil
}

func (m Mux) Put(region Region, recordType, recordID string, envelope *Envelope) error {
	r, err := m.backend(region)
	if err != nil {
		return err
	}
	return r.Put(region, recordType, recordID, envelope)
}

func (m Mux) Get(region Region, recordType, recordID string) (*Envelope, error) {
	r, err := m.backend(region)
	if err != nil {
		return nil, err
	}
	return r.Get(region, recordType, recordID)
}

func (m Mux) List(region Region, recordType string) ([]string, error) {
	r, err := m.backend(region)
	if err != nil {
		return nil, err
	}
	return r.List(region, recordType)
}

func (m Mux) Delete(region Region, recordType, recordID string) error {
	r, err := m.backend(region)
	if err != nil {
		return err
	}
	return r.Delete(region, recordType, recordID)
}
