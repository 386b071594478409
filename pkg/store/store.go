// Package store is the persistence boundary of the pipeline. Services talk
// to the interfaces defined here, never to gorm directly, so storage can be
// swapped or faked in tests.
package store

import (
	"errors"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a row does not exist or belongs to another
// user. Callers cannot tell the two apart on purpose.
var ErrNotFound = errors.New("store: record not found")

// Store bundles the per-entity stores behind one injection point.
type Store struct {
	Products     ProductStore
	Pharmacies   PharmacyStore
	Observations ObservationStore
	Profiles     ProfileStore
	Insights     InsightStore
}

// New wires every store against the given database handle.
func New(db *gorm.DB) *Store {
	return &Store{
		Products:     NewProductStore(db),
		Pharmacies:   NewPharmacyStore(db),
		Observations: NewObservationStore(db),
		Profiles:     NewProfileStore(db),
		Insights:     NewInsightStore(db),
	}
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
