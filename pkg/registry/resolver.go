// Package registry keeps the per-user competitor registry in sync with what
// upstream results mention. Competitors are never registered by hand: the
// first time a name shows up for a user, a row is created; every later
// observation resolves to that same row.
package registry

import (
	"context"
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/riddle022/farmavision/pkg/logger"
	"github.com/riddle022/farmavision/pkg/models"
	"github.com/riddle022/farmavision/pkg/store"
	"github.com/riddle022/farmavision/pkg/upstream"
)

// ErrUnnamed is returned for records whose establishment name is empty after
// folding; those cannot be matched and produce no observation.
var ErrUnnamed = errors.New("registry: establishment has no usable name")

// NameKey folds an establishment name into the matching key: accents
// stripped, lower-cased, inner whitespace collapsed. "Farmácia São João" and
// "FARMACIA  SAO JOAO" resolve to the same competitor. Chain stores sharing
// one trade name conflate into one competitor per user; that is accepted
// behavior, not a bug.
func NameKey(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(removeAccents(name))), " ")
}

// removeAccents removes diacritical marks from Unicode strings
// Example: "Farmácia" → "Farmacia", "São João" → "Sao Joao"
func removeAccents(s string) string {
	// NFD (Canonical Decomposition) breaks "é" into "e" + combining acute
	t := norm.NFD.String(s)

	// Filter out combining marks (accents)
	result := strings.Map(func(r rune) rune {
		if unicode.Is(unicode.Mn, r) { // Mn = Mark, Nonspacing
			return -1
		}
		return r
	}, t)

	// NFC (Canonical Composition) recomposes characters
	return norm.NFC.String(result)
}

// Resolver maps upstream establishments onto registry rows.
type Resolver struct {
	pharmacies store.PharmacyStore
	log        logger.Logger
}

// NewResolver builds a resolver on top of the pharmacy store.
func NewResolver(pharmacies store.PharmacyStore, log logger.Logger) *Resolver {
	return &Resolver{pharmacies: pharmacies, log: log}
}

// Resolve returns the user's registry row for the establishment, creating it
// on first sight. Existing rows are backfilled with tax id, address and
// coordinates when the registry is missing them and the record has them.
func (r *Resolver) Resolve(ctx context.Context, userID uint, est upstream.Establishment) (*models.Pharmacy, error) {
	key := NameKey(est.Name)
	if key == "" {
		return nil, ErrUnnamed
	}

	pharmacy, err := r.pharmacies.FindOrCreate(ctx, newRow(userID, key, est))
	if err != nil {
		return nil, err
	}

	if backfill(pharmacy, est) {
		if err := r.pharmacies.Save(ctx, pharmacy); err != nil {
			// The match itself is still good; enrichment can wait for the
			// next pass.
			r.log.Warn("failed to backfill pharmacy details", "pharmacy_id", pharmacy.ID, "error", err)
		}
	}
	return pharmacy, nil
}

func newRow(userID uint, key string, est upstream.Establishment) *models.Pharmacy {
	row := &models.Pharmacy{
		UserID:  userID,
		Name:    strings.TrimSpace(est.Name),
		NameKey: key,
	}
	if est.TaxID != "" {
		taxID := est.TaxID
		row.TaxID = &taxID
	}
	if est.Address != "" {
		address := est.Address
		row.Address = &address
	}
	if est.Coordinates != nil {
		lat, lon := est.Coordinates.Lat, est.Coordinates.Lon
		row.Latitude = &lat
		row.Longitude = &lon
	}
	return row
}

// backfill copies details the registry row lacks from the record. Reports
// whether anything changed.
func backfill(pharmacy *models.Pharmacy, est upstream.Establishment) bool {
	changed := false
	if pharmacy.TaxID == nil && est.TaxID != "" {
		taxID := est.TaxID
		pharmacy.TaxID = &taxID
		changed = true
	}
	if pharmacy.Address == nil && est.Address != "" {
		address := est.Address
		pharmacy.Address = &address
		changed = true
	}
	if pharmacy.Latitude == nil && est.Coordinates != nil {
		lat, lon := est.Coordinates.Lat, est.Coordinates.Lon
		pharmacy.Latitude = &lat
		pharmacy.Longitude = &lon
		changed = true
	}
	return changed
}
