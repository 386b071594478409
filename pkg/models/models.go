// Package models holds the persisted entities of the price intelligence
// pipeline. All tables are tenant-scoped by UserID; the API never serves one
// user's rows to another.
package models

import (
	"time"

	"github.com/google/uuid"
)

// LocationMode says how a search profile resolved its center coordinate.
type LocationMode string

const (
	LocationDevice LocationMode = "device" // coordinates sent by the caller
	LocationCity   LocationMode = "city"   // picked from the reference city catalog
	LocationPostal LocationMode = "cep"    // resolved through the postal code service
)

// Product is an item of the user's own catalog that monitoring passes track
// against the market. OwnPrice is nil until the user prices the product;
// status classification treats that as "no price" rather than zero.
type Product struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	UserID           uint      `gorm:"index:idx_products_user;not null" json:"user_id"`
	Name             string    `gorm:"size:255;not null" json:"name"`
	ActiveIngredient string    `gorm:"size:255" json:"active_ingredient,omitempty"`
	Category         string    `gorm:"size:100" json:"category,omitempty"`
	OwnPrice         *float64  `json:"own_price"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Pharmacy is one competitor (or the user's own store) in the user's
// registry. Rows are created lazily the first time a competitor name shows
// up in upstream results; NameKey is the folded form used for matching and
// is unique per user.
type Pharmacy struct {
	ID        uint       `gorm:"primaryKey" json:"id"`
	UserID    uint       `gorm:"uniqueIndex:idx_pharmacies_user_name;not null" json:"user_id"`
	Name      string     `gorm:"size:255;not null" json:"name"`
	NameKey   string     `gorm:"size:255;uniqueIndex:idx_pharmacies_user_name;not null" json:"-"`
	TaxID     *string    `gorm:"size:20" json:"tax_id,omitempty"`
	Address   *string    `gorm:"size:500" json:"address,omitempty"`
	Latitude  *float64   `json:"latitude,omitempty"`
	Longitude *float64   `json:"longitude,omitempty"`
	IsOwn     bool       `gorm:"default:false" json:"is_own"`
	Score     *float64   `json:"score,omitempty"`
	Rank      *int       `json:"rank,omitempty"`
	ScoredAt  *time.Time `json:"scored_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// PriceObservation is one competitor price captured by a monitoring pass.
// The table is append-only: corrections arrive as newer observations, never
// as updates.
type PriceObservation struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"index:idx_observations_user_collected;not null" json:"user_id"`
	PharmacyID  uint      `gorm:"index;not null" json:"pharmacy_id"`
	ProductID   uint      `gorm:"index;not null" json:"product_id"`
	Price       float64   `json:"price"`
	Available   bool      `json:"available"`
	Source      string    `gorm:"size:50" json:"source"`
	RunID       uuid.UUID `gorm:"size:36;index" json:"run_id"`
	CollectedAt time.Time `gorm:"index:idx_observations_user_collected;not null" json:"collected_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// SearchProfile stores a reusable monitoring setup: where to search, how far
// and which products. At most one profile per user is active at a time; the
// store enforces that inside a transaction.
type SearchProfile struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	UserID       uint         `gorm:"index:idx_profiles_user;not null" json:"user_id"`
	Name         string       `gorm:"size:255;not null" json:"name"`
	LocationMode LocationMode `gorm:"size:20;not null" json:"location_mode"`
	Latitude     float64      `json:"latitude"`
	Longitude    float64      `json:"longitude"`
	City         string       `gorm:"size:120" json:"city,omitempty"`
	PostalCode   string       `gorm:"size:10" json:"postal_code,omitempty"`
	RadiusKM     int          `gorm:"not null" json:"radius_km"`
	Active       bool         `gorm:"default:false;index" json:"active"`
	Products     []Product    `gorm:"many2many:search_profile_products" json:"products,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// Insight is one AI-written narrative produced from a user's aggregated
// statistics.
type Insight struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	UserID     uint      `gorm:"index:idx_insights_user;not null" json:"user_id"`
	Content    string    `gorm:"type:text;not null" json:"content"`
	Model      string    `gorm:"size:50" json:"model,omitempty"`
	TokensUsed int       `json:"tokens_used,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// All lists every persisted model for migrations.
func All() []any {
	return []any{
		&Product{},
		&Pharmacy{},
		&PriceObservation{},
		&SearchProfile{},
		&Insight{},
	}
}
