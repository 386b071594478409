// Package profiles manages the user's saved monitoring setups: a location,
// a radius and the set of products a monitoring pass tracks.
package profiles

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/riddle022/farmavision/pkg/geo"
	"github.com/riddle022/farmavision/pkg/geocode"
	"github.com/riddle022/farmavision/pkg/logger"
	"github.com/riddle022/farmavision/pkg/models"
	"github.com/riddle022/farmavision/pkg/search"
	"github.com/riddle022/farmavision/pkg/store"
)

// DefaultRadiusKM applies when a profile is saved without a radius.
const DefaultRadiusKM = 10

var (
	// ErrInvalidInput covers missing names, bad radii and bad modes.
	ErrInvalidInput = errors.New("profiles: invalid input")
	// ErrInvalidLocation means device coordinates were out of range.
	ErrInvalidLocation = errors.New("profiles: coordinates out of range")
	// ErrUnknownCity means the city is not in the reference catalog.
	ErrUnknownCity = errors.New("profiles: unknown reference city")
	// ErrGeocodingUnavailable means cep mode was requested but no postal
	// code resolver is wired.
	ErrGeocodingUnavailable = errors.New("profiles: postal code resolution unavailable")
)

// Input carries the profile fields a caller may set. Which location fields
// matter depends on Mode: device reads Lat/Lon, city reads City, cep reads
// CEP.
type Input struct {
	Name       string
	Mode       models.LocationMode
	Lat        float64
	Lon        float64
	City       string
	CEP        string
	RadiusKM   int
	ProductIDs []uint
	Activate   bool
}

// Service validates and persists search profiles.
type Service struct {
	store    *store.Store
	geocoder geocode.Resolver
	log      logger.Logger
}

// NewService wires the profile service. geocoder may be nil; cep mode then
// fails with ErrGeocodingUnavailable.
func NewService(st *store.Store, geocoder geocode.Resolver, log logger.Logger) *Service {
	return &Service{store: st, geocoder: geocoder, log: log}
}

// Create validates the input, resolves its location and persists the
// profile. With Activate set the new profile becomes the user's active one.
func (s *Service) Create(ctx context.Context, userID uint, in Input) (*models.SearchProfile, error) {
	profile := &models.SearchProfile{UserID: userID}
	if err := s.apply(ctx, profile, in); err != nil {
		return nil, err
	}
	if err := s.store.Profiles.Create(ctx, profile, in.ProductIDs); err != nil {
		return nil, err
	}
	if in.Activate {
		if err := s.store.Profiles.Activate(ctx, userID, profile.ID); err != nil {
			return nil, err
		}
	}
	s.log.Info("search profile created",
		"user_id", userID, "profile_id", profile.ID, "mode", profile.LocationMode, "radius_km", profile.RadiusKM)
	return s.store.Profiles.ByID(ctx, userID, profile.ID)
}

// Update replaces the profile's fields. A nil ProductIDs keeps the current
// product set; an empty non-nil slice clears it.
func (s *Service) Update(ctx context.Context, userID, id uint, in Input) (*models.SearchProfile, error) {
	profile, err := s.store.Profiles.ByID(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if err := s.apply(ctx, profile, in); err != nil {
		return nil, err
	}
	if err := s.store.Profiles.Update(ctx, profile, in.ProductIDs); err != nil {
		return nil, err
	}
	return s.store.Profiles.ByID(ctx, userID, id)
}

// Get returns one profile with its products.
func (s *Service) Get(ctx context.Context, userID, id uint) (*models.SearchProfile, error) {
	return s.store.Profiles.ByID(ctx, userID, id)
}

// List returns the user's profiles.
func (s *Service) List(ctx context.Context, userID uint) ([]models.SearchProfile, error) {
	return s.store.Profiles.List(ctx, userID)
}

// Delete removes a profile. Its products survive; only the memberships go.
func (s *Service) Delete(ctx context.Context, userID, id uint) error {
	return s.store.Profiles.Delete(ctx, userID, id)
}

// Activate marks one profile active and the user's others inactive.
func (s *Service) Activate(ctx context.Context, userID, id uint) error {
	return s.store.Profiles.Activate(ctx, userID, id)
}

// Active returns the user's active profile, or store.ErrNotFound.
func (s *Service) Active(ctx context.Context, userID uint) (*models.SearchProfile, error) {
	return s.store.Profiles.Active(ctx, userID)
}

// apply validates the input and writes it onto the profile, resolving the
// location for the requested mode.
func (s *Service) apply(ctx context.Context, profile *models.SearchProfile, in Input) error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	radius := in.RadiusKM
	if radius == 0 {
		radius = DefaultRadiusKM
	}
	if radius < search.MinRadiusKM || radius > search.MaxRadiusKM {
		return fmt.Errorf("%w: radius must be between %d and %d km", ErrInvalidInput, search.MinRadiusKM, search.MaxRadiusKM)
	}

	profile.Name = name
	profile.RadiusKM = radius
	profile.City = ""
	profile.PostalCode = ""

	switch in.Mode {
	case models.LocationDevice:
		if !geo.InBounds(in.Lat, in.Lon) {
			return fmt.Errorf("%w: lat %v lon %v", ErrInvalidLocation, in.Lat, in.Lon)
		}
		profile.Latitude = in.Lat
		profile.Longitude = in.Lon
	case models.LocationCity:
		city, ok := CityByName(in.City)
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownCity, in.City)
		}
		profile.City = city.Name
		profile.Latitude = city.Lat
		profile.Longitude = city.Lon
	case models.LocationPostal:
		if s.geocoder == nil {
			return ErrGeocodingUnavailable
		}
		location, err := s.geocoder.Resolve(ctx, in.CEP)
		if err != nil {
			return err
		}
		profile.PostalCode = location.CEP
		profile.City = location.City
		profile.Latitude = location.Lat
		profile.Longitude = location.Lon
	default:
		return fmt.Errorf("%w: unknown location mode %q", ErrInvalidInput, in.Mode)
	}
	profile.LocationMode = in.Mode
	return nil
}
