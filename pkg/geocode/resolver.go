// Package geocode resolves Brazilian postal codes to coordinates through the
// BrasilAPI CEP service. A profile stores the resolved coordinate, so each
// postal code is looked up once at profile creation, not per search.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/riddle022/farmavision/pkg/geo"
	"github.com/riddle022/farmavision/pkg/logger"
)

var (
	// ErrInvalidCEP means the input is not an eight digit postal code.
	ErrInvalidCEP = errors.New("geocode: invalid postal code")
	// ErrNotFound means the service does not know the postal code.
	ErrNotFound = errors.New("geocode: postal code not found")
	// ErrNoCoordinates means the postal code exists but carries no usable
	// coordinate.
	ErrNoCoordinates = errors.New("geocode: postal code has no coordinates")
)

// Location is one resolved postal code.
type Location struct {
	CEP   string  `json:"cep"`
	City  string  `json:"cidade"`
	State string  `json:"uf"`
	Lat   float64 `json:"latitude"`
	Lon   float64 `json:"longitude"`
}

// Resolver turns a postal code into a coordinate.
type Resolver interface {
	Resolve(ctx context.Context, cep string) (*Location, error)
}

var _ Resolver = (*HTTPResolver)(nil)

// Config for the HTTP resolver.
type Config struct {
	BaseURL string        // default: https://brasilapi.com.br/api/cep/v2
	Timeout time.Duration // default: 10s
}

// HTTPResolver queries the BrasilAPI CEP v2 endpoint.
type HTTPResolver struct {
	http    *http.Client
	baseURL string
	log     logger.Logger
}

// NewHTTPResolver creates a resolver with the given config.
func NewHTTPResolver(cfg Config, log logger.Logger) *HTTPResolver {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://brasilapi.com.br/api/cep/v2"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &HTTPResolver{
		http:    &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		log:     log,
	}
}

// cepResponse is the BrasilAPI v2 payload; coordinates arrive as strings.
type cepResponse struct {
	CEP      string `json:"cep"`
	State    string `json:"state"`
	City     string `json:"city"`
	Location struct {
		Coordinates struct {
			Latitude  string `json:"latitude"`
			Longitude string `json:"longitude"`
		} `json:"coordinates"`
	} `json:"location"`
}

// Resolve looks one postal code up. Formatting characters in the input are
// ignored: "80010-000" and "80010000" resolve the same.
func (r *HTTPResolver) Resolve(ctx context.Context, cep string) (*Location, error) {
	digits, err := NormalizeCEP(cep)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/"+digits, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build cep request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query cep service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, digits)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("cep service returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read cep response: %w", err)
	}
	var payload cepResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode cep response: %w", err)
	}

	lat, latErr := strconv.ParseFloat(strings.TrimSpace(payload.Location.Coordinates.Latitude), 64)
	lon, lonErr := strconv.ParseFloat(strings.TrimSpace(payload.Location.Coordinates.Longitude), 64)
	if latErr != nil || lonErr != nil || !geo.InBounds(lat, lon) {
		return nil, fmt.Errorf("%w: %s", ErrNoCoordinates, digits)
	}

	r.log.Debug("postal code resolved", "cep", digits, "city", payload.City, "lat", lat, "lon", lon)
	return &Location{
		CEP:   digits,
		City:  payload.City,
		State: payload.State,
		Lat:   lat,
		Lon:   lon,
	}, nil
}

// NormalizeCEP strips formatting and validates the eight digit form.
func NormalizeCEP(cep string) (string, error) {
	var b strings.Builder
	for _, r := range cep {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if len(digits) != 8 {
		return "", fmt.Errorf("%w: %q", ErrInvalidCEP, cep)
	}
	return digits, nil
}
