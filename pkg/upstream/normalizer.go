package upstream

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/riddle022/farmavision/pkg/geo"
)

// RecencyUnknown is the label used when a record carries no usable
// collection timestamp.
const RecencyUnknown = "tempo não informado"

// Normalize converts one raw upstream record into the canonical offer shape.
// It is total: any field it cannot recover degrades to its zero form (price
// 0, nil coordinates, the unknown-recency label) instead of failing the
// record. now anchors the recency label.
func Normalize(raw map[string]any, now time.Time) Offer {
	m := flatten(raw)

	price, ok := priceFields.float(m)
	if !ok || price < 0 {
		price = 0
	}

	collectedAt := timeFields.time(m)

	var distance *float64
	if d, ok := distanceFields.float(m); ok && d >= 0 {
		distance = &d
	}

	return Offer{
		ID:            idFields.str(m),
		Description:   descriptionFields.str(m),
		Price:         price,
		Establishment: normalizeEstablishment(m),
		DistanceKM:    distance,
		CollectedAt:   collectedAt,
		Recency:       RecencyLabel(collectedAt, now),
	}
}

// NormalizeAll converts a raw result list, preserving order. Records that
// normalize to empty offers are kept; downstream statistics skip them by
// price, not by presence.
func NormalizeAll(raw []map[string]any, now time.Time) []Offer {
	offers := make([]Offer, 0, len(raw))
	for _, r := range raw {
		offers = append(offers, Normalize(r, now))
	}
	return offers
}

// NormalizeCategory converts one raw category entry.
func NormalizeCategory(raw map[string]any) Category {
	return Category{
		Code:        categoryCodeFields.str(raw),
		Description: categoryDescFields.str(raw),
	}
}

// NormalizeCategories converts a raw category list, preserving order.
func NormalizeCategories(raw []map[string]any) []Category {
	cats := make([]Category, 0, len(raw))
	for _, r := range raw {
		cats = append(cats, NormalizeCategory(r))
	}
	return cats
}

func normalizeEstablishment(m map[string]any) Establishment {
	address := addressFields.str(m)
	if number := numberFields.str(m); number != "" && address != "" {
		address = address + ", " + number
	}
	return Establishment{
		Name:        nameFields.str(m),
		TaxID:       taxIDFields.str(m),
		Address:     address,
		Coordinates: extractCoordinates(m),
	}
}

// extractCoordinates recovers a location using three fallbacks in order:
// a combined "lat,lon" string, separate latitude/longitude fields, then
// decoding a geohash field. Anything else yields nil, which the wire format
// renders as an explicit null.
func extractCoordinates(m map[string]any) *geo.Point {
	if v, ok := pairFields.lookup(m); ok {
		if s, isStr := v.(string); isStr {
			if p := parseLatLonPair(s); p != nil {
				return p
			}
		}
	}

	if latV, ok := latitudeFields.lookup(m); ok {
		if lonV, ok := longitudeFields.lookup(m); ok {
			lat, okLat := asFloat(latV)
			lon, okLon := asFloat(lonV)
			if okLat && okLon && geo.InBounds(lat, lon) && (lat != 0 || lon != 0) {
				return &geo.Point{Lat: lat, Lon: lon}
			}
		}
	}

	if s := geohashFields.str(m); s != "" {
		if p, err := geo.Decode(s); err == nil {
			return &p
		}
	}
	return nil
}

func parseLatLonPair(s string) *geo.Point {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return nil
	}
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lon, errLon := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errLat != nil || errLon != nil || !geo.InBounds(lat, lon) {
		return nil
	}
	// 0,0 is how the upstream encodes "no location"; never a real pharmacy.
	if lat == 0 && lon == 0 {
		return nil
	}
	return &geo.Point{Lat: lat, Lon: lon}
}

// RecencyLabel renders how old a collection timestamp is, in the wire
// language. A nil timestamp maps to RecencyUnknown rather than a fake age.
func RecencyLabel(collectedAt *time.Time, now time.Time) string {
	if collectedAt == nil {
		return RecencyUnknown
	}
	age := now.Sub(*collectedAt)
	switch {
	case age < time.Minute:
		return "agora mesmo"
	case age < time.Hour:
		return fmt.Sprintf("há %d min", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("há %d h", int(age.Hours()))
	default:
		days := int(age.Hours() / 24)
		if days == 1 {
			return "há 1 dia"
		}
		return fmt.Sprintf("há %d dias", days)
	}
}
