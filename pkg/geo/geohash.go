package geo

import (
	"errors"
	"fmt"
	"strings"
)

// alphabet is the 32-symbol geohash character set (base32 without a, i, l, o).
const alphabet = "0123456789bcdefghjkmnpqrstuvwxyz"

const (
	// DefaultPrecision is the number of geohash characters used for spatial
	// cache and query keys.
	DefaultPrecision = 9
	// MaxPrecision is the longest hash this package will produce.
	MaxPrecision = 12
)

// ErrOutOfBounds is returned when a coordinate falls outside the valid
// latitude/longitude ranges.
var ErrOutOfBounds = errors.New("geo: coordinate out of bounds")

// Point is a WGS84 coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// InBounds reports whether the pair is a valid coordinate. Written so that
// NaN inputs (e.g. unparsed query params) are rejected as well.
func InBounds(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}

// Encode returns the geohash of the coordinate at the given precision.
// Longitude is bisected on even bit indexes, latitude on odd ones, emitting
// 5 bits per output character. Precision values outside [1, MaxPrecision]
// are normalized to DefaultPrecision and MaxPrecision respectively.
func Encode(lat, lon float64, precision int) (string, error) {
	if !InBounds(lat, lon) {
		return "", fmt.Errorf("%w: lat=%v lon=%v", ErrOutOfBounds, lat, lon)
	}
	if precision <= 0 {
		precision = DefaultPrecision
	}
	if precision > MaxPrecision {
		precision = MaxPrecision
	}

	var (
		latMin, latMax = -90.0, 90.0
		lonMin, lonMax = -180.0, 180.0
		b              strings.Builder
		ch, bit        int
		even           = true
	)
	for b.Len() < precision {
		if even {
			mid := (lonMin + lonMax) / 2
			if lon >= mid {
				ch = ch<<1 | 1
				lonMin = mid
			} else {
				ch <<= 1
				lonMax = mid
			}
		} else {
			mid := (latMin + latMax) / 2
			if lat >= mid {
				ch = ch<<1 | 1
				latMin = mid
			} else {
				ch <<= 1
				latMax = mid
			}
		}
		even = !even
		bit++
		if bit == 5 {
			b.WriteByte(alphabet[ch])
			bit, ch = 0, 0
		}
	}
	return b.String(), nil
}

// EncodeOrDefault encodes the coordinate, falling back to the given spatial
// key when the input violates the coordinate contract. Location is
// best-effort for the pipeline, so callers get a usable key either way.
func EncodeOrDefault(lat, lon float64, precision int, fallback string) string {
	h, err := Encode(lat, lon, precision)
	if err != nil {
		return fallback
	}
	return h
}

// Decode returns the centroid of the cell encoded by hash. Decoding is lossy:
// the result lies within the original cell, not at the original point, and is
// only meant as a last-resort coordinate fallback.
func Decode(hash string) (Point, error) {
	if hash == "" {
		return Point{}, errors.New("geo: empty geohash")
	}

	latMin, latMax := -90.0, 90.0
	lonMin, lonMax := -180.0, 180.0
	even := true
	for _, r := range strings.ToLower(hash) {
		idx := strings.IndexRune(alphabet, r)
		if idx < 0 {
			return Point{}, fmt.Errorf("geo: invalid geohash character %q", r)
		}
		for shift := 4; shift >= 0; shift-- {
			bit := (idx >> shift) & 1
			if even {
				mid := (lonMin + lonMax) / 2
				if bit == 1 {
					lonMin = mid
				} else {
					lonMax = mid
				}
			} else {
				mid := (latMin + latMax) / 2
				if bit == 1 {
					latMin = mid
				} else {
					latMax = mid
				}
			}
			even = !even
		}
	}
	return Point{
		Lat: (latMin + latMax) / 2,
		Lon: (lonMin + lonMax) / 2,
	}, nil
}

// CellSize returns the height and width in degrees of a geohash cell at the
// given precision. Used to bound the decode error in tests and callers.
func CellSize(precision int) (latDeg, lonDeg float64) {
	if precision <= 0 {
		precision = DefaultPrecision
	}
	if precision > MaxPrecision {
		precision = MaxPrecision
	}
	bits := precision * 5
	lonBits := (bits + 1) / 2
	latBits := bits / 2
	return 180 / float64(uint64(1)<<latBits), 360 / float64(uint64(1)<<lonBits)
}
