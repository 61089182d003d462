// Package polyline implements Google's encoded polyline algorithm and a few
// distance helpers used for route geometry.
// The algorithm is documented at: https://developers.google.com/maps/documentation/utilities/polylinealgorithm
package polyline

import (
	"math"
)

// Coordinate is a point in the polyline.
type Coordinate struct {
	Lat float64
	Lng float64
}

// Decode decodes a polyline-encoded string into a slice of coordinates.
// Uses the standard precision of 5 decimal places.
func Decode(encoded string) []Coordinate {
	if encoded == "" {
		return nil
	}

	var coords []Coordinate
	index := 0
	lat := 0
	lng := 0

	for index < len(encoded) {
		latDelta, next := decodeValue(encoded, index)
		index = next
		lat += latDelta

		lngDelta, next := decodeValue(encoded, index)
		index = next
		lng += lngDelta

		coords = append(coords, Coordinate{
			Lat: float64(lat) / 1e5,
			Lng: float64(lng) / 1e5,
		})
	}

	return coords
}

// DecodeJoined decodes consecutive polylines (for example the steps of one leg)
// into a single path. A point repeated at the seam between two segments is kept once.
func DecodeJoined(segments ...string) []Coordinate {
	var path []Coordinate
	for _, seg := range segments {
		coords := Decode(seg)
		if len(coords) == 0 {
			continue
		}
		if len(path) > 0 && path[len(path)-1] == coords[0] {
			coords = coords[1:]
		}
		path = append(path, coords...)
	}
	return path
}

// decodeValue decodes a single value starting at index.
// Returns the decoded delta and the index of the next value.
func decodeValue(encoded string, index int) (int, int) {
	shift := 0
	result := 0

	for index < len(encoded) {
		b := int(encoded[index]) - 63
		index++
		result |= (b & 0x1f) << shift
		shift += 5
		if b < 0x20 {
			break
		}
	}

	if result&1 != 0 {
		return ^(result >> 1), index
	}
	return result >> 1, index
}

// Encode encodes coordinates into a polyline string with precision 5.
func Encode(coords []Coordinate) string {
	if len(coords) == 0 {
		return ""
	}

	encoded := make([]byte, 0, len(coords)*4)
	prevLat := 0
	prevLng := 0

	for _, c := range coords {
		lat := int(math.Round(c.Lat * 1e5))
		lng := int(math.Round(c.Lng * 1e5))

		encoded = encodeValue(encoded, lat-prevLat)
		encoded = encodeValue(encoded, lng-prevLng)

		prevLat = lat
		prevLng = lng
	}

	return string(encoded)
}

func encodeValue(buf []byte, value int) []byte {
	if value < 0 {
		value = ^(value << 1)
	} else {
		value <<= 1
	}

	for value >= 0x20 {
		buf = append(buf, byte((value&0x1f)|0x20)+63)
		value >>= 5
	}
	buf = append(buf, byte(value)+63)

	return buf
}

// Length returns the length of a path in meters.
func Length(coords []Coordinate) float64 {
	if len(coords) < 2 {
		return 0
	}

	var total float64
	for i := 1; i < len(coords); i++ {
		total += Distance(coords[i-1], coords[i])
	}
	return total
}

// EarthRadiusMeters is the mean earth radius used by Distance.
const EarthRadiusMeters = 6371000

// Distance returns the great-circle distance between two points in meters.
func Distance(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	sinDLat := math.Sin(dLat / 2)
	sinDLng := math.Sin(dLng / 2)

	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLng*sinDLng
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}
