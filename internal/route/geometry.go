package route

import (
	"github.com/driveless/driveless/internal/geocoding"
	"github.com/driveless/driveless/pkg/polyline"
)

// BoundingBox encloses a route's path.
type BoundingBox struct {
	MinLat float64 `json:"minLat"`
	MinLng float64 `json:"minLng"`
	MaxLat float64 `json:"maxLat"`
	MaxLng float64 `json:"maxLng"`
}

// Geometry is the drawable shape of a route.
type Geometry struct {
	Path     []geocoding.Coordinate `json:"-"`
	Polyline string                 `json:"polyline"`
	Bounds   BoundingBox            `json:"bounds"`
}

// GeometryOf joins the leg paths of r in order. A leg without a path
// contributes a straight segment between its endpoints.
func GeometryOf(r *Route) Geometry {
	var coords []polyline.Coordinate
	appendPoint := func(c geocoding.Coordinate) {
		p := polyline.Coordinate{Lat: c.Lat, Lng: c.Lng}
		if len(coords) > 0 && coords[len(coords)-1] == p {
			return
		}
		coords = append(coords, p)
	}

	for _, leg := range r.Legs {
		if len(leg.Path) == 0 {
			appendPoint(leg.From.Coordinate)
			appendPoint(leg.To.Coordinate)
			continue
		}
		for _, c := range leg.Path {
			appendPoint(c)
		}
	}
	if len(r.Legs) == 0 {
		for _, wp := range r.Waypoints {
			appendPoint(wp.Location.Coordinate)
		}
	}

	g := Geometry{
		Path:     make([]geocoding.Coordinate, len(coords)),
		Polyline: polyline.Encode(coords),
	}
	for i, c := range coords {
		g.Path[i] = geocoding.Coordinate{Lat: c.Lat, Lng: c.Lng}
	}
	g.Bounds = boundsOf(g.Path)
	return g
}

func boundsOf(path []geocoding.Coordinate) BoundingBox {
	if len(path) == 0 {
		return BoundingBox{}
	}
	b := BoundingBox{MinLat: path[0].Lat, MaxLat: path[0].Lat, MinLng: path[0].Lng, MaxLng: path[0].Lng}
	for _, c := range path[1:] {
		b.MinLat = min(b.MinLat, c.Lat)
		b.MaxLat = max(b.MaxLat, c.Lat)
		b.MinLng = min(b.MinLng, c.Lng)
		b.MaxLng = max(b.MaxLng, c.Lng)
	}
	return b
}
