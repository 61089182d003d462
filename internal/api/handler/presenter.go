package handler

import (
	"github.com/driveless/driveless/internal/api/models"
	"github.com/driveless/driveless/internal/route"
	"github.com/driveless/driveless/internal/savedroute"
)

func toRoute(rt *route.Route) models.Route {
	totals := rt.Totals()
	geometry := route.GeometryOf(rt)

	out := models.Route{
		Waypoints:            make([]models.Waypoint, len(rt.Waypoints)),
		Legs:                 make([]models.Leg, len(rt.Legs)),
		TotalDistance:        totals.FormattedDistance,
		EstimatedTime:        totals.FormattedDuration,
		TotalDistanceMeters:  totals.TotalDistanceMeters,
		TotalDurationSeconds: totals.TotalDurationSeconds,
		TrafficConsidered:    rt.TrafficConsidered,
		TrafficDegraded:      rt.TrafficDegraded,
		Geometry: models.Geometry{
			Polyline: geometry.Polyline,
			Bounds: models.Bounds{
				MinLat: geometry.Bounds.MinLat,
				MinLng: geometry.Bounds.MinLng,
				MaxLat: geometry.Bounds.MaxLat,
				MaxLng: geometry.Bounds.MaxLng,
			},
		},
		MapsLinks: models.MapsLinks{
			Google: route.GoogleMapsURL(rt),
			Apple:  route.AppleMapsURL(rt),
		},
	}

	for i, wp := range rt.Waypoints {
		address := wp.Location.FormattedAddress
		if address == "" {
			address = wp.Location.RawQuery
		}
		w := models.Waypoint{
			Type:        string(wp.Type),
			Address:     address,
			DisplayName: wp.DisplayName,
			Point:       models.Point{Lat: wp.Location.Coordinate.Lat, Lng: wp.Location.Coordinate.Lng},
			PlaceID:     wp.Location.PlaceID,
			Notes:       wp.Notes,
		}
		if wp.Category != nil {
			c := toStopCategory(*wp.Category)
			w.Category = &c
		}
		out.Waypoints[i] = w
	}

	for i, l := range rt.Legs {
		duration := l.EffectiveDurationSeconds(rt.TrafficConsidered)
		out.Legs[i] = models.Leg{
			Distance:                 route.FormatDistance(l.DistanceMeters),
			Duration:                 route.FormatDuration(duration),
			DistanceMeters:           l.DistanceMeters,
			DurationSeconds:          l.DurationSeconds,
			DurationInTrafficSeconds: l.DurationInTrafficSeconds,
		}
	}

	return out
}

func toStopCategory(c route.Category) models.StopCategory {
	return models.StopCategory{ID: c.ID, Name: c.Name, Color: c.Color, Icon: c.Icon}
}

func toSavedRouteSummary(sr *savedroute.SavedRoute) models.SavedRouteSummary {
	return models.SavedRouteSummary{
		ID:            sr.ID,
		Name:          sr.Name,
		StopCount:     sr.StopCount(),
		TotalDistance: sr.Document.TotalDistance,
		EstimatedTime: sr.Document.EstimatedTime,
		CreatedAt:     models.Timestamp(sr.CreatedAt),
	}
}
