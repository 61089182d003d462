package models

import "encoding/json"

// StopRequest is one intermediate stop of an optimize request.
type StopRequest struct {
	Address  string `json:"address" validate:"required,max=500"`
	Category string `json:"category,omitempty" validate:"omitempty,stop_category"`
	Notes    string `json:"notes,omitempty" validate:"max=500"`
}

// OptimizeRequest is the request body for POST /v1/routes:optimize.
type OptimizeRequest struct {
	Start           string        `json:"start" validate:"required,max=500"`
	End             string        `json:"end,omitempty" validate:"max=500"`
	Stops           []StopRequest `json:"stops" validate:"min=1,dive"`
	ConsiderTraffic bool          `json:"considerTraffic"`
	RoundTrip       bool          `json:"roundTrip"`
}

// StopCategory is a stop purpose with its marker style.
type StopCategory struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
}

// StopCategories lists the available categories.
type StopCategories struct {
	Items []StopCategory `json:"items"`
}

// Waypoint is a resolved point of an optimized route, in visiting order.
type Waypoint struct {
	Type        string        `json:"type"`
	Address     string        `json:"address"`
	DisplayName string        `json:"displayName"`
	Point       Point         `json:"point"`
	PlaceID     string        `json:"placeId,omitempty"`
	Category    *StopCategory `json:"category,omitempty"`
	Notes       string        `json:"notes,omitempty"`
}

// Leg is the drive between two consecutive waypoints.
type Leg struct {
	Distance                 string  `json:"distance"`
	Duration                 string  `json:"duration"`
	DistanceMeters           float64 `json:"distanceMeters"`
	DurationSeconds          int     `json:"durationSeconds"`
	DurationInTrafficSeconds *int    `json:"durationInTrafficSeconds,omitempty"`
}

// Bounds encloses the route geometry.
type Bounds struct {
	MinLat float64 `json:"minLat"`
	MinLng float64 `json:"minLng"`
	MaxLat float64 `json:"maxLat"`
	MaxLng float64 `json:"maxLng"`
}

// Geometry is the drawable route path as an encoded polyline.
type Geometry struct {
	Polyline string `json:"polyline"`
	Bounds   Bounds `json:"bounds"`
}

// MapsLinks open the route in a maps application.
type MapsLinks struct {
	Google string `json:"google"`
	Apple  string `json:"apple"`
}

// Route is the response for an optimized or saved route.
type Route struct {
	Waypoints            []Waypoint `json:"waypoints"`
	Legs                 []Leg      `json:"legs"`
	TotalDistance        string     `json:"totalDistance"`
	EstimatedTime        string     `json:"estimatedTime"`
	TotalDistanceMeters  float64    `json:"totalDistanceMeters"`
	TotalDurationSeconds int        `json:"totalDurationSeconds"`
	TrafficConsidered    bool       `json:"trafficConsidered"`
	TrafficDegraded      bool       `json:"trafficDegraded,omitempty"`
	Geometry             Geometry   `json:"geometry"`
	MapsLinks            MapsLinks  `json:"mapsLinks"`
}

// GeocodeResponse is the response for GET /v1/geocode.
type GeocodeResponse struct {
	Query            string `json:"query"`
	FormattedAddress string `json:"formattedAddress"`
	DisplayName      string `json:"displayName,omitempty"`
	PlaceID          string `json:"placeId,omitempty"`
	Point            Point  `json:"point"`
}

// Usage is the caller's optimization usage for the current UTC day.
type Usage struct {
	CurrentUsage int       `json:"currentUsage"`
	Limit        int       `json:"limit"`
	Remaining    int       `json:"remaining"`
	ResetsAt     Timestamp `json:"resetsAt"`
}

// SaveRouteRequest is the request body for POST /v1/me/routes. Route holds
// a route document as returned by the export endpoint.
type SaveRouteRequest struct {
	Name  string          `json:"name,omitempty" validate:"max=80"`
	Route json.RawMessage `json:"route" validate:"required"`
}

// SavedRouteSummary is a saved route in list responses.
type SavedRouteSummary struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	StopCount     int       `json:"stopCount"`
	TotalDistance string    `json:"totalDistance"`
	EstimatedTime string    `json:"estimatedTime"`
	CreatedAt     Timestamp `json:"createdAt"`
}

// SavedRoute is a saved route with its full route.
type SavedRoute struct {
	SavedRouteSummary
	Route Route `json:"route"`
}

// PagedSavedRoutes represents a paginated list of saved routes.
type PagedSavedRoutes struct {
	Items []SavedRouteSummary `json:"items"`
	Meta  PageMeta            `json:"meta"`
}
