package google

const (
	statusOK                   = "OK"
	statusZeroResults          = "ZERO_RESULTS"
	statusNotFound             = "NOT_FOUND"
	statusMaxWaypointsExceeded = "MAX_WAYPOINTS_EXCEEDED"
	statusInvalidRequest       = "INVALID_REQUEST"
	statusOverQueryLimit       = "OVER_QUERY_LIMIT"
	statusOverDailyLimit       = "OVER_DAILY_LIMIT"
	statusRequestDenied        = "REQUEST_DENIED"
)

// directionsResponse is the Directions API JSON body.
type directionsResponse struct {
	Status       string            `json:"status"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Routes       []directionsRoute `json:"routes"`
}

type directionsRoute struct {
	Summary          string          `json:"summary"`
	Legs             []directionsLeg `json:"legs"`
	WaypointOrder    []int           `json:"waypoint_order"`
	OverviewPolyline encodedPolyline `json:"overview_polyline"`
}

type directionsLeg struct {
	Distance          valueText  `json:"distance"`
	Duration          valueText  `json:"duration"`
	DurationInTraffic *valueText `json:"duration_in_traffic,omitempty"`
	StartAddress      string     `json:"start_address"`
	EndAddress        string     `json:"end_address"`
	StartLocation     latLng     `json:"start_location"`
	EndLocation       latLng     `json:"end_location"`
	Steps             []step     `json:"steps"`
}

type step struct {
	Polyline encodedPolyline `json:"polyline"`
}

type valueText struct {
	Value int    `json:"value"`
	Text  string `json:"text"`
}

type encodedPolyline struct {
	Points string `json:"points"`
}

type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
