package route

import (
	"net/url"
	"strings"
)

// GoogleMapsURL opens the route in Google Maps with stops in visiting order.
func GoogleMapsURL(r *Route) string {
	if len(r.Waypoints) < 2 {
		return ""
	}
	first := r.Waypoints[0]
	last := r.Waypoints[len(r.Waypoints)-1]

	var b strings.Builder
	b.WriteString("https://www.google.com/maps/dir/?api=1")
	b.WriteString("&origin=" + escape(address(first)))
	b.WriteString("&destination=" + escape(address(last)))

	stops := r.Stops()
	if len(stops) > 0 {
		parts := make([]string, len(stops))
		for i, wp := range stops {
			parts[i] = escape(address(wp))
		}
		b.WriteString("&waypoints=" + strings.Join(parts, "|"))
	}
	return b.String()
}

// AppleMapsURL opens the route in Apple Maps; every waypoint after the first
// is a daddr in visiting order.
func AppleMapsURL(r *Route) string {
	if len(r.Waypoints) < 2 {
		return ""
	}

	var b strings.Builder
	b.WriteString("http://maps.apple.com/?saddr=" + escape(address(r.Waypoints[0])))
	for _, wp := range r.Waypoints[1:] {
		b.WriteString("&daddr=" + escape(address(wp)))
	}
	return b.String()
}

func address(wp Waypoint) string {
	if wp.Location.FormattedAddress != "" {
		return wp.Location.FormattedAddress
	}
	if wp.Location.RawQuery != "" {
		return wp.Location.RawQuery
	}
	return wp.Location.Coordinate.String()
}

// escape percent-encodes a query component with spaces as %20.
func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
