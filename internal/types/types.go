// README: Shared value types used across modules.
package types

import "fmt"

type ID string

// Waypoint is a pickup or dropoff location: either a coordinate pair shared
// from a chat or mobile client, or a free-text address. Address-only
// waypoints carry no coordinates and contribute zero distance.
type Waypoint struct {
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
	Address string   `json:"address,omitempty"`
}

func CoordWaypoint(lat, lng float64) Waypoint {
	return Waypoint{Lat: &lat, Lng: &lng}
}

func AddressWaypoint(address string) Waypoint {
	return Waypoint{Address: address}
}

func (w Waypoint) HasCoords() bool {
	return w.Lat != nil && w.Lng != nil
}

func (w Waypoint) IsZero() bool {
	return !w.HasCoords() && w.Address == ""
}

func (w Waypoint) String() string {
	if w.HasCoords() {
		return fmt.Sprintf("%.5f,%.5f", *w.Lat, *w.Lng)
	}
	return w.Address
}
