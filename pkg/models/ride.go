package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/trempist/trempist/pkg/geo"
)

// Role distinguishes the two record kinds stored on a user.
type Role string

// Record roles.
const (
	RoleDriver     Role = "driver"
	RoleHitchhiker Role = "hitchhiker"
)

// ParseRole validates a role string coming from a tool call or admin command.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleDriver:
		return RoleDriver, nil
	case RoleHitchhiker:
		return RoleHitchhiker, nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// RouteData is the driving polyline attached to a driver ride once the route
// pipeline has resolved it. Once set it is only ever replaced whole.
type RouteData struct {
	Polyline    []geo.Point `json:"polyline"`
	DistanceKm  float64     `json:"distance_km"`
	ThresholdKm float64     `json:"threshold_km"`
}

// DriverRide is a driver's listed trip: either recurring (Days non-empty) or
// one-shot (TravelDate set). Times are "HH:MM", dates "2006-01-02".
type DriverRide struct {
	ID             string     `json:"ride_id"`
	Origin         string     `json:"origin"`
	Destination    string     `json:"destination"`
	Days           []string   `json:"days,omitempty"`
	DepartureTime  string     `json:"departure_time"`
	ReturnTime     string     `json:"return_time,omitempty"`
	TravelDate     string     `json:"travel_date,omitempty"`
	AvailableSeats int        `json:"available_seats"`
	Notes          string     `json:"notes,omitempty"`
	Route          *RouteData `json:"route_data,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	LastModified   time.Time  `json:"last_modified"`
}

// Recurring reports whether the ride repeats on a weekday set.
func (r *DriverRide) Recurring() bool { return len(r.Days) > 0 }

// HitchhikerRequest is a rider's trip request: one-shot (DepartureTime set)
// or a flexible [Earliest, Latest] window on TravelDate.
type HitchhikerRequest struct {
	ID                 string    `json:"request_id"`
	Origin             string    `json:"origin"`
	Destination        string    `json:"destination"`
	TravelDate         string    `json:"travel_date"`
	DepartureTime      string    `json:"departure_time,omitempty"`
	Earliest           string    `json:"earliest,omitempty"`
	Latest             string    `json:"latest,omitempty"`
	FlexibilityMinutes int       `json:"flexibility_minutes"`
	Notes              string    `json:"notes,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// Flexible reports whether the request carries a time window instead of a
// single departure time.
func (r *HitchhikerRequest) Flexible() bool { return r.Earliest != "" && r.Latest != "" }

// DefaultSeats is applied when a driver does not state seat count.
const DefaultSeats = 3

// DefaultFlexibilityMinutes is applied when a hitchhiker does not state one.
const DefaultFlexibilityMinutes = 30

// MaxFlexibilityMinutes bounds the flexibility a request may carry.
const MaxFlexibilityMinutes = 240

// Fingerprint returns a normalized identity for duplicate-creation detection:
// same role, endpoints and temporal shape collide.
func (r *DriverRide) Fingerprint() string {
	return strings.Join([]string{
		"driver",
		foldLabel(r.Origin),
		foldLabel(r.Destination),
		strings.Join(r.Days, ","),
		r.DepartureTime,
		r.ReturnTime,
		r.TravelDate,
	}, "|")
}

// Fingerprint is the hitchhiker-side counterpart of DriverRide.Fingerprint.
func (r *HitchhikerRequest) Fingerprint() string {
	return strings.Join([]string{
		"hitchhiker",
		foldLabel(r.Origin),
		foldLabel(r.Destination),
		r.TravelDate,
		r.DepartureTime,
		r.Earliest,
		r.Latest,
	}, "|")
}

func foldLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "-", " ")
	return strings.Join(strings.Fields(s), " ")
}
