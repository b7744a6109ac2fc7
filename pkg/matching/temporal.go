package matching

import (
	"fmt"

	"time"

	"github.com/trempist/trempist/pkg/geo"
	"github.com/trempist/trempist/pkg/models"
)

// driverTrip is one concrete (date, time) candidate expanded from a driver
// ride. Return legs of recurring rides swap origin and destination.
type driverTrip struct {
	date        string
	timeMin     int
	timeStr     string
	origin      string
	destination string
	returnLeg   bool
}

// expandDriverTrips turns a ride into its concrete candidate trips. One-shot
// rides yield a single trip; recurring rides expand over the next
// recurringHorizonDays for each listed weekday, with the return time (when
// present) as a separate reverse-direction trip.
func expandDriverTrips(ride models.DriverRide, now time.Time) ([]driverTrip, error) {
	depMin, err := models.ParseClock(ride.DepartureTime)
	if err != nil {
		return nil, fmt.Errorf("departure time: %w", err)
	}

	if !ride.Recurring() {
		if ride.TravelDate == "" {
			return nil, fmt.Errorf("ride %s has neither days nor travel date", ride.ID)
		}
		if _, err := models.ParseDate(ride.TravelDate); err != nil {
			return nil, err
		}
		return []driverTrip{{
			date:        ride.TravelDate,
			timeMin:     depMin,
			timeStr:     ride.DepartureTime,
			origin:      ride.Origin,
			destination: ride.Destination,
		}}, nil
	}

	wanted := make(map[time.Weekday]bool, len(ride.Days))
	for _, day := range ride.Days {
		wd, err := models.ParseWeekday(day)
		if err != nil {
			return nil, err
		}
		wanted[wd] = true
	}

	var retMin int
	if ride.ReturnTime != "" {
		retMin, err = models.ParseClock(ride.ReturnTime)
		if err != nil {
			return nil, fmt.Errorf("return time: %w", err)
		}
	}

	var trips []driverTrip
	day := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	for i := 0; i < recurringHorizonDays; i++ {
		d := day.AddDate(0, 0, i)
		if !wanted[d.Weekday()] {
			continue
		}
		date := d.Format(models.DateLayout)
		trips = append(trips, driverTrip{
			date:        date,
			timeMin:     depMin,
			timeStr:     ride.DepartureTime,
			origin:      ride.Origin,
			destination: ride.Destination,
		})
		if ride.ReturnTime != "" {
			trips = append(trips, driverTrip{
				date:        date,
				timeMin:     retMin,
				timeStr:     ride.ReturnTime,
				origin:      ride.Destination,
				destination: ride.Origin,
				returnLeg:   true,
			})
		}
	}
	return trips, nil
}

// timeWindow is the acceptance interval a request imposes on driver times,
// flexibility already applied.
type timeWindow struct {
	date        string
	earliestMin int
	latestMin   int
	// The requested interval before flexibility, for delta ranking: a
	// driver time inside it scores 0.
	wantedEarliest int
	wantedLatest   int
}

// requestWindow derives the acceptance window from a request's temporal
// shape.
func requestWindow(req models.HitchhikerRequest) (timeWindow, error) {
	if _, err := models.ParseDate(req.TravelDate); err != nil {
		return timeWindow{}, err
	}

	flex := req.FlexibilityMinutes
	if flex < 0 {
		flex = 0
	}
	if flex > models.MaxFlexibilityMinutes {
		flex = models.MaxFlexibilityMinutes
	}

	if req.Flexible() {
		earliest, err := models.ParseClock(req.Earliest)
		if err != nil {
			return timeWindow{}, fmt.Errorf("earliest: %w", err)
		}
		latest, err := models.ParseClock(req.Latest)
		if err != nil {
			return timeWindow{}, fmt.Errorf("latest: %w", err)
		}
		if latest < earliest {
			return timeWindow{}, fmt.Errorf("window [%s, %s] is inverted", req.Earliest, req.Latest)
		}
		return timeWindow{
			date:           req.TravelDate,
			earliestMin:    clampMin(earliest - flex),
			latestMin:      latest + flex,
			wantedEarliest: earliest,
			wantedLatest:   latest,
		}, nil
	}

	wanted, err := models.ParseClock(req.DepartureTime)
	if err != nil {
		return timeWindow{}, err
	}
	return timeWindow{
		date:           req.TravelDate,
		earliestMin:    clampMin(wanted - flex),
		latestMin:      wanted + flex,
		wantedEarliest: wanted,
		wantedLatest:   wanted,
	}, nil
}

// delta is the signed distance in minutes between a driver time and the
// requested time (or window).
func (w timeWindow) delta(driverMin int) int {
	if driverMin < w.wantedEarliest {
		return driverMin - w.wantedEarliest
	}
	if driverMin > w.wantedLatest {
		return driverMin - w.wantedLatest
	}
	return 0
}

func clampMin(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

// geoPointToPolyline measures the corridor distance of a point against the
// ride's stored polyline.
func geoPointToPolyline(p geo.Point, route *models.RouteData) float64 {
	return geo.PointToPolylineKm(p, route.Polyline)
}
