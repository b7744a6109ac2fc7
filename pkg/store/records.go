package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/trempist/trempist/pkg/models"
)

// AddDriverRide persists a new driver ride for phone, assigning its id and
// timestamps. A ride with the same normalized fingerprint already on the user
// is rejected with ErrDuplicateRecord.
func AddDriverRide(ctx context.Context, s Store, prefix Prefix, phone string, ride models.DriverRide) (models.DriverRide, error) {
	now := time.Now()
	ride.ID = uuid.New().String()
	ride.CreatedAt = now
	ride.LastModified = now
	if ride.AvailableSeats < 1 {
		ride.AvailableSeats = models.DefaultSeats
	}

	_, err := s.Mutate(ctx, prefix, phone, true, func(u *models.User) error {
		for i := range u.DriverRides {
			if u.DriverRides[i].Fingerprint() == ride.Fingerprint() {
				return fmt.Errorf("%w: ride %s", ErrDuplicateRecord, u.DriverRides[i].ID)
			}
		}
		u.DriverRides = append(u.DriverRides, ride)
		return nil
	})
	if err != nil {
		return models.DriverRide{}, err
	}
	return ride, nil
}

// AddHitchhikerRequest persists a new hitchhiker request for phone.
func AddHitchhikerRequest(ctx context.Context, s Store, prefix Prefix, phone string, req models.HitchhikerRequest) (models.HitchhikerRequest, error) {
	req.ID = uuid.New().String()
	req.CreatedAt = time.Now()
	if req.FlexibilityMinutes == 0 {
		req.FlexibilityMinutes = models.DefaultFlexibilityMinutes
	}

	_, err := s.Mutate(ctx, prefix, phone, true, func(u *models.User) error {
		for i := range u.HitchhikerRequests {
			if u.HitchhikerRequests[i].Fingerprint() == req.Fingerprint() {
				return fmt.Errorf("%w: request %s", ErrDuplicateRecord, u.HitchhikerRequests[i].ID)
			}
		}
		u.HitchhikerRequests = append(u.HitchhikerRequests, req)
		return nil
	})
	if err != nil {
		return models.HitchhikerRequest{}, err
	}
	return req, nil
}

// UpdateDriverRide applies a patch function to an existing ride and bumps its
// last-modified timestamp. Returns the updated copy.
func UpdateDriverRide(ctx context.Context, s Store, prefix Prefix, phone, rideID string, apply func(*models.DriverRide)) (models.DriverRide, error) {
	var updated models.DriverRide
	_, err := s.Mutate(ctx, prefix, phone, false, func(u *models.User) error {
		ride := u.DriverRideByID(rideID)
		if ride == nil {
			return fmt.Errorf("%w: ride %s", ErrNotFound, rideID)
		}
		apply(ride)
		ride.LastModified = time.Now()
		updated = *ride
		return nil
	})
	if err != nil {
		return models.DriverRide{}, err
	}
	return updated, nil
}

// UpdateHitchhikerRequest applies a patch function to an existing request.
func UpdateHitchhikerRequest(ctx context.Context, s Store, prefix Prefix, phone, requestID string, apply func(*models.HitchhikerRequest)) (models.HitchhikerRequest, error) {
	var updated models.HitchhikerRequest
	_, err := s.Mutate(ctx, prefix, phone, false, func(u *models.User) error {
		req := u.HitchhikerRequestByID(requestID)
		if req == nil {
			return fmt.Errorf("%w: request %s", ErrNotFound, requestID)
		}
		apply(req)
		updated = *req
		return nil
	})
	if err != nil {
		return models.HitchhikerRequest{}, err
	}
	return updated, nil
}

// RemoveRecord deletes the record with the given id and role. The id resolves
// like models.User.DriverRideByID, so a unique prefix of at least 8
// characters also identifies the record.
func RemoveRecord(ctx context.Context, s Store, prefix Prefix, phone, id string, role models.Role) error {
	_, err := s.Mutate(ctx, prefix, phone, false, func(u *models.User) error {
		switch role {
		case models.RoleDriver:
			if ride := u.DriverRideByID(id); ride != nil {
				target := ride.ID
				for i := range u.DriverRides {
					if u.DriverRides[i].ID == target {
						u.DriverRides = append(u.DriverRides[:i], u.DriverRides[i+1:]...)
						return nil
					}
				}
			}
		case models.RoleHitchhiker:
			if req := u.HitchhikerRequestByID(id); req != nil {
				target := req.ID
				for i := range u.HitchhikerRequests {
					if u.HitchhikerRequests[i].ID == target {
						u.HitchhikerRequests = append(u.HitchhikerRequests[:i], u.HitchhikerRequests[i+1:]...)
						return nil
					}
				}
			}
		}
		return fmt.Errorf("%w: %s record %s", ErrNotFound, role, id)
	})
	return err
}

// RemoveAllRecords clears both record lists of a user, keeping the document
// and its chat history. Absent users are a no-op.
func RemoveAllRecords(ctx context.Context, s Store, prefix Prefix, phone string) error {
	_, err := s.Mutate(ctx, prefix, phone, true, func(u *models.User) error {
		u.DriverRides = nil
		u.HitchhikerRequests = nil
		return nil
	})
	return err
}

// AttachRouteData upserts the route data of a ride. The attach is idempotent
// and silently skips rides that no longer exist — a user delete must win over
// an in-flight route pipeline.
func AttachRouteData(ctx context.Context, s Store, prefix Prefix, phone, rideID string, route models.RouteData) (bool, error) {
	attached := false
	_, err := s.Mutate(ctx, prefix, phone, false, func(u *models.User) error {
		ride := u.DriverRideByID(rideID)
		if ride == nil {
			return nil
		}
		ride.Route = &route
		ride.LastModified = time.Now()
		attached = true
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return attached, nil
}

// ScanDrivers enumerates every driver ride under the prefix. fn returning
// false stops the scan.
func ScanDrivers(ctx context.Context, s Store, prefix Prefix, fn func(user *models.User, ride models.DriverRide) bool) error {
	return s.ScanUsers(ctx, prefix, func(u *models.User) bool {
		for _, ride := range u.DriverRides {
			if !fn(u, ride) {
				return false
			}
		}
		return true
	})
}

// ScanHitchhikers enumerates every hitchhiker request under the prefix.
func ScanHitchhikers(ctx context.Context, s Store, prefix Prefix, fn func(user *models.User, req models.HitchhikerRequest) bool) error {
	return s.ScanUsers(ctx, prefix, func(u *models.User) bool {
		for _, req := range u.HitchhikerRequests {
			if !fn(u, req) {
				return false
			}
		}
		return true
	})
}
