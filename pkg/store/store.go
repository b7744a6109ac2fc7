// Package store is the typed facade over the document store: per-user lists
// of driver rides and hitchhiker requests, under a prefix-scoped namespace.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/trempist/trempist/pkg/models"
)

// Prefix selects the collection namespace. The prefix flows explicitly
// through every read and write; implementations refuse anything but the two
// known namespaces so live and sandbox state can never mix.
type Prefix string

// Known namespaces.
const (
	PrefixLive    Prefix = ""
	PrefixSandbox Prefix = "test_"
)

// ParsePrefix validates a prefix string from a request boundary.
func ParsePrefix(s string) (Prefix, error) {
	switch Prefix(s) {
	case PrefixLive:
		return PrefixLive, nil
	case PrefixSandbox:
		return PrefixSandbox, nil
	}
	return "", fmt.Errorf("%w: %q", ErrPrefixUnknown, s)
}

// Store errors.
var (
	ErrNotFound        = errors.New("not found")
	ErrPrefixUnknown   = errors.New("unknown collection prefix")
	ErrDuplicateRecord = errors.New("duplicate record")
)

// Store is the narrow key-value-of-user-documents interface. Higher-level
// record operations are built on top of it in this package.
type Store interface {
	// GetUser loads a user document. Returns ErrNotFound when absent.
	GetUser(ctx context.Context, prefix Prefix, phone string) (*models.User, error)

	// Mutate atomically applies fn to the user document and persists the
	// result. When the document is absent and create is true a fresh one is
	// initialized; when create is false ErrNotFound is returned and fn is
	// not called. An error from fn aborts the write.
	Mutate(ctx context.Context, prefix Prefix, phone string, create bool, fn func(*models.User) error) (*models.User, error)

	// DeleteUser removes the user document. Deleting an absent user is a
	// no-op.
	DeleteUser(ctx context.Context, prefix Prefix, phone string) error

	// ChangePhone re-keys a user document. Returns ErrNotFound when the old
	// phone is absent, ErrDuplicateRecord when the new phone is taken.
	ChangePhone(ctx context.Context, prefix Prefix, oldPhone, newPhone string) error

	// ScanUsers enumerates every user document in the namespace, invoking fn
	// for each until fn returns false. Enumeration order is unspecified and
	// the snapshot is as-of-read.
	ScanUsers(ctx context.Context, prefix Prefix, fn func(*models.User) bool) error
}

// RecordLists bundles both record kinds of one user.
type RecordLists struct {
	DriverRides        []models.DriverRide
	HitchhikerRequests []models.HitchhikerRequest
}

// ListRecords returns the user's rides and requests. An absent user yields
// empty lists.
func ListRecords(ctx context.Context, s Store, prefix Prefix, phone string) (RecordLists, error) {
	user, err := s.GetUser(ctx, prefix, phone)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return RecordLists{}, nil
		}
		return RecordLists{}, err
	}
	return RecordLists{
		DriverRides:        user.DriverRides,
		HitchhikerRequests: user.HitchhikerRequests,
	}, nil
}
