package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/trempist/trempist/pkg/models"
)

// MemoryStore is an in-process Store used by tests and local harnesses. It
// keeps the same namespace isolation rules as the PostgreSQL store.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[Prefix]map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: map[Prefix]map[string][]byte{
			PrefixLive:    {},
			PrefixSandbox: {},
		},
	}
}

func (s *MemoryStore) namespace(prefix Prefix) (map[string][]byte, error) {
	ns, ok := s.docs[prefix]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrPrefixUnknown, string(prefix))
	}
	return ns, nil
}

// GetUser implements Store.
func (s *MemoryStore) GetUser(_ context.Context, prefix Prefix, phone string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, err := s.namespace(prefix)
	if err != nil {
		return nil, err
	}
	raw, ok := ns[phone]
	if !ok {
		return nil, fmt.Errorf("%w: user %s", ErrNotFound, phone)
	}
	var user models.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, fmt.Errorf("failed to decode user document: %w", err)
	}
	return &user, nil
}

// Mutate implements Store.
func (s *MemoryStore) Mutate(_ context.Context, prefix Prefix, phone string, create bool, fn func(*models.User) error) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, err := s.namespace(prefix)
	if err != nil {
		return nil, err
	}

	var user models.User
	if raw, ok := ns[phone]; ok {
		if err := json.Unmarshal(raw, &user); err != nil {
			return nil, fmt.Errorf("failed to decode user document: %w", err)
		}
	} else {
		if !create {
			return nil, fmt.Errorf("%w: user %s", ErrNotFound, phone)
		}
		user = models.User{Phone: phone}
	}

	if err := fn(&user); err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(&user)
	if err != nil {
		return nil, fmt.Errorf("failed to encode user document: %w", err)
	}
	ns[phone] = encoded
	return &user, nil
}

// DeleteUser implements Store.
func (s *MemoryStore) DeleteUser(_ context.Context, prefix Prefix, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, err := s.namespace(prefix)
	if err != nil {
		return err
	}
	delete(ns, phone)
	return nil
}

// ChangePhone implements Store.
func (s *MemoryStore) ChangePhone(_ context.Context, prefix Prefix, oldPhone, newPhone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, err := s.namespace(prefix)
	if err != nil {
		return err
	}
	raw, ok := ns[oldPhone]
	if !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, oldPhone)
	}
	if _, taken := ns[newPhone]; taken {
		return fmt.Errorf("%w: phone %s already exists", ErrDuplicateRecord, newPhone)
	}

	var user models.User
	if err := json.Unmarshal(raw, &user); err != nil {
		return fmt.Errorf("failed to decode user document: %w", err)
	}
	user.Phone = newPhone
	encoded, err := json.Marshal(&user)
	if err != nil {
		return fmt.Errorf("failed to encode user document: %w", err)
	}

	delete(ns, oldPhone)
	ns[newPhone] = encoded
	return nil
}

// ScanUsers implements Store. The scan walks a snapshot taken under the lock
// so callbacks may mutate the store.
func (s *MemoryStore) ScanUsers(_ context.Context, prefix Prefix, fn func(*models.User) bool) error {
	s.mu.Lock()
	ns, err := s.namespace(prefix)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	snapshot := make([][]byte, 0, len(ns))
	for _, raw := range ns {
		snapshot = append(snapshot, raw)
	}
	s.mu.Unlock()

	for _, raw := range snapshot {
		var user models.User
		if err := json.Unmarshal(raw, &user); err != nil {
			return fmt.Errorf("failed to decode user document: %w", err)
		}
		if !fn(&user) {
			break
		}
	}
	return nil
}
