// Package tokenstore persists the access/refresh token pair between requests.
//
// Two places are kept in sync by the session client: a local store (process memory or a file,
// the counterpart of browser local storage) and cookies readable by the server side.
package tokenstore

import (
	"errors"

	"github.com/nkiryanov/eazynet/internal/models"
)

// Local storage keys
const (
	KeyAccess  = "eazynet_token"
	KeyRefresh = "eazynet_refresh_token"
)

type Store interface {
	// Return the stored pair. Missing tokens are empty strings, not errors
	Load() (models.TokenPair, error)

	// Replace both tokens
	Save(pair models.TokenPair) error

	// Drop the access token only, refresh token stays
	ClearAccess() error

	// Drop both tokens
	Clear() error
}

// Mirror writes to every store. Each token is read from the first store that holds it,
// so access token from one place and refresh token from another make a single pair
func Mirror(primary Store, mirrors ...Store) Store {
	return &mirror{stores: append([]Store{primary}, mirrors...)}
}

type mirror struct {
	stores []Store
}

func (m *mirror) Load() (models.TokenPair, error) {
	var (
		merged models.TokenPair
		errs   []error
	)
	for _, s := range m.stores {
		pair, err := s.Load()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if merged.Access == "" {
			merged.Access = pair.Access
		}
		if merged.Refresh == "" {
			merged.Refresh = pair.Refresh
		}
		if merged.Access != "" && merged.Refresh != "" {
			return merged, nil
		}
	}
	if !merged.IsZero() {
		return merged, nil
	}
	return merged, errors.Join(errs...)
}

func (m *mirror) Save(pair models.TokenPair) error {
	return m.each(func(s Store) error { return s.Save(pair) })
}

func (m *mirror) ClearAccess() error {
	return m.each(Store.ClearAccess)
}

func (m *mirror) Clear() error {
	return m.each(Store.Clear)
}

// Apply fn to all stores even if some fail
func (m *mirror) each(fn func(Store) error) error {
	var errs []error
	for _, s := range m.stores {
		if err := fn(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
