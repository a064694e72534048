// Package places resolves free-text place queries to concrete destinations
// for the in-car map view.
package places

import (
	"context"
	"errors"
)

// ErrNoResults means the query matched nothing.
var ErrNoResults = errors.New("places: no results")

// Place is one resolved destination.
type Place struct {
	Name    string
	Address string
	Lat     float64
	Lng     float64
}

// Resolver turns a place query into candidate destinations.
type Resolver interface {
	Search(ctx context.Context, query string) ([]Place, error)
}

// PassThrough resolves every query to itself. Used when no maps API key is
// configured; viewers fall back to searching the raw query text.
type PassThrough struct{}

func (PassThrough) Search(_ context.Context, query string) ([]Place, error) {
	if query == "" {
		return nil, ErrNoResults
	}
	return []Place{{Name: query}}, nil
}

var _ Resolver = PassThrough{}
