package booking

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/iliyamo/kart-rental/internal/model"
	"github.com/iliyamo/kart-rental/internal/repository"
)

const maxKartTypeLen = 64

// Catalog manages the set of rentable karts.
type Catalog struct {
	karts KartStore
	rec   Recorder
}

// List returns every kart ordered by id.
func (c *Catalog) List(ctx context.Context) ([]model.Kart, error) {
	return c.karts.List(ctx)
}

// Get returns one kart.
func (c *Catalog) Get(ctx context.Context, id uint64) (model.Kart, error) {
	k, err := c.karts.GetByID(ctx, id)
	if err != nil {
		return k, fromStore(err, fmt.Sprintf("kart %d", id))
	}
	return k, nil
}

// Add registers a new kart and returns it with its id.
func (c *Catalog) Add(ctx context.Context, actor Identity, k model.Kart) (model.Kart, error) {
	if !actor.IsAdmin() {
		return model.Kart{}, fmt.Errorf("%w: only administrators can add karts", ErrForbidden)
	}
	k.Type = strings.TrimSpace(k.Type)
	switch {
	case k.Type == "":
		return model.Kart{}, fmt.Errorf("%w: type is required", ErrValidation)
	case len(k.Type) > maxKartTypeLen:
		return model.Kart{}, fmt.Errorf("%w: type longer than %d characters", ErrValidation, maxKartTypeLen)
	case !validCoord(k.Latitude, 90) || !validCoord(k.Longitude, 180):
		return model.Kart{}, fmt.Errorf("%w: coordinates out of range", ErrValidation)
	}
	k.ID = 0
	if err := c.karts.Create(ctx, &k); err != nil {
		return model.Kart{}, err
	}
	c.rec.ObserveOperation("kart_add", "ok")
	return k, nil
}

// Remove deletes a kart.  Karts that still have reservations are refused
// with ErrConflict; reservations are never dropped implicitly.
func (c *Catalog) Remove(ctx context.Context, actor Identity, id uint64) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("%w: only administrators can remove karts", ErrForbidden)
	}
	err := c.karts.Delete(ctx, id)
	if errors.Is(err, repository.ErrConflict) {
		c.rec.ObserveOperation("kart_remove", "conflict")
		return fmt.Errorf("%w: kart %d has reservations", ErrConflict, id)
	}
	if err != nil {
		return fromStore(err, fmt.Sprintf("kart %d", id))
	}
	c.rec.ObserveOperation("kart_remove", "ok")
	return nil
}

func validCoord(v, limit float64) bool {
	return !math.IsNaN(v) && v >= -limit && v <= limit
}
