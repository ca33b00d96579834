package booking

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/iliyamo/kart-rental/internal/repository"
)

// Failure categories returned by the engine.  Callers match them with
// errors.Is; the wrapped message carries the detail.
var (
	ErrValidation        = errors.New("validation error")
	ErrInvalidInterval   = errors.New("invalid interval")
	ErrConflict          = errors.New("kart not available")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidState      = errors.New("invalid state")
	ErrInvalidValue      = errors.New("invalid value")
)

// ConflictError lists every kart that already has an overlapping
// reservation in the requested window.
type ConflictError struct {
	KartIDs []uint64
}

func (e *ConflictError) Error() string {
	ids := make([]string, len(e.KartIDs))
	for i, id := range e.KartIDs {
		ids[i] = strconv.FormatUint(id, 10)
	}
	return fmt.Sprintf("%s: karts [%s]", ErrConflict, strings.Join(ids, ","))
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

func newConflict(ids []uint64) *ConflictError {
	return &ConflictError{KartIDs: slices.Clone(ids)}
}

// fromStore translates persistence sentinels into the engine's taxonomy.
func fromStore(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %s", ErrConflict, what)
	}
	return err
}
