package booking

import "github.com/iliyamo/kart-rental/internal/model"

// Identity is the verified caller handed over by the authentication layer.
type Identity struct {
	UserID uint64
	Role   string
}

// IsAdmin reports whether the caller may manage balances and the catalog.
func (i Identity) IsAdmin() bool { return i.Role == model.RoleAdmin }
