// Package auth carries the caller identity supplied by the session layer.
// The engine trusts it and only checks ownership.
package auth

import (
	"fmt"

	"roommate/server/internal/apperr"
	"roommate/server/internal/models"
)

var (
	ErrNotTenant   = apperr.New(apperr.Unauthorized, "action requires a tenant account")
	ErrNotLandlord = apperr.New(apperr.Unauthorized, "action requires the listing's landlord")
	ErrNotOwner    = apperr.New(apperr.Unauthorized, "action requires the owner of the record")
)

type Actor struct {
	ID   uint
	Role models.Role
}

func Tenant(id uint) Actor   { return Actor{ID: id, Role: models.RoleTenant} }
func Landlord(id uint) Actor { return Actor{ID: id, Role: models.RoleLandlord} }

func (a Actor) RequireTenant() error {
	if a.Role != models.RoleTenant {
		return ErrNotTenant
	}
	return nil
}

// RequireLandlordOf fails unless the actor is the landlord owning listing
func (a Actor) RequireLandlordOf(listing *models.Listing) error {
	if a.Role != models.RoleLandlord || a.ID != listing.LandlordID {
		return fmt.Errorf("%w: listing %d", ErrNotLandlord, listing.ID)
	}
	return nil
}

// RequireUser fails unless the actor is the given tenant
func (a Actor) RequireUser(userID uint) error {
	if a.Role != models.RoleTenant || a.ID != userID {
		return ErrNotOwner
	}
	return nil
}
