package queue

import (
	"context"

	"roommate/server/internal/auth"
	"roommate/server/internal/database"
	"roommate/server/internal/models"
)

// QueueView is what a landlord sees of a listing's queue
type QueueView struct {
	ListingID uint                 `json:"listing_id"`
	Status    models.ListingStatus `json:"status"`
	MaxActive int                  `json:"max_active"`
	Active    []models.Interest    `json:"active"`
	Waiting   []models.Interest    `json:"waiting"`
}

// Queue returns ACTIVE interests by position and WAITING interests in the
// order they would be promoted.
func (c *Controller) Queue(ctx context.Context, actor auth.Actor, listingID uint) (*QueueView, error) {
	db := c.db.WithContext(ctx)
	listing, err := database.FindListing(db, listingID)
	if err != nil {
		return nil, err
	}
	if err := actor.RequireLandlordOf(listing); err != nil {
		return nil, err
	}

	active, err := database.ActiveInterests(db, listing.ID)
	if err != nil {
		return nil, err
	}
	waiting, err := database.WaitingInPromotionOrder(db, listing.ID)
	if err != nil {
		return nil, err
	}

	return &QueueView{
		ListingID: listing.ID,
		Status:    listing.Status,
		MaxActive: c.maxActive,
		Active:    active,
		Waiting:   waiting,
	}, nil
}
