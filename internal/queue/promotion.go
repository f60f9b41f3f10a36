package queue

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"roommate/server/internal/auth"
	"roommate/server/internal/database"
	"roommate/server/internal/models"
	"roommate/server/internal/notify"
)

// vacate moves an open interest to a terminal status. When it held an
// ACTIVE slot the slot goes to the next waiting candidate, skipping
// entries of excludeGroup.
func (c *Controller) vacate(tx *gorm.DB, listing *models.Listing, interest *models.Interest, to models.InterestStatus, excludeGroup *uint, out *notify.Outbox) error {
	wasActive := interest.Status == models.InterestStatusActive
	if err := interest.TransitionTo(to); err != nil {
		return err
	}
	if err := tx.Save(interest).Error; err != nil {
		return fmt.Errorf("failed to save interest %d: %w", interest.ID, err)
	}

	if wasActive && interest.Position != nil {
		if err := c.promote(tx, listing, *interest.Position, excludeGroup, out); err != nil {
			return err
		}
	}
	return c.syncListingStatus(tx, listing, out)
}

// promote hands a vacated position to the best waiting interest, if any.
// Nothing is promoted while the listing is at or over its active limit,
// which happens when the limit was lowered under a live queue.
func (c *Controller) promote(tx *gorm.DB, listing *models.Listing, position int, excludeGroup *uint, out *notify.Outbox) error {
	active, err := database.CountActive(tx, listing.ID)
	if err != nil {
		return err
	}
	if active >= c.maxActive {
		c.logger.WithFields(logrus.Fields{
			"listing_id": listing.ID,
			"active":     active,
			"max_active": c.maxActive,
		}).Info("Active limit reached, position left empty")
		return nil
	}

	next, err := database.NextWaiting(tx, listing.ID, excludeGroup)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}

	if err := next.Promote(position); err != nil {
		return err
	}
	if err := tx.Save(next).Error; err != nil {
		return fmt.Errorf("failed to promote interest %d: %w", next.ID, err)
	}

	out.Add(notify.Event{
		Type:        notify.EventInterestPromoted,
		RecipientID: next.TenantID,
		ListingID:   listing.ID,
		InterestID:  next.ID,
		Message:     fmt.Sprintf("You moved up to the active queue for %q", listing.Title),
		OccurredAt:  c.clock.Now(),
	})
	c.logger.WithFields(logrus.Fields{
		"listing_id":  listing.ID,
		"interest_id": next.ID,
		"position":    position,
	}).Info("Promoted waiting interest")
	return nil
}

// syncListingStatus keeps ACTIVE/QUEUE_FULL in line with the active count.
// Listings in any other status are left alone.
func (c *Controller) syncListingStatus(tx *gorm.DB, listing *models.Listing, out *notify.Outbox) error {
	if !listing.Status.AcceptsInterest() {
		return nil
	}

	active, err := database.CountActive(tx, listing.ID)
	if err != nil {
		return err
	}
	want := models.ListingStatusActive
	if active >= c.maxActive {
		want = models.ListingStatusQueueFull
	}
	if listing.Status == want {
		return nil
	}

	if err := database.UpdateListingStatus(tx, listing, want); err != nil {
		return err
	}
	listing.Status = want
	out.Add(notify.Event{
		Type:        notify.EventListingStatusChanged,
		RecipientID: listing.LandlordID,
		ListingID:   listing.ID,
		Message:     fmt.Sprintf("%q is now %s", listing.Title, want),
		OccurredAt:  c.clock.Now(),
	})
	return nil
}

// DissolveGroup is the member-initiated form of DissolveGroupCascade
func (c *Controller) DissolveGroup(ctx context.Context, actor auth.Actor, groupID uint) ([]models.Interest, error) {
	if err := actor.RequireTenant(); err != nil {
		return nil, err
	}
	group, err := database.FindGroup(c.db.WithContext(ctx), groupID)
	if err != nil {
		return nil, err
	}
	if !group.HasMember(actor.ID) {
		return nil, fmt.Errorf("%w: group %d", ErrNotGroupMember, group.ID)
	}
	return c.DissolveGroupCascade(ctx, groupID)
}

// DissolveGroupCascade marks the group dissolved and withdraws each of its
// open interests in creation order. Every withdrawal runs in its own
// listing transaction and promotes from that listing's waitlist, never
// from the group's own entries. Calling it again resumes a partial run.
func (c *Controller) DissolveGroupCascade(ctx context.Context, groupID uint) ([]models.Interest, error) {
	db := c.db.WithContext(ctx)
	group, err := database.FindGroup(db, groupID)
	if err != nil {
		return nil, err
	}
	if group.DissolvedAt == nil {
		now := c.clock.Now()
		if err := db.Model(group).Update("dissolved_at", now).Error; err != nil {
			return nil, fmt.Errorf("failed to dissolve group %d: %w", groupID, err)
		}
	}

	var open []models.Interest
	err = db.Where("group_id = ? AND status IN ?", groupID, models.OpenInterestStatuses).
		Order("id").
		Find(&open).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load group interests: %w", err)
	}

	withdrawn := make([]models.Interest, 0, len(open))
	for _, candidate := range open {
		var done *models.Interest
		err := c.listings.Run(ctx, candidate.ListingID, func(tx *gorm.DB, listing *models.Listing, out *notify.Outbox) error {
			interest, err := database.FindInterest(tx, candidate.ID)
			if err != nil {
				return err
			}
			// the tenant may have withdrawn since we listed them
			if !interest.Status.IsOpen() {
				return nil
			}
			if err := c.vacate(tx, listing, interest, models.InterestStatusWithdrawn, &groupID, out); err != nil {
				return err
			}
			out.Add(notify.Event{
				Type:        notify.EventInterestWithdrawn,
				RecipientID: listing.LandlordID,
				ListingID:   listing.ID,
				InterestID:  interest.ID,
				Message:     fmt.Sprintf("A housemate group left the queue for %q", listing.Title),
				OccurredAt:  c.clock.Now(),
			})
			done = interest
			return nil
		})
		if err != nil {
			return withdrawn, fmt.Errorf("failed to withdraw interest %d: %w", candidate.ID, err)
		}
		if done != nil {
			withdrawn = append(withdrawn, *done)
		}
	}

	c.logger.WithFields(logrus.Fields{
		"group_id":  groupID,
		"withdrawn": len(withdrawn),
	}).Info("Group dissolved")
	return withdrawn, nil
}
