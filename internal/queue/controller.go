// Package queue is the admission controller for listing interests. It is
// the only code that changes an interest's status or position, and the
// only code that flips a listing between ACTIVE and QUEUE_FULL.
package queue

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"roommate/server/config"
	"roommate/server/internal/auth"
	"roommate/server/internal/clock"
	"roommate/server/internal/database"
	"roommate/server/internal/models"
	"roommate/server/internal/notify"
	"roommate/server/internal/scoring"
)

type Controller struct {
	db        *gorm.DB
	listings  *Serializer
	clock     clock.Clock
	logger    *logrus.Logger
	maxActive int
}

func NewController(db *gorm.DB, listings *Serializer, clk clock.Clock, cfg *config.Config, logger *logrus.Logger) *Controller {
	return &Controller{
		db:        db,
		listings:  listings,
		clock:     clk,
		logger:    logger,
		maxActive: cfg.Queue.MaxActiveInterests,
	}
}

// ExpressInterest places the actor on the listing's queue, either in a free
// ACTIVE slot or on the waitlist. With a groupID the interest is held on
// behalf of the actor's housemate group and scored on all its members.
func (c *Controller) ExpressInterest(ctx context.Context, actor auth.Actor, listingID uint, groupID *uint) (*models.Interest, error) {
	if err := actor.RequireTenant(); err != nil {
		return nil, err
	}

	var created *models.Interest
	err := c.listings.Run(ctx, listingID, func(tx *gorm.DB, listing *models.Listing, out *notify.Outbox) error {
		if !listing.Status.AcceptsInterest() {
			return fmt.Errorf("%w: listing %d is %s", ErrListingClosed, listing.ID, listing.Status)
		}

		now := c.clock.Now()
		profiles, err := c.applicantProfiles(tx, actor.ID, groupID)
		if err != nil {
			return err
		}

		existing, err := database.FindOpenInterest(tx, listing.ID, actor.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: interest %d is %s", ErrDuplicateInterest, existing.ID, existing.Status)
		}
		if groupID != nil {
			held, err := database.FindOpenGroupInterest(tx, listing.ID, *groupID)
			if err != nil {
				return err
			}
			if held != nil {
				return fmt.Errorf("%w: group %d already holds interest %d", ErrDuplicateInterest, *groupID, held.ID)
			}
		}

		positions, err := database.ActivePositions(tx, listing.ID)
		if err != nil {
			return err
		}

		interest := &models.Interest{
			ListingID: listing.ID,
			TenantID:  actor.ID,
			GroupID:   groupID,
			Score:     scoring.ScoreGroup(profiles, scoring.ForListing(listing)),
			CreatedAt: now,
		}
		if len(positions) < c.maxActive {
			pos := lowestFreePosition(positions)
			interest.Status = models.InterestStatusActive
			interest.Position = &pos
		} else {
			interest.Status = models.InterestStatusWaiting
		}

		if err := tx.Create(interest).Error; err != nil {
			if database.IsUniqueViolation(err) {
				if interest.Status == models.InterestStatusActive {
					return fmt.Errorf("%w: listing %d", ErrAdmissionRace, listing.ID)
				}
				return fmt.Errorf("%w: listing %d", ErrDuplicateInterest, listing.ID)
			}
			return fmt.Errorf("failed to create interest: %w", err)
		}

		if err := c.syncListingStatus(tx, listing, out); err != nil {
			return err
		}

		out.Add(notify.Event{
			Type:        notify.EventInterestCreated,
			RecipientID: listing.LandlordID,
			ListingID:   listing.ID,
			InterestID:  interest.ID,
			Message:     fmt.Sprintf("New %s interest on %q (match %d%%)", interest.Status, listing.Title, interest.Score),
			OccurredAt:  now,
		})
		created = interest
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"listing_id":  listingID,
		"interest_id": created.ID,
		"status":      created.Status,
		"score":       created.Score,
	}).Info("Interest created")
	return created, nil
}

// applicantProfiles returns the profiles to score and rejects blocked
// applicants. For a group every member must be unblocked.
func (c *Controller) applicantProfiles(tx *gorm.DB, tenantID uint, groupID *uint) ([]models.Profile, error) {
	now := c.clock.Now()

	tenant, err := database.FindUser(tx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant.Role != models.RoleTenant {
		return nil, auth.ErrNotTenant
	}
	if tenant.IsBlockedAt(now) {
		return nil, fmt.Errorf("%w until %s", ErrTenantBlocked, tenant.BlockedUntil.Format("2006-01-02"))
	}
	if groupID == nil {
		return []models.Profile{tenant.Profile}, nil
	}

	group, err := database.FindGroup(tx, *groupID)
	if err != nil {
		return nil, err
	}
	if group.DissolvedAt != nil {
		return nil, fmt.Errorf("%w: group %d", ErrGroupDissolved, group.ID)
	}
	if !group.HasMember(tenantID) {
		return nil, fmt.Errorf("%w: group %d", ErrNotGroupMember, group.ID)
	}

	ids := make([]uint, 0, len(group.Members))
	for _, m := range group.Members {
		ids = append(ids, m.TenantID)
	}
	members, err := database.FindUsers(tx, ids)
	if err != nil {
		return nil, err
	}

	profiles := make([]models.Profile, 0, len(members))
	for _, m := range members {
		if m.IsBlockedAt(now) {
			return nil, fmt.Errorf("%w: group member %d", ErrTenantBlocked, m.ID)
		}
		profiles = append(profiles, m.Profile)
	}
	return profiles, nil
}

// WithdrawInterest lets a tenant leave a listing's queue. Leaving an ACTIVE
// slot promotes the next waiting candidate.
func (c *Controller) WithdrawInterest(ctx context.Context, actor auth.Actor, listingID uint) (*models.Interest, error) {
	if err := actor.RequireTenant(); err != nil {
		return nil, err
	}

	var withdrawn *models.Interest
	err := c.listings.Run(ctx, listingID, func(tx *gorm.DB, listing *models.Listing, out *notify.Outbox) error {
		interest, err := database.FindOpenInterest(tx, listing.ID, actor.ID)
		if err != nil {
			return err
		}
		if interest == nil {
			return fmt.Errorf("%w: no open interest on listing %d", database.ErrInterestNotFound, listing.ID)
		}

		if err := c.vacate(tx, listing, interest, models.InterestStatusWithdrawn, nil, out); err != nil {
			return err
		}
		out.Add(notify.Event{
			Type:        notify.EventInterestWithdrawn,
			RecipientID: listing.LandlordID,
			ListingID:   listing.ID,
			InterestID:  interest.ID,
			Message:     fmt.Sprintf("A tenant withdrew from %q", listing.Title),
			OccurredAt:  c.clock.Now(),
		})
		withdrawn = interest
		return nil
	})
	if err != nil {
		return nil, err
	}
	return withdrawn, nil
}

// RemoveInterest is the landlord taking a tenant out of an ACTIVE slot.
// Waiting entries cannot be removed, only withdrawn by their tenant.
func (c *Controller) RemoveInterest(ctx context.Context, actor auth.Actor, listingID, tenantID uint) (*models.Interest, error) {
	var removed *models.Interest
	err := c.listings.Run(ctx, listingID, func(tx *gorm.DB, listing *models.Listing, out *notify.Outbox) error {
		if err := actor.RequireLandlordOf(listing); err != nil {
			return err
		}

		interest, err := database.FindOpenInterest(tx, listing.ID, tenantID)
		if err != nil {
			return err
		}
		if interest == nil || interest.Status != models.InterestStatusActive {
			return fmt.Errorf("%w: tenant %d on listing %d", ErrNotInActiveQueue, tenantID, listing.ID)
		}

		if err := c.vacate(tx, listing, interest, models.InterestStatusRemoved, nil, out); err != nil {
			return err
		}
		out.Add(notify.Event{
			Type:        notify.EventInterestRemoved,
			RecipientID: interest.TenantID,
			ListingID:   listing.ID,
			InterestID:  interest.ID,
			Message:     fmt.Sprintf("The landlord of %q removed you from the queue", listing.Title),
			OccurredAt:  c.clock.Now(),
		})
		removed = interest
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"listing_id":  listingID,
		"interest_id": removed.ID,
	}).Info("Interest removed by landlord")
	return removed, nil
}

func lowestFreePosition(taken []int) int {
	pos := 1
	for _, p := range taken {
		if p == pos {
			pos++
		} else if p > pos {
			break
		}
	}
	return pos
}
