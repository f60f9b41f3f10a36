// Package visits decides who may book a viewing and manages the slots and
// bookings themselves.
package visits

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"roommate/server/config"
	"roommate/server/internal/apperr"
	"roommate/server/internal/auth"
	"roommate/server/internal/clock"
	"roommate/server/internal/database"
	"roommate/server/internal/models"
	"roommate/server/internal/notify"
	"roommate/server/internal/queue"
)

var (
	ErrInvalidSchedule   = apperr.New(apperr.Validation, "invalid visit schedule")
	ErrInvalidSlotType   = apperr.New(apperr.Validation, "slot type must be SINGLE or VIRTUAL")
	ErrInvalidCapacity   = apperr.New(apperr.Validation, "max guests must be at least 1")
	ErrInterestNotActive = apperr.New(apperr.InvalidState, "visits require an active interest")
	ErrNotApproved       = apperr.New(apperr.InvalidState, "the landlord has not approved visit scheduling")
	ErrSlotFull          = apperr.New(apperr.Conflict, "visit slot is fully booked")
	ErrAlreadyBooked     = apperr.New(apperr.Conflict, "tenant already holds a booking for this slot")
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

type Gate struct {
	db           *gorm.DB
	listings     *queue.Serializer
	clock        clock.Clock
	logger       *logrus.Logger
	openDaySeats int
}

func NewGate(db *gorm.DB, listings *queue.Serializer, clk clock.Clock, cfg *config.Config, logger *logrus.Logger) *Gate {
	return &Gate{
		db:           db,
		listings:     listings,
		clock:        clk,
		logger:       logger,
		openDaySeats: cfg.Queue.MaxActiveInterests,
	}
}

// ApproveScheduling lets the tenant behind an ACTIVE interest book visits.
// Approving twice is a no-op.
func (g *Gate) ApproveScheduling(ctx context.Context, actor auth.Actor, interestID uint) (*models.Interest, error) {
	interest, err := database.FindInterest(g.db.WithContext(ctx), interestID)
	if err != nil {
		return nil, err
	}

	err = g.listings.Run(ctx, interest.ListingID, func(tx *gorm.DB, listing *models.Listing, out *notify.Outbox) error {
		if err := actor.RequireLandlordOf(listing); err != nil {
			return err
		}
		current, err := database.FindInterest(tx, interestID)
		if err != nil {
			return err
		}
		interest = current
		if interest.Status != models.InterestStatusActive {
			return fmt.Errorf("%w: interest %d is %s", ErrInterestNotActive, interest.ID, interest.Status)
		}
		if interest.SchedulingApproved {
			return nil
		}

		if err := tx.Model(interest).Update("scheduling_approved", true).Error; err != nil {
			return fmt.Errorf("failed to approve scheduling for interest %d: %w", interest.ID, err)
		}
		interest.SchedulingApproved = true
		out.Add(notify.Event{
			Type:        notify.EventSchedulingApproved,
			RecipientID: interest.TenantID,
			ListingID:   listing.ID,
			InterestID:  interest.ID,
			Message:     fmt.Sprintf("You can now book a visit for %q", listing.Title),
			OccurredAt:  g.clock.Now(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return interest, nil
}

// CreateOpenDay creates one OPENDAY slot sized for the whole active queue
// and approves scheduling for every ACTIVE interest in the same
// transaction.
func (g *Gate) CreateOpenDay(ctx context.Context, actor auth.Actor, listingID uint, date, start, end string) (*models.VisitSlot, error) {
	if err := validateSchedule(date, start, end); err != nil {
		return nil, err
	}

	var slot *models.VisitSlot
	var approved int
	err := g.listings.Run(ctx, listingID, func(tx *gorm.DB, listing *models.Listing, out *notify.Outbox) error {
		if err := actor.RequireLandlordOf(listing); err != nil {
			return err
		}

		slot = &models.VisitSlot{
			ListingID: listing.ID,
			Type:      models.SlotTypeOpenDay,
			Date:      date,
			StartTime: start,
			EndTime:   end,
			MaxGuests: g.openDaySeats,
		}
		if err := tx.Create(slot).Error; err != nil {
			return fmt.Errorf("failed to create open day: %w", err)
		}

		active, err := database.ActiveInterests(tx, listing.ID)
		if err != nil {
			return err
		}
		if len(active) > 0 {
			ids := make([]uint, len(active))
			for i, interest := range active {
				ids[i] = interest.ID
			}
			res := tx.Model(&models.Interest{}).
				Where("id IN ? AND status = ?", ids, models.InterestStatusActive).
				Update("scheduling_approved", true)
			if res.Error != nil {
				return fmt.Errorf("failed to approve active interests: %w", res.Error)
			}
			approved = int(res.RowsAffected)
		}

		now := g.clock.Now()
		for _, interest := range active {
			out.Add(notify.Event{
				Type:        notify.EventOpenDayCreated,
				RecipientID: interest.TenantID,
				ListingID:   listing.ID,
				InterestID:  interest.ID,
				Message:     fmt.Sprintf("Open day for %q on %s, %s-%s", listing.Title, date, start, end),
				OccurredAt:  now,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	g.logger.WithFields(logrus.Fields{
		"listing_id": listingID,
		"slot_id":    slot.ID,
		"approved":   approved,
	}).Info("Open day created")
	return slot, nil
}

// CreateSlot adds a SINGLE or VIRTUAL viewing slot
func (g *Gate) CreateSlot(ctx context.Context, actor auth.Actor, listingID uint, slotType models.SlotType, date, start, end string, maxGuests int) (*models.VisitSlot, error) {
	if slotType != models.SlotTypeSingle && slotType != models.SlotTypeVirtual {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidSlotType, slotType)
	}
	if maxGuests < 1 {
		return nil, ErrInvalidCapacity
	}
	if err := validateSchedule(date, start, end); err != nil {
		return nil, err
	}

	var slot *models.VisitSlot
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		listing, err := database.FindListing(tx, listingID)
		if err != nil {
			return err
		}
		if err := actor.RequireLandlordOf(listing); err != nil {
			return err
		}
		slot = &models.VisitSlot{
			ListingID: listing.ID,
			Type:      slotType,
			Date:      date,
			StartTime: start,
			EndTime:   end,
			MaxGuests: maxGuests,
		}
		if err := tx.Create(slot).Error; err != nil {
			return fmt.Errorf("failed to create visit slot: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return slot, nil
}

// validateSchedule checks a YYYY-MM-DD date and an HH:MM window that ends
// after it starts
func validateSchedule(date, start, end string) error {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return fmt.Errorf("%w: date %q is not YYYY-MM-DD", ErrInvalidSchedule, date)
	}
	from, err := time.Parse(timeLayout, start)
	if err != nil {
		return fmt.Errorf("%w: start time %q is not HH:MM", ErrInvalidSchedule, start)
	}
	to, err := time.Parse(timeLayout, end)
	if err != nil {
		return fmt.Errorf("%w: end time %q is not HH:MM", ErrInvalidSchedule, end)
	}
	if !to.After(from) {
		return fmt.Errorf("%w: %s-%s ends before it starts", ErrInvalidSchedule, start, end)
	}
	return nil
}
