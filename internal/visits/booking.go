package visits

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

// BookVisit reserves a seat on a slot for a tenant whose interest in the
// listing is ACTIVE and approved for scheduling. Open day seats are
// confirmed immediately, other bookings wait for the landlord.
func (g *Gate) BookVisit(ctx context.Context, actor auth.Actor, slotID uint) (*models.Booking, error) {
	if err := actor.RequireTenant(); err != nil {
		return nil, err
	}
	slot, err := database.FindSlot(g.db.WithContext(ctx), slotID)
	if err != nil {
		return nil, err
	}

	var booking *models.Booking
	err = g.listings.Run(ctx, slot.ListingID, func(tx *gorm.DB, listing *models.Listing, out *notify.Outbox) error {
		interest, err := database.FindOpenInterest(tx, listing.ID, actor.ID)
		if err != nil {
			return err
		}
		if interest == nil || interest.Status != models.InterestStatusActive {
			return fmt.Errorf("%w: listing %d", ErrInterestNotActive, listing.ID)
		}
		if !interest.SchedulingApproved {
			return fmt.Errorf("%w: interest %d", ErrNotApproved, interest.ID)
		}

		var held []models.Booking
		err = tx.Where("slot_id = ? AND status IN ?", slot.ID, []models.BookingStatus{
			models.BookingStatusPending, models.BookingStatusConfirmed,
		}).Find(&held).Error
		if err != nil {
			return fmt.Errorf("failed to load bookings for slot %d: %w", slot.ID, err)
		}
		for _, b := range held {
			if b.TenantID == actor.ID {
				return fmt.Errorf("%w: booking %d", ErrAlreadyBooked, b.ID)
			}
		}
		if len(held) >= slot.MaxGuests {
			return fmt.Errorf("%w: %d of %d seats taken", ErrSlotFull, len(held), slot.MaxGuests)
		}

		booking = &models.Booking{SlotID: slot.ID, TenantID: actor.ID, Status: models.BookingStatusPending}
		if slot.Type == models.SlotTypeOpenDay {
			booking.Status = models.BookingStatusConfirmed
		}
		if err := tx.Create(booking).Error; err != nil {
			if database.IsUniqueViolation(err) {
				return fmt.Errorf("%w: slot %d", ErrAlreadyBooked, slot.ID)
			}
			return fmt.Errorf("failed to create booking: %w", err)
		}

		out.Add(notify.Event{
			Type:        notify.EventVisitBooked,
			RecipientID: listing.LandlordID,
			ListingID:   listing.ID,
			InterestID:  interest.ID,
			Message:     fmt.Sprintf("Visit booked for %q on %s at %s", listing.Title, slot.Date, slot.StartTime),
			OccurredAt:  g.clock.Now(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	g.logger.WithFields(logrus.Fields{
		"slot_id":    slot.ID,
		"booking_id": booking.ID,
		"status":     booking.Status,
	}).Info("Visit booked")
	return booking, nil
}

// ConfirmBooking is the landlord accepting a pending booking
func (g *Gate) ConfirmBooking(ctx context.Context, actor auth.Actor, bookingID uint) (*models.Booking, error) {
	return g.moveBooking(ctx, bookingID, func(booking *models.Booking, listing *models.Listing) (*notify.Event, error) {
		if err := actor.RequireLandlordOf(listing); err != nil {
			return nil, err
		}
		if err := booking.TransitionTo(models.BookingStatusConfirmed); err != nil {
			return nil, err
		}
		return &notify.Event{
			Type:        notify.EventBookingConfirmed,
			RecipientID: booking.TenantID,
			ListingID:   listing.ID,
			Message:     fmt.Sprintf("Your visit to %q is confirmed", listing.Title),
		}, nil
	})
}

// CancelBooking frees the seat. Either the tenant or the landlord may
// cancel, and the other side is told.
func (g *Gate) CancelBooking(ctx context.Context, actor auth.Actor, bookingID uint) (*models.Booking, error) {
	return g.moveBooking(ctx, bookingID, func(booking *models.Booking, listing *models.Listing) (*notify.Event, error) {
		recipient := listing.LandlordID
		if actor.RequireUser(booking.TenantID) != nil {
			if err := actor.RequireLandlordOf(listing); err != nil {
				return nil, err
			}
			recipient = booking.TenantID
		}
		if err := booking.TransitionTo(models.BookingStatusCancelled); err != nil {
			return nil, err
		}
		return &notify.Event{
			Type:        notify.EventBookingCancelled,
			RecipientID: recipient,
			ListingID:   listing.ID,
			Message:     fmt.Sprintf("A visit to %q was cancelled", listing.Title),
		}, nil
	})
}

// moveBooking loads a booking with its listing under the listing lock,
// applies change and saves the result
func (g *Gate) moveBooking(ctx context.Context, bookingID uint, change func(*models.Booking, *models.Listing) (*notify.Event, error)) (*models.Booking, error) {
	db := g.db.WithContext(ctx)
	booking, err := database.FindBooking(db, bookingID)
	if err != nil {
		return nil, err
	}
	slot, err := database.FindSlot(db, booking.SlotID)
	if err != nil {
		return nil, err
	}

	err = g.listings.Run(ctx, slot.ListingID, func(tx *gorm.DB, listing *models.Listing, out *notify.Outbox) error {
		current, err := database.FindBooking(tx, bookingID)
		if err != nil {
			return err
		}
		booking = current
		event, err := change(booking, listing)
		if err != nil {
			return err
		}
		if err := tx.Save(booking).Error; err != nil {
			return fmt.Errorf("failed to save booking %d: %w", booking.ID, err)
		}
		event.OccurredAt = g.clock.Now()
		out.Add(*event)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}
