// Package attendance settles confirmed bookings after a visit and applies
// the no-show penalty.
package attendance

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

// ErrBookingChanged means a booking moved while the report was applied
var ErrBookingChanged = apperr.New(apperr.Conflict, "booking changed during attendance report")

// Report summarises one attendance call. NewlyBlocked holds tenants whose
// block started with this report; Unmatched holds attendee ids without a
// confirmed booking on the slot.
type Report struct {
	SlotID       uint   `json:"slot_id"`
	Completed    []uint `json:"completed"`
	NoShows      []uint `json:"no_shows"`
	NewlyBlocked []uint `json:"newly_blocked"`
	Unmatched    []uint `json:"unmatched"`
}

type Tracker struct {
	db          *gorm.DB
	listings    *queue.Serializer
	clock       clock.Clock
	logger      *logrus.Logger
	threshold   int
	blockMonths int
}

func NewTracker(db *gorm.DB, listings *queue.Serializer, clk clock.Clock, cfg *config.Config, logger *logrus.Logger) *Tracker {
	return &Tracker{
		db:          db,
		listings:    listings,
		clock:       clk,
		logger:      logger,
		threshold:   cfg.Attendance.NoShowThreshold,
		blockMonths: cfg.Attendance.BlockMonths,
	}
}

// ReportAttendance marks every CONFIRMED booking on the slot COMPLETED when
// its tenant is in attendeeIDs and NO_SHOW otherwise. A no-show bumps the
// tenant's counter; reaching the threshold starts a block, once. All of it
// commits or none of it does.
func (t *Tracker) ReportAttendance(ctx context.Context, actor auth.Actor, slotID uint, attendeeIDs []uint) (*Report, error) {
	slot, err := database.FindSlot(t.db.WithContext(ctx), slotID)
	if err != nil {
		return nil, err
	}

	attended := make(map[uint]bool, len(attendeeIDs))
	for _, id := range attendeeIDs {
		attended[id] = true
	}

	var report *Report
	err = t.listings.Run(ctx, slot.ListingID, func(tx *gorm.DB, listing *models.Listing, out *notify.Outbox) error {
		if err := actor.RequireLandlordOf(listing); err != nil {
			return err
		}

		var bookings []models.Booking
		err := tx.Where("slot_id = ? AND status = ?", slot.ID, models.BookingStatusConfirmed).
			Order("id").
			Find(&bookings).Error
		if err != nil {
			return fmt.Errorf("failed to load bookings for slot %d: %w", slot.ID, err)
		}

		now := t.clock.Now()
		report = &Report{SlotID: slot.ID, Completed: []uint{}, NoShows: []uint{}, NewlyBlocked: []uint{}, Unmatched: []uint{}}
		booked := make(map[uint]bool, len(bookings))

		for i := range bookings {
			booking := &bookings[i]
			booked[booking.TenantID] = true

			next := models.BookingStatusNoShow
			if attended[booking.TenantID] {
				next = models.BookingStatusCompleted
			}
			if err := t.settle(tx, booking, next); err != nil {
				return err
			}

			if next == models.BookingStatusCompleted {
				report.Completed = append(report.Completed, booking.TenantID)
				continue
			}
			report.NoShows = append(report.NoShows, booking.TenantID)

			blocked, err := t.penalise(tx, booking.TenantID, now)
			if err != nil {
				return err
			}
			if blocked != nil {
				report.NewlyBlocked = append(report.NewlyBlocked, booking.TenantID)
				out.Add(notify.Event{
					Type:        notify.EventTenantBlocked,
					RecipientID: booking.TenantID,
					Message:     fmt.Sprintf("Too many missed visits: you cannot join new queues until %s", blocked.Format("2006-01-02")),
					OccurredAt:  now,
				})
			}
		}

		for _, id := range attendeeIDs {
			if !booked[id] {
				report.Unmatched = append(report.Unmatched, id)
			}
		}

		for _, booking := range bookings {
			out.Add(notify.Event{
				Type:        notify.EventAttendanceRecorded,
				RecipientID: booking.TenantID,
				ListingID:   listing.ID,
				Message:     fmt.Sprintf("Your visit to %q on %s was recorded as %s", listing.Title, slot.Date, booking.Status),
				OccurredAt:  now,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	t.logger.WithFields(logrus.Fields{
		"slot_id":       slot.ID,
		"completed":     len(report.Completed),
		"no_shows":      len(report.NoShows),
		"newly_blocked": len(report.NewlyBlocked),
	}).Info("Attendance recorded")
	return report, nil
}

// settle moves a confirmed booking to its outcome. The update is guarded on
// the status it was read with.
func (t *Tracker) settle(tx *gorm.DB, booking *models.Booking, next models.BookingStatus) error {
	from := booking.Status
	if err := booking.TransitionTo(next); err != nil {
		return err
	}
	res := tx.Model(&models.Booking{}).
		Where("id = ? AND status = ?", booking.ID, from).
		Update("status", next)
	if res.Error != nil {
		return fmt.Errorf("failed to update booking %d: %w", booking.ID, res.Error)
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("%w: booking %d", ErrBookingChanged, booking.ID)
	}
	return nil
}

// penalise counts a no-show against the tenant and starts a block when the
// threshold is reached. A tenant is blocked at most once. Returns the end
// of a block started here, or nil.
func (t *Tracker) penalise(tx *gorm.DB, tenantID uint, now time.Time) (*time.Time, error) {
	res := tx.Model(&models.User{}).
		Where("id = ?", tenantID).
		Update("no_show_count", gorm.Expr("no_show_count + ?", 1))
	if res.Error != nil {
		return nil, fmt.Errorf("failed to count no-show for user %d: %w", tenantID, res.Error)
	}
	if res.RowsAffected != 1 {
		return nil, fmt.Errorf("%w: id %d", database.ErrUserNotFound, tenantID)
	}

	tenant, err := database.FindUser(tx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant.NoShowCount < t.threshold || tenant.BlockedUntil != nil {
		return nil, nil
	}

	until := now.AddDate(0, t.blockMonths, 0)
	res = tx.Model(&models.User{}).
		Where("id = ? AND blocked_until IS NULL", tenantID).
		Update("blocked_until", until)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to block user %d: %w", tenantID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}

	t.logger.WithFields(logrus.Fields{
		"user_id":       tenantID,
		"no_show_count": tenant.NoShowCount,
		"blocked_until": until,
	}).Warn("Tenant blocked for repeated no-shows")
	return &until, nil
}
