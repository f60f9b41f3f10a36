package attendance

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"roommate/server/config"
	"roommate/server/internal/apperr"
	"roommate/server/internal/auth"
	"roommate/server/internal/clock"
	"roommate/server/internal/database"
	"roommate/server/internal/models"
	"roommate/server/internal/notify"
	"roommate/server/internal/queue"
	"roommate/server/internal/testutil"
)

type fixture struct {
	db         *gorm.DB
	clock      *clock.FakeClock
	events     *testutil.Recorder
	serializer *queue.Serializer
	tracker    *Tracker
	landlord   auth.Actor
	listing    *models.Listing
	slot       *models.VisitSlot
	tenants    []*models.User
	bookings   []*models.Booking
}

// newFixture prepares an open day with three CONFIRMED bookings
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	clk := testutil.NewClock()
	events := &testutil.Recorder{}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	landlord := testutil.CreateLandlord(t, db)
	listing := testutil.CreateListing(t, db, landlord.ID)
	slot := &models.VisitSlot{ListingID: listing.ID, Type: models.SlotTypeOpenDay, Date: "2026-03-01", StartTime: "15:00", EndTime: "18:00", MaxGuests: 3}
	require.NoError(t, db.Create(slot).Error)

	serializer := queue.NewSerializer(db, queue.NewListingLocks(), events)
	f := &fixture{
		db:         db,
		clock:      clk,
		events:     events,
		serializer: serializer,
		tracker:    NewTracker(db, serializer, clk, config.DefaultConfig(), logger),
		landlord:   auth.Landlord(landlord.ID),
		listing:    listing,
		slot:       slot,
		tenants:    testutil.CreateTenants(t, db, 3),
	}
	for _, tenant := range f.tenants {
		booking := &models.Booking{SlotID: slot.ID, TenantID: tenant.ID, Status: models.BookingStatusConfirmed}
		require.NoError(t, db.Create(booking).Error)
		f.bookings = append(f.bookings, booking)
	}
	return f
}

func TestReportAttendance_NoShowScenario(t *testing.T) {
	f := newFixture(t)
	// the third tenant already missed two visits
	require.NoError(t, f.db.Model(f.tenants[2]).Update("no_show_count", 2).Error)

	report, err := f.tracker.ReportAttendance(context.Background(), f.landlord, f.slot.ID, []uint{f.tenants[0].ID})
	require.NoError(t, err)
	assert.Equal(t, []uint{f.tenants[0].ID}, report.Completed)
	assert.Equal(t, []uint{f.tenants[1].ID, f.tenants[2].ID}, report.NoShows)
	assert.Equal(t, []uint{f.tenants[2].ID}, report.NewlyBlocked)
	assert.Empty(t, report.Unmatched)

	assert.Equal(t, models.BookingStatusCompleted, testutil.Reload[models.Booking](t, f.db, f.bookings[0].ID).Status)
	assert.Equal(t, models.BookingStatusNoShow, testutil.Reload[models.Booking](t, f.db, f.bookings[1].ID).Status)
	assert.Equal(t, models.BookingStatusNoShow, testutil.Reload[models.Booking](t, f.db, f.bookings[2].ID).Status)

	attendee := testutil.Reload[models.User](t, f.db, f.tenants[0].ID)
	assert.Equal(t, 0, attendee.NoShowCount)

	first := testutil.Reload[models.User](t, f.db, f.tenants[1].ID)
	assert.Equal(t, 1, first.NoShowCount)
	assert.Nil(t, first.BlockedUntil)

	repeat := testutil.Reload[models.User](t, f.db, f.tenants[2].ID)
	assert.Equal(t, 3, repeat.NoShowCount)
	require.NotNil(t, repeat.BlockedUntil)
	assert.WithinDuration(t, testutil.Epoch.Add(90*24*time.Hour), *repeat.BlockedUntil, 3*24*time.Hour)

	blocked := f.events.OfType(notify.EventTenantBlocked)
	require.Len(t, blocked, 1)
	assert.Equal(t, f.tenants[2].ID, blocked[0].RecipientID)
	assert.Len(t, f.events.OfType(notify.EventAttendanceRecorded), 3)
}

func TestReportAttendance_BlockedTenantCannotQueue(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Model(f.tenants[1]).Update("no_show_count", 2).Error)

	_, err := f.tracker.ReportAttendance(context.Background(), f.landlord, f.slot.ID, nil)
	require.NoError(t, err)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	ctrl := queue.NewController(f.db, f.serializer, f.clock, config.DefaultConfig(), logger)
	other := testutil.CreateListing(t, f.db, f.landlord.ID)

	_, err = ctrl.ExpressInterest(context.Background(), auth.Tenant(f.tenants[1].ID), other.ID, nil)
	assert.ErrorIs(t, err, queue.ErrTenantBlocked)
	assert.Equal(t, apperr.Blocked, apperr.KindOf(err))

	// one missed visit is not enough
	_, err = ctrl.ExpressInterest(context.Background(), auth.Tenant(f.tenants[0].ID), other.ID, nil)
	assert.NoError(t, err)
}

func TestReportAttendance_BlockIsNotExtended(t *testing.T) {
	f := newFixture(t)
	expired := testutil.Epoch.AddDate(0, -1, 0)
	require.NoError(t, f.db.Model(f.tenants[0]).Updates(map[string]interface{}{
		"no_show_count": 5,
		"blocked_until": expired,
	}).Error)

	report, err := f.tracker.ReportAttendance(context.Background(), f.landlord, f.slot.ID, []uint{f.tenants[1].ID, f.tenants[2].ID})
	require.NoError(t, err)
	assert.Equal(t, []uint{f.tenants[0].ID}, report.NoShows)
	assert.Empty(t, report.NewlyBlocked)

	tenant := testutil.Reload[models.User](t, f.db, f.tenants[0].ID)
	assert.Equal(t, 6, tenant.NoShowCount)
	assert.WithinDuration(t, expired, *tenant.BlockedUntil, time.Second)
}

func TestReportAttendance_OnlyConfirmedBookings(t *testing.T) {
	f := newFixture(t)
	extra := testutil.CreateTenants(t, f.db, 1)[0]
	pending := &models.Booking{SlotID: f.slot.ID, TenantID: extra.ID, Status: models.BookingStatusPending}
	require.NoError(t, f.db.Create(pending).Error)

	all := []uint{f.tenants[0].ID, f.tenants[1].ID, f.tenants[2].ID, 4242}
	report, err := f.tracker.ReportAttendance(context.Background(), f.landlord, f.slot.ID, all)
	require.NoError(t, err)
	assert.Len(t, report.Completed, 3)
	assert.Equal(t, []uint{4242}, report.Unmatched)
	assert.Equal(t, models.BookingStatusPending, testutil.Reload[models.Booking](t, f.db, pending.ID).Status)

	// a second report finds nothing left to settle
	again, err := f.tracker.ReportAttendance(context.Background(), f.landlord, f.slot.ID, nil)
	require.NoError(t, err)
	assert.Empty(t, again.NoShows)
}

func TestReportAttendance_RollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	// a booking whose tenant no longer exists fails the no-show update
	orphan := &models.Booking{SlotID: f.slot.ID, TenantID: 9999, Status: models.BookingStatusConfirmed}
	require.NoError(t, f.db.Create(orphan).Error)

	_, err := f.tracker.ReportAttendance(context.Background(), f.landlord, f.slot.ID, nil)
	assert.ErrorIs(t, err, database.ErrUserNotFound)

	for _, b := range f.bookings {
		assert.Equal(t, models.BookingStatusConfirmed, testutil.Reload[models.Booking](t, f.db, b.ID).Status)
	}
	for _, tenant := range f.tenants {
		assert.Equal(t, 0, testutil.Reload[models.User](t, f.db, tenant.ID).NoShowCount)
	}
	assert.Empty(t, f.events.Events())
}

func TestReportAttendance_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.tracker.ReportAttendance(ctx, auth.Tenant(f.tenants[0].ID), f.slot.ID, nil)
	assert.Equal(t, apperr.Unauthorized, apperr.KindOf(err))

	_, err = f.tracker.ReportAttendance(ctx, f.landlord, 999, nil)
	assert.ErrorIs(t, err, database.ErrSlotNotFound)
}
