package visits

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"roommate/server/config"
	"roommate/server/internal/apperr"
	"roommate/server/internal/auth"
	"roommate/server/internal/database"
	"roommate/server/internal/models"
	"roommate/server/internal/notify"
	"roommate/server/internal/queue"
	"roommate/server/internal/testutil"
)

type fixture struct {
	db       *gorm.DB
	events   *testutil.Recorder
	gate     *Gate
	landlord auth.Actor
	listing  *models.Listing
	tenants  []*models.User
	active   []*models.Interest
}

// newFixture prepares a listing with three ACTIVE interests and one WAITING
func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	events := &testutil.Recorder{}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	landlord := testutil.CreateLandlord(t, db)
	listing := testutil.CreateListing(t, db, landlord.ID)
	tenants := testutil.CreateTenants(t, db, 4)

	f := &fixture{
		db:       db,
		events:   events,
		gate:     NewGate(db, queue.NewSerializer(db, queue.NewListingLocks(), events), testutil.NewClock(), config.DefaultConfig(), logger),
		landlord: auth.Landlord(landlord.ID),
		listing:  listing,
		tenants:  tenants,
	}
	for i, tenant := range tenants[:3] {
		f.active = append(f.active, testutil.CreateInterest(t, db, listing.ID, tenant.ID, models.InterestStatusActive, i+1))
	}
	testutil.CreateInterest(t, db, listing.ID, tenants[3].ID, models.InterestStatusWaiting, 0)
	return f
}

func (f *fixture) slot(t *testing.T, slotType models.SlotType, maxGuests int) *models.VisitSlot {
	t.Helper()
	slot, err := f.gate.CreateSlot(context.Background(), f.landlord, f.listing.ID, slotType, "2026-03-10", "10:00", "10:30", maxGuests)
	require.NoError(t, err)
	return slot
}

func (f *fixture) approve(t *testing.T, i int) {
	t.Helper()
	_, err := f.gate.ApproveScheduling(context.Background(), f.landlord, f.active[i].ID)
	require.NoError(t, err)
}

func TestApproveScheduling_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.gate.ApproveScheduling(ctx, f.landlord, f.active[0].ID)
	require.NoError(t, err)
	assert.True(t, first.SchedulingApproved)

	second, err := f.gate.ApproveScheduling(ctx, f.landlord, f.active[0].ID)
	require.NoError(t, err)
	assert.True(t, second.SchedulingApproved)

	assert.True(t, testutil.Reload[models.Interest](t, f.db, f.active[0].ID).SchedulingApproved)
	assert.Len(t, f.events.OfType(notify.EventSchedulingApproved), 1, "second approval sends nothing")
}

func TestApproveScheduling_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var waiting models.Interest
	require.NoError(t, f.db.Where("tenant_id = ?", f.tenants[3].ID).First(&waiting).Error)

	_, err := f.gate.ApproveScheduling(ctx, f.landlord, waiting.ID)
	assert.ErrorIs(t, err, ErrInterestNotActive)
	assert.Equal(t, apperr.InvalidState, apperr.KindOf(err))

	_, err = f.gate.ApproveScheduling(ctx, auth.Tenant(f.tenants[0].ID), f.active[0].ID)
	assert.Equal(t, apperr.Unauthorized, apperr.KindOf(err))

	_, err = f.gate.ApproveScheduling(ctx, f.landlord, 999)
	assert.ErrorIs(t, err, database.ErrInterestNotFound)
}

func TestCreateOpenDay_ApprovesActiveQueue(t *testing.T) {
	f := newFixture(t)

	slot, err := f.gate.CreateOpenDay(context.Background(), f.landlord, f.listing.ID, "2026-03-14", "15:00", "18:00")
	require.NoError(t, err)
	assert.Equal(t, models.SlotTypeOpenDay, slot.Type)
	assert.Equal(t, 3, slot.MaxGuests)

	for _, interest := range f.active {
		assert.True(t, testutil.Reload[models.Interest](t, f.db, interest.ID).SchedulingApproved)
	}
	var waiting models.Interest
	require.NoError(t, f.db.Where("tenant_id = ?", f.tenants[3].ID).First(&waiting).Error)
	assert.False(t, waiting.SchedulingApproved)

	var slots int64
	require.NoError(t, f.db.Model(&models.VisitSlot{}).Where("listing_id = ? AND type = ?", f.listing.ID, models.SlotTypeOpenDay).Count(&slots).Error)
	assert.Equal(t, int64(1), slots)
	assert.Len(t, f.events.OfType(notify.EventOpenDayCreated), 3)
}

func TestCreateOpenDay_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name             string
		date, start, end string
	}{
		{"missing date", "", "15:00", "18:00"},
		{"bad date", "14/03/2026", "15:00", "18:00"},
		{"missing start", "2026-03-14", "", "18:00"},
		{"bad end", "2026-03-14", "15:00", "6pm"},
		{"ends before start", "2026-03-14", "18:00", "15:00"},
		{"zero length", "2026-03-14", "15:00", "15:00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.gate.CreateOpenDay(ctx, f.landlord, f.listing.ID, tt.date, tt.start, tt.end)
			assert.ErrorIs(t, err, ErrInvalidSchedule)
			assert.Equal(t, apperr.Validation, apperr.KindOf(err))
		})
	}

	_, err := f.gate.CreateOpenDay(ctx, auth.Landlord(f.landlord.ID+100), f.listing.ID, "2026-03-14", "15:00", "18:00")
	assert.Equal(t, apperr.Unauthorized, apperr.KindOf(err))

	assert.False(t, testutil.Reload[models.Interest](t, f.db, f.active[0].ID).SchedulingApproved)
}

func TestCreateSlot_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.gate.CreateSlot(ctx, f.landlord, f.listing.ID, models.SlotTypeOpenDay, "2026-03-10", "10:00", "11:00", 3)
	assert.ErrorIs(t, err, ErrInvalidSlotType)

	_, err = f.gate.CreateSlot(ctx, f.landlord, f.listing.ID, models.SlotTypeVirtual, "2026-03-10", "10:00", "11:00", 0)
	assert.ErrorIs(t, err, ErrInvalidCapacity)

	_, err = f.gate.CreateSlot(ctx, f.landlord, 999, models.SlotTypeSingle, "2026-03-10", "10:00", "11:00", 1)
	assert.ErrorIs(t, err, database.ErrListingNotFound)
}

func TestBookVisit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slot := f.slot(t, models.SlotTypeSingle, 1)

	_, err := f.gate.BookVisit(ctx, auth.Tenant(f.tenants[0].ID), slot.ID)
	assert.ErrorIs(t, err, ErrNotApproved)

	_, err = f.gate.BookVisit(ctx, auth.Tenant(f.tenants[3].ID), slot.ID)
	assert.ErrorIs(t, err, ErrInterestNotActive, "waiting tenants cannot book")

	f.approve(t, 0)
	f.approve(t, 1)

	booking, err := f.gate.BookVisit(ctx, auth.Tenant(f.tenants[0].ID), slot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusPending, booking.Status)

	_, err = f.gate.BookVisit(ctx, auth.Tenant(f.tenants[0].ID), slot.ID)
	assert.ErrorIs(t, err, ErrAlreadyBooked)

	_, err = f.gate.BookVisit(ctx, auth.Tenant(f.tenants[1].ID), slot.ID)
	assert.ErrorIs(t, err, ErrSlotFull)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))

	// a cancellation frees the seat
	_, err = f.gate.CancelBooking(ctx, auth.Tenant(f.tenants[0].ID), booking.ID)
	require.NoError(t, err)
	_, err = f.gate.BookVisit(ctx, auth.Tenant(f.tenants[1].ID), slot.ID)
	assert.NoError(t, err)
}

func TestBookVisit_OpenDayIsConfirmed(t *testing.T) {
	f := newFixture(t)
	slot, err := f.gate.CreateOpenDay(context.Background(), f.landlord, f.listing.ID, "2026-03-14", "15:00", "18:00")
	require.NoError(t, err)

	booking, err := f.gate.BookVisit(context.Background(), auth.Tenant(f.tenants[2].ID), slot.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, booking.Status)
}

func TestConfirmAndCancelBooking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slot := f.slot(t, models.SlotTypeVirtual, 2)
	f.approve(t, 0)

	booking, err := f.gate.BookVisit(ctx, auth.Tenant(f.tenants[0].ID), slot.ID)
	require.NoError(t, err)

	_, err = f.gate.ConfirmBooking(ctx, auth.Tenant(f.tenants[0].ID), booking.ID)
	assert.Equal(t, apperr.Unauthorized, apperr.KindOf(err))

	confirmed, err := f.gate.ConfirmBooking(ctx, f.landlord, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusConfirmed, confirmed.Status)

	_, err = f.gate.ConfirmBooking(ctx, f.landlord, booking.ID)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)

	_, err = f.gate.CancelBooking(ctx, auth.Tenant(f.tenants[1].ID), booking.ID)
	assert.Equal(t, apperr.Unauthorized, apperr.KindOf(err))

	cancelled, err := f.gate.CancelBooking(ctx, f.landlord, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BookingStatusCancelled, cancelled.Status)

	events := f.events.OfType(notify.EventBookingCancelled)
	require.Len(t, events, 1)
	assert.Equal(t, f.tenants[0].ID, events[0].RecipientID)
}
