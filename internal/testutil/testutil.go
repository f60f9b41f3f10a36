// Package testutil holds fixtures shared by the engine's package tests.
package testutil

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"roommate/server/internal/clock"
	"roommate/server/internal/database"
	"roommate/server/internal/models"
	"roommate/server/internal/notify"
)

// Epoch is the starting time of every fake clock handed out here
var Epoch = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// NewDB returns a migrated in-memory database closed at test end
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := database.NewTestDB()
	require.NoError(t, err)
	require.NoError(t, database.MigrateSchema(db))
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}

func NewClock() *clock.FakeClock {
	return clock.Fake(Epoch)
}

var userSeq struct {
	sync.Mutex
	n int
}

func nextEmail(role models.Role) string {
	userSeq.Lock()
	defer userSeq.Unlock()
	userSeq.n++
	return fmt.Sprintf("%s-%d@example.test", role, userSeq.n)
}

func CreateUser(t testing.TB, db *gorm.DB, role models.Role, profile models.Profile) *models.User {
	t.Helper()
	user := &models.User{Role: role, Name: string(role), Email: nextEmail(role), Profile: profile}
	require.NoError(t, db.Create(user).Error)
	return user
}

func CreateLandlord(t testing.TB, db *gorm.DB) *models.User {
	return CreateUser(t, db, models.RoleLandlord, models.Profile{})
}

// CreateTenants creates n tenants with empty profiles
func CreateTenants(t testing.TB, db *gorm.DB, n int) []*models.User {
	t.Helper()
	tenants := make([]*models.User, n)
	for i := range tenants {
		tenants[i] = CreateUser(t, db, models.RoleTenant, models.Profile{})
	}
	return tenants
}

// CreateListing creates an ACTIVE listing with no preferences
func CreateListing(t testing.TB, db *gorm.DB, landlordID uint) *models.Listing {
	t.Helper()
	listing := &models.Listing{LandlordID: landlordID, Title: "Room", Rent: 450, Status: models.ListingStatusActive}
	require.NoError(t, db.Create(listing).Error)
	return listing
}

func CreateGroup(t testing.TB, db *gorm.DB, memberIDs ...uint) *models.Group {
	t.Helper()
	group := &models.Group{Name: "housemates"}
	for _, id := range memberIDs {
		group.Members = append(group.Members, models.GroupMember{TenantID: id, JoinedAt: Epoch})
	}
	require.NoError(t, db.Create(group).Error)
	return group
}

// CreateInterest inserts an interest directly, bypassing admission. ACTIVE
// interests take the given position.
func CreateInterest(t testing.TB, db *gorm.DB, listingID, tenantID uint, status models.InterestStatus, position int) *models.Interest {
	t.Helper()
	interest := &models.Interest{ListingID: listingID, TenantID: tenantID, Status: status, Score: 50, CreatedAt: Epoch}
	if status == models.InterestStatusActive {
		interest.Position = &position
	}
	require.NoError(t, db.Create(interest).Error)
	return interest
}

// Reload refreshes a record from the database
func Reload[T any](t testing.TB, db *gorm.DB, id uint) *T {
	t.Helper()
	var v T
	require.NoError(t, db.First(&v, id).Error)
	return &v
}

// Recorder is a notify.Dispatcher that keeps every event
type Recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *Recorder) Dispatch(events ...notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
}

func (r *Recorder) Events() []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Event(nil), r.events...)
}

// OfType returns the recorded events of type typ
func (r *Recorder) OfType(typ notify.EventType) []notify.Event {
	var out []notify.Event
	for _, e := range r.Events() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}
