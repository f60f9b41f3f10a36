package database

import (
	"fmt"

	"gorm.io/gorm"

	"roommate/server/internal/models"
)

// partialIndexes back the queue invariants at the storage level. MySQL has
// no partial indexes; there the listing row lock is the only guard.
var partialIndexes = []struct {
	name string
	ddl  string
}{
	{
		// two ACTIVE interests can never share a slot
		name: "idx_interests_active_position",
		ddl: `CREATE UNIQUE INDEX IF NOT EXISTS idx_interests_active_position
			ON interests (listing_id, position) WHERE status = 'ACTIVE'`,
	},
	{
		name: "idx_interests_open_tenant",
		ddl: `CREATE UNIQUE INDEX IF NOT EXISTS idx_interests_open_tenant
			ON interests (listing_id, tenant_id) WHERE status IN ('ACTIVE', 'WAITING')`,
	},
	{
		// a group holds at most one open interest per listing
		name: "idx_interests_open_group",
		ddl: `CREATE UNIQUE INDEX IF NOT EXISTS idx_interests_open_group
			ON interests (listing_id, group_id) WHERE status IN ('ACTIVE', 'WAITING') AND group_id IS NOT NULL`,
	},
	{
		name: "idx_bookings_open_tenant",
		ddl: `CREATE UNIQUE INDEX IF NOT EXISTS idx_bookings_open_tenant
			ON bookings (slot_id, tenant_id) WHERE status IN ('PENDING', 'CONFIRMED')`,
	},
}

// MigrateSchema creates or updates every table the engine uses.
func MigrateSchema(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Listing{},
		&models.Group{},
		&models.GroupMember{},
		&models.Interest{},
		&models.CertificationRequest{},
		&models.VisitSlot{},
		&models.Booking{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate schema: %w", err)
	}

	if db.Dialector.Name() == "mysql" {
		return nil
	}

	for _, idx := range partialIndexes {
		if err := db.Exec(idx.ddl).Error; err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}
	return nil
}
