package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"roommate/server/internal/apperr"
	"roommate/server/internal/models"
)

var (
	ErrListingNotFound       = apperr.New(apperr.NotFound, "listing not found")
	ErrUserNotFound          = apperr.New(apperr.NotFound, "user not found")
	ErrGroupNotFound         = apperr.New(apperr.NotFound, "group not found")
	ErrInterestNotFound      = apperr.New(apperr.NotFound, "interest not found")
	ErrCertificationNotFound = apperr.New(apperr.NotFound, "certification request not found")
	ErrSlotNotFound          = apperr.New(apperr.NotFound, "visit slot not found")
	ErrBookingNotFound       = apperr.New(apperr.NotFound, "booking not found")
)

// first loads one row by primary key, mapping a miss to notFound.
func first(tx *gorm.DB, dest interface{}, id uint, notFound error) error {
	err := tx.First(dest, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: id %d", notFound, id)
	}
	if err != nil {
		return fmt.Errorf("failed to load %T %d: %w", dest, id, err)
	}
	return nil
}

// LockListing loads a listing and, on stores that support it, holds a row
// lock on it until the surrounding transaction ends. Every command that
// touches a listing's queue goes through here first.
func LockListing(tx *gorm.DB, id uint) (*models.Listing, error) {
	q := tx
	if tx.Dialector.Name() != "sqlite" {
		q = tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var listing models.Listing
	if err := first(q, &listing, id, ErrListingNotFound); err != nil {
		return nil, err
	}
	return &listing, nil
}

func FindListing(tx *gorm.DB, id uint) (*models.Listing, error) {
	var listing models.Listing
	if err := first(tx, &listing, id, ErrListingNotFound); err != nil {
		return nil, err
	}
	return &listing, nil
}

func UpdateListingStatus(tx *gorm.DB, listing *models.Listing, status models.ListingStatus) error {
	err := tx.Model(listing).Update("status", status).Error
	if err != nil {
		return fmt.Errorf("failed to update listing %d status: %w", listing.ID, err)
	}
	return nil
}

func FindUser(tx *gorm.DB, id uint) (*models.User, error) {
	var user models.User
	if err := first(tx, &user, id, ErrUserNotFound); err != nil {
		return nil, err
	}
	return &user, nil
}

func FindUsers(tx *gorm.DB, ids []uint) ([]models.User, error) {
	var users []models.User
	if err := tx.Where("id IN ?", ids).Order("id").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	return users, nil
}

// FindGroup loads a group together with its members
func FindGroup(tx *gorm.DB, id uint) (*models.Group, error) {
	var group models.Group
	if err := first(tx.Preload("Members"), &group, id, ErrGroupNotFound); err != nil {
		return nil, err
	}
	return &group, nil
}

func FindInterest(tx *gorm.DB, id uint) (*models.Interest, error) {
	var interest models.Interest
	if err := first(tx, &interest, id, ErrInterestNotFound); err != nil {
		return nil, err
	}
	return &interest, nil
}

// FindOpenInterest returns the tenant's ACTIVE or WAITING interest on the
// listing, or nil when there is none.
func FindOpenInterest(tx *gorm.DB, listingID, tenantID uint) (*models.Interest, error) {
	var interests []models.Interest
	err := tx.Where("listing_id = ? AND tenant_id = ? AND status IN ?", listingID, tenantID, models.OpenInterestStatuses).
		Limit(1).
		Find(&interests).Error
	if err != nil {
		return nil, fmt.Errorf("failed to look up interest: %w", err)
	}
	if len(interests) == 0 {
		return nil, nil
	}
	return &interests[0], nil
}

// FindOpenGroupInterest returns the group's ACTIVE or WAITING interest on
// the listing, whichever member expressed it, or nil when there is none.
func FindOpenGroupInterest(tx *gorm.DB, listingID, groupID uint) (*models.Interest, error) {
	var interests []models.Interest
	err := tx.Where("listing_id = ? AND group_id = ? AND status IN ?", listingID, groupID, models.OpenInterestStatuses).
		Limit(1).
		Find(&interests).Error
	if err != nil {
		return nil, fmt.Errorf("failed to look up group interest: %w", err)
	}
	if len(interests) == 0 {
		return nil, nil
	}
	return &interests[0], nil
}

// ActivePositions returns the slots currently held on the listing, ascending
func ActivePositions(tx *gorm.DB, listingID uint) ([]int, error) {
	var positions []int
	err := tx.Model(&models.Interest{}).
		Where("listing_id = ? AND status = ?", listingID, models.InterestStatusActive).
		Order("position").
		Pluck("position", &positions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load active positions: %w", err)
	}
	return positions, nil
}

func CountActive(tx *gorm.DB, listingID uint) (int, error) {
	var count int64
	err := tx.Model(&models.Interest{}).
		Where("listing_id = ? AND status = ?", listingID, models.InterestStatusActive).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count active interests: %w", err)
	}
	return int(count), nil
}

// NextWaiting returns the waiting interest that should be promoted next:
// highest score first, then earliest request. excludeGroupID keeps a
// dissolving group from promoting its own entries. Returns nil when the
// waitlist is empty.
func NextWaiting(tx *gorm.DB, listingID uint, excludeGroupID *uint) (*models.Interest, error) {
	q := tx.Where("listing_id = ? AND status = ?", listingID, models.InterestStatusWaiting)
	if excludeGroupID != nil {
		q = q.Where("group_id IS NULL OR group_id <> ?", *excludeGroupID)
	}

	var candidates []models.Interest
	err := q.Order("score DESC").Order("created_at ASC").Order("id ASC").
		Limit(1).
		Find(&candidates).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load waiting interests: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	return &candidates[0], nil
}

// WaitingInPromotionOrder lists a listing's waitlist in the order it will
// be promoted.
func WaitingInPromotionOrder(tx *gorm.DB, listingID uint) ([]models.Interest, error) {
	var waiting []models.Interest
	err := tx.Where("listing_id = ? AND status = ?", listingID, models.InterestStatusWaiting).
		Order("score DESC").Order("created_at ASC").Order("id ASC").
		Find(&waiting).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load waiting interests: %w", err)
	}
	return waiting, nil
}

func ActiveInterests(tx *gorm.DB, listingID uint) ([]models.Interest, error) {
	var active []models.Interest
	err := tx.Where("listing_id = ? AND status = ?", listingID, models.InterestStatusActive).
		Order("position").
		Find(&active).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load active interests: %w", err)
	}
	return active, nil
}

func FindCertification(tx *gorm.DB, id uint) (*models.CertificationRequest, error) {
	var cert models.CertificationRequest
	if err := first(tx, &cert, id, ErrCertificationNotFound); err != nil {
		return nil, err
	}
	return &cert, nil
}

func FindSlot(tx *gorm.DB, id uint) (*models.VisitSlot, error) {
	var slot models.VisitSlot
	if err := first(tx, &slot, id, ErrSlotNotFound); err != nil {
		return nil, err
	}
	return &slot, nil
}

func FindBooking(tx *gorm.DB, id uint) (*models.Booking, error) {
	var booking models.Booking
	if err := first(tx, &booking, id, ErrBookingNotFound); err != nil {
		return nil, err
	}
	return &booking, nil
}

// TelegramChatID returns the chat a user linked for notifications, if any
func TelegramChatID(tx *gorm.DB, userID uint) (string, bool) {
	var user models.User
	err := tx.Select("id", "telegram_chat_id").First(&user, userID).Error
	if err != nil || user.TelegramChatID == nil || *user.TelegramChatID == "" {
		return "", false
	}
	return *user.TelegramChatID, true
}
