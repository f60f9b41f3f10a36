// Package certification runs the document requests a landlord attaches to
// an active interest: request, tenant upload, landlord review.
package certification

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"roommate/server/internal/apperr"
	"roommate/server/internal/auth"
	"roommate/server/internal/clock"
	"roommate/server/internal/database"
	"roommate/server/internal/models"
	"roommate/server/internal/notify"
	"roommate/server/internal/queue"
)

var (
	ErrUnknownType       = apperr.New(apperr.Validation, "unknown certification type")
	ErrMissingDocument   = apperr.New(apperr.Validation, "document url is required")
	ErrInvalidOutcome    = apperr.New(apperr.Validation, "review outcome must be VERIFIED or REJECTED")
	ErrInterestNotActive = apperr.New(apperr.InvalidState, "certifications can only be requested on active interests")
	ErrDuplicateRequest  = apperr.New(apperr.Conflict, "a request of this type is already open or verified")
	ErrRequestChanged    = apperr.New(apperr.Conflict, "certification request changed concurrently")
)

// blockingStatuses are the statuses that stop a new request of the same type
var blockingStatuses = []models.CertificationStatus{
	models.CertStatusPending,
	models.CertStatusSubmitted,
	models.CertStatusVerified,
}

type Workflow struct {
	db       *gorm.DB
	listings *queue.Serializer
	notifier notify.Dispatcher
	clock    clock.Clock
	logger   *logrus.Logger
}

func NewWorkflow(db *gorm.DB, listings *queue.Serializer, notifier notify.Dispatcher, clk clock.Clock, logger *logrus.Logger) *Workflow {
	return &Workflow{db: db, listings: listings, notifier: notifier, clock: clk, logger: logger}
}

// RequestCertification asks the tenant behind an ACTIVE interest for a
// document. It runs under the listing lock so the interest cannot leave
// the active queue halfway through.
func (w *Workflow) RequestCertification(ctx context.Context, actor auth.Actor, interestID uint, certType models.CertificationType, note string) (*models.CertificationRequest, error) {
	if !certType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, certType)
	}

	interest, err := database.FindInterest(w.db.WithContext(ctx), interestID)
	if err != nil {
		return nil, err
	}

	var created *models.CertificationRequest
	err = w.listings.Run(ctx, interest.ListingID, func(tx *gorm.DB, listing *models.Listing, out *notify.Outbox) error {
		if err := actor.RequireLandlordOf(listing); err != nil {
			return err
		}

		// reload under the lock
		interest, err := database.FindInterest(tx, interestID)
		if err != nil {
			return err
		}
		if interest.Status != models.InterestStatusActive {
			return fmt.Errorf("%w: interest %d is %s", ErrInterestNotActive, interest.ID, interest.Status)
		}

		var open int64
		err = tx.Model(&models.CertificationRequest{}).
			Where("interest_id = ? AND type = ? AND status IN ?", interest.ID, certType, blockingStatuses).
			Count(&open).Error
		if err != nil {
			return fmt.Errorf("failed to check existing requests: %w", err)
		}
		if open > 0 {
			return fmt.Errorf("%w: %s on interest %d", ErrDuplicateRequest, certType, interest.ID)
		}

		cert := &models.CertificationRequest{
			InterestID: interest.ID,
			TenantID:   interest.TenantID,
			Type:       certType,
			Status:     models.CertStatusPending,
			Note:       optional(note),
		}
		if err := tx.Create(cert).Error; err != nil {
			return fmt.Errorf("failed to create certification request: %w", err)
		}

		out.Add(notify.Event{
			Type:        notify.EventCertificationRequested,
			RecipientID: interest.TenantID,
			ListingID:   listing.ID,
			InterestID:  interest.ID,
			Message:     fmt.Sprintf("The landlord of %q asks for: %s", listing.Title, certType),
			OccurredAt:  w.clock.Now(),
		})
		created = cert
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.logger.WithFields(logrus.Fields{
		"interest_id":      interestID,
		"certification_id": created.ID,
		"type":             certType,
	}).Info("Certification requested")
	return created, nil
}

// SubmitDocument attaches the tenant's document. A rejected request can be
// submitted again.
func (w *Workflow) SubmitDocument(ctx context.Context, actor auth.Actor, certificationID uint, documentURL string) (*models.CertificationRequest, error) {
	documentURL = strings.TrimSpace(documentURL)
	if documentURL == "" {
		return nil, ErrMissingDocument
	}

	var events []notify.Event
	var cert *models.CertificationRequest
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		cert, err = database.FindCertification(tx, certificationID)
		if err != nil {
			return err
		}
		if err := actor.RequireUser(cert.TenantID); err != nil {
			return err
		}
		from := cert.Status
		if err := cert.TransitionTo(models.CertStatusSubmitted); err != nil {
			return err
		}

		now := w.clock.Now()
		cert.DocumentURL = &documentURL
		cert.SubmittedAt = &now
		cert.ReviewedAt = nil
		cert.UpdatedAt = now
		if err := saveFrom(tx, cert, from); err != nil {
			return err
		}

		listing, err := w.listingOf(tx, cert)
		if err != nil {
			return err
		}
		events = append(events, notify.Event{
			Type:        notify.EventDocumentSubmitted,
			RecipientID: listing.LandlordID,
			ListingID:   listing.ID,
			InterestID:  cert.InterestID,
			Message:     fmt.Sprintf("A %s document was submitted for %q", cert.Type, listing.Title),
			OccurredAt:  now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.notifier.Dispatch(events...)
	return cert, nil
}

// Review records the landlord's verdict on a submitted document
func (w *Workflow) Review(ctx context.Context, actor auth.Actor, certificationID uint, outcome models.CertificationStatus, note string) (*models.CertificationRequest, error) {
	if outcome != models.CertStatusVerified && outcome != models.CertStatusRejected {
		return nil, fmt.Errorf("%w: got %q", ErrInvalidOutcome, outcome)
	}

	var events []notify.Event
	var cert *models.CertificationRequest
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		cert, err = database.FindCertification(tx, certificationID)
		if err != nil {
			return err
		}
		listing, err := w.listingOf(tx, cert)
		if err != nil {
			return err
		}
		if err := actor.RequireLandlordOf(listing); err != nil {
			return err
		}
		from := cert.Status
		if err := cert.TransitionTo(outcome); err != nil {
			return err
		}

		now := w.clock.Now()
		cert.ReviewedAt = &now
		cert.UpdatedAt = now
		if n := optional(note); n != nil {
			cert.Note = n
		}
		if err := saveFrom(tx, cert, from); err != nil {
			return err
		}

		events = append(events, notify.Event{
			Type:        notify.EventCertificationReviewed,
			RecipientID: cert.TenantID,
			ListingID:   listing.ID,
			InterestID:  cert.InterestID,
			Message:     fmt.Sprintf("Your %s for %q was %s", cert.Type, listing.Title, outcome),
			OccurredAt:  now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	w.notifier.Dispatch(events...)
	w.logger.WithFields(logrus.Fields{
		"certification_id": cert.ID,
		"outcome":          outcome,
	}).Info("Certification reviewed")
	return cert, nil
}

// saveFrom writes the request only while its stored status is still from,
// so two racing writers cannot both leave the same state.
func saveFrom(tx *gorm.DB, cert *models.CertificationRequest, from models.CertificationStatus) error {
	res := tx.Model(cert).
		Where("status = ?", from).
		Select("status", "document_url", "note", "submitted_at", "reviewed_at", "updated_at").
		Updates(cert)
	if res.Error != nil {
		return fmt.Errorf("failed to save certification %d: %w", cert.ID, res.Error)
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("%w: certification %d is no longer %s", ErrRequestChanged, cert.ID, from)
	}
	return nil
}

// List returns an interest's requests, oldest first. Visible to the
// listing's landlord and the interest's tenant.
func (w *Workflow) List(ctx context.Context, actor auth.Actor, interestID uint) ([]models.CertificationRequest, error) {
	db := w.db.WithContext(ctx)
	interest, err := database.FindInterest(db, interestID)
	if err != nil {
		return nil, err
	}

	if actor.RequireUser(interest.TenantID) != nil {
		listing, err := database.FindListing(db, interest.ListingID)
		if err != nil {
			return nil, err
		}
		if err := actor.RequireLandlordOf(listing); err != nil {
			return nil, err
		}
	}

	var certs []models.CertificationRequest
	if err := db.Where("interest_id = ?", interest.ID).Order("id").Find(&certs).Error; err != nil {
		return nil, fmt.Errorf("failed to list certifications: %w", err)
	}
	return certs, nil
}

func (w *Workflow) listingOf(tx *gorm.DB, cert *models.CertificationRequest) (*models.Listing, error) {
	interest, err := database.FindInterest(tx, cert.InterestID)
	if err != nil {
		return nil, err
	}
	return database.FindListing(tx, interest.ListingID)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
