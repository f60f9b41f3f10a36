package certification

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

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
	db       *gorm.DB
	clock    *clock.FakeClock
	events   *testutil.Recorder
	workflow *Workflow
	landlord auth.Actor
	tenant   auth.Actor
	interest *models.Interest
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	clk := testutil.NewClock()
	events := &testutil.Recorder{}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	landlord := testutil.CreateLandlord(t, db)
	tenant := testutil.CreateTenants(t, db, 1)[0]
	listing := testutil.CreateListing(t, db, landlord.ID)

	return &fixture{
		db:       db,
		clock:    clk,
		events:   events,
		workflow: NewWorkflow(db, queue.NewSerializer(db, queue.NewListingLocks(), events), events, clk, logger),
		landlord: auth.Landlord(landlord.ID),
		tenant:   auth.Tenant(tenant.ID),
		interest: testutil.CreateInterest(t, db, listing.ID, tenant.ID, models.InterestStatusActive, 1),
	}
}

func (f *fixture) request(t *testing.T, certType models.CertificationType) *models.CertificationRequest {
	t.Helper()
	cert, err := f.workflow.RequestCertification(context.Background(), f.landlord, f.interest.ID, certType, "please")
	require.NoError(t, err)
	return cert
}

func TestRequestCertification(t *testing.T) {
	f := newFixture(t)

	cert := f.request(t, models.CertIncomeProof)
	assert.Equal(t, models.CertStatusPending, cert.Status)
	assert.Equal(t, f.tenant.ID, cert.TenantID)
	require.NotNil(t, cert.Note)
	assert.Equal(t, "please", *cert.Note)

	requested := f.events.OfType(notify.EventCertificationRequested)
	require.Len(t, requested, 1)
	assert.Equal(t, f.tenant.ID, requested[0].RecipientID)
}

func TestRequestCertification_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.request(t, models.CertGuarantor)

	tests := []struct {
		name     string
		actor    auth.Actor
		interest uint
		certType models.CertificationType
		want     error
		kind     apperr.Kind
	}{
		{"unknown type", f.landlord, f.interest.ID, "PAYSLIP", ErrUnknownType, apperr.Validation},
		{"duplicate open request", f.landlord, f.interest.ID, models.CertGuarantor, ErrDuplicateRequest, apperr.Conflict},
		{"tenant cannot request", f.tenant, f.interest.ID, models.CertIDDocument, auth.ErrNotLandlord, apperr.Unauthorized},
		{"missing interest", f.landlord, 404, models.CertIDDocument, database.ErrInterestNotFound, apperr.NotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.workflow.RequestCertification(ctx, tt.actor, tt.interest, tt.certType, "")
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.kind, apperr.KindOf(err))
		})
	}
}

func TestRequestCertification_RequiresActiveInterest(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.db.Model(f.interest).Updates(map[string]interface{}{
		"status":   models.InterestStatusWaiting,
		"position": nil,
	}).Error)

	_, err := f.workflow.RequestCertification(context.Background(), f.landlord, f.interest.ID, models.CertIDDocument, "")
	assert.ErrorIs(t, err, ErrInterestNotActive)
	assert.Equal(t, apperr.InvalidState, apperr.KindOf(err))
}

func TestCertification_ResubmissionLoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cert := f.request(t, models.CertEmploymentContract)

	submitted, err := f.workflow.SubmitDocument(ctx, f.tenant, cert.ID, "https://docs.example/contract-v1.pdf")
	require.NoError(t, err)
	assert.Equal(t, models.CertStatusSubmitted, submitted.Status)
	assert.NotNil(t, submitted.SubmittedAt)

	rejected, err := f.workflow.Review(ctx, f.landlord, cert.ID, models.CertStatusRejected, "unsigned")
	require.NoError(t, err)
	assert.Equal(t, models.CertStatusRejected, rejected.Status)
	assert.Equal(t, "unsigned", *rejected.Note)

	// a rejected type does not block a fresh request
	f.request(t, models.CertEmploymentContract)

	_, err = f.workflow.SubmitDocument(ctx, f.tenant, cert.ID, "https://docs.example/contract-v2.pdf")
	require.NoError(t, err)
	verified, err := f.workflow.Review(ctx, f.landlord, cert.ID, models.CertStatusVerified, "")
	require.NoError(t, err)
	assert.Equal(t, models.CertStatusVerified, verified.Status)
	assert.Equal(t, "https://docs.example/contract-v2.pdf", *verified.DocumentURL)

	_, err = f.workflow.SubmitDocument(ctx, f.tenant, cert.ID, "https://docs.example/contract-v3.pdf")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.Equal(t, apperr.InvalidState, apperr.KindOf(err))

	stored := testutil.Reload[models.CertificationRequest](t, f.db, cert.ID)
	assert.Equal(t, models.CertStatusVerified, stored.Status)

	assert.Len(t, f.events.OfType(notify.EventDocumentSubmitted), 2)
	assert.Len(t, f.events.OfType(notify.EventCertificationReviewed), 2)
}

func TestReview_StaleWriteDoesNotOverwriteVerdict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cert := f.request(t, models.CertIncomeProof)
	_, err := f.workflow.SubmitDocument(ctx, f.tenant, cert.ID, "https://docs.example/payslip.pdf")
	require.NoError(t, err)

	// a second reviewer read the request while it was still SUBMITTED
	stale := testutil.Reload[models.CertificationRequest](t, f.db, cert.ID)

	_, err = f.workflow.Review(ctx, f.landlord, cert.ID, models.CertStatusVerified, "")
	require.NoError(t, err)

	require.NoError(t, stale.TransitionTo(models.CertStatusRejected))
	err = saveFrom(f.db, stale, models.CertStatusSubmitted)
	assert.ErrorIs(t, err, ErrRequestChanged)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))

	stored := testutil.Reload[models.CertificationRequest](t, f.db, cert.ID)
	assert.Equal(t, models.CertStatusVerified, stored.Status)

	_, err = f.workflow.Review(ctx, f.landlord, cert.ID, models.CertStatusRejected, "")
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	assert.Len(t, f.events.OfType(notify.EventCertificationReviewed), 1)
}

func TestSubmitDocument_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cert := f.request(t, models.CertStudentEnrollment)

	_, err := f.workflow.SubmitDocument(ctx, f.tenant, cert.ID, "  ")
	assert.ErrorIs(t, err, ErrMissingDocument)

	stranger := testutil.CreateTenants(t, f.db, 1)[0]
	_, err = f.workflow.SubmitDocument(ctx, auth.Tenant(stranger.ID), cert.ID, "https://docs.example/x.pdf")
	assert.Equal(t, apperr.Unauthorized, apperr.KindOf(err))

	_, err = f.workflow.SubmitDocument(ctx, f.tenant, 999, "https://docs.example/x.pdf")
	assert.ErrorIs(t, err, database.ErrCertificationNotFound)
}

func TestReview_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cert := f.request(t, models.CertIDDocument)

	_, err := f.workflow.Review(ctx, f.landlord, cert.ID, models.CertStatusVerified, "")
	assert.ErrorIs(t, err, models.ErrInvalidTransition, "pending requests cannot be reviewed")

	_, err = f.workflow.Review(ctx, f.landlord, cert.ID, models.CertStatusPending, "")
	assert.ErrorIs(t, err, ErrInvalidOutcome)

	_, err = f.workflow.SubmitDocument(ctx, f.tenant, cert.ID, "https://docs.example/id.pdf")
	require.NoError(t, err)

	_, err = f.workflow.Review(ctx, f.tenant, cert.ID, models.CertStatusVerified, "")
	assert.Equal(t, apperr.Unauthorized, apperr.KindOf(err))
}

func TestList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.request(t, models.CertIDDocument)
	f.request(t, models.CertIncomeProof)

	for _, actor := range []auth.Actor{f.landlord, f.tenant} {
		certs, err := f.workflow.List(ctx, actor, f.interest.ID)
		require.NoError(t, err)
		require.Len(t, certs, 2)
		assert.Equal(t, models.CertIDDocument, certs[0].Type)
	}

	stranger := testutil.CreateTenants(t, f.db, 1)[0]
	_, err := f.workflow.List(ctx, auth.Tenant(stranger.ID), f.interest.ID)
	assert.Equal(t, apperr.Unauthorized, apperr.KindOf(err))
}
