package models

import "time"

type CertificationType string

const (
	CertEmploymentContract CertificationType = "EMPLOYMENT_CONTRACT"
	CertIncomeProof        CertificationType = "INCOME_PROOF"
	CertStudentEnrollment  CertificationType = "STUDENT_ENROLLMENT"
	CertGuarantor          CertificationType = "GUARANTOR"
	CertIDDocument         CertificationType = "ID_DOCUMENT"
)

func (t CertificationType) Valid() bool {
	switch t {
	case CertEmploymentContract, CertIncomeProof, CertStudentEnrollment, CertGuarantor, CertIDDocument:
		return true
	}
	return false
}

type CertificationStatus string

const (
	CertStatusPending   CertificationStatus = "PENDING"
	CertStatusSubmitted CertificationStatus = "SUBMITTED"
	CertStatusVerified  CertificationStatus = "VERIFIED"
	CertStatusRejected  CertificationStatus = "REJECTED"
)

// A rejected document can be submitted again; verified is final.
var certificationTransitions = transitions[CertificationStatus]{
	CertStatusPending:   {CertStatusSubmitted},
	CertStatusSubmitted: {CertStatusVerified, CertStatusRejected},
	CertStatusRejected:  {CertStatusSubmitted},
}

type CertificationRequest struct {
	ID          uint                `gorm:"primaryKey" json:"id"`
	InterestID  uint                `gorm:"not null;index" json:"interest_id"`
	TenantID    uint                `gorm:"not null;index" json:"tenant_id"`
	Type        CertificationType   `gorm:"type:varchar(32);not null" json:"type"`
	Status      CertificationStatus `gorm:"type:varchar(16);not null" json:"status"`
	DocumentURL *string             `gorm:"type:text" json:"document_url"`
	Note        *string             `gorm:"type:text" json:"note"`
	SubmittedAt *time.Time          `json:"submitted_at"`
	ReviewedAt  *time.Time          `json:"reviewed_at"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

func (CertificationRequest) TableName() string {
	return "certification_requests"
}

func (c *CertificationRequest) TransitionTo(next CertificationStatus) error {
	if err := certificationTransitions.check("certification", c.ID, c.Status, next); err != nil {
		return err
	}
	c.Status = next
	return nil
}
