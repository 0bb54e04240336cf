package models

import "time"

// VerificationStatus captures the SKL eligibility workflow state of a student.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "PENDING"
	VerificationVerified VerificationStatus = "VERIFIED"
	VerificationRejected VerificationStatus = "REJECTED"
)

// Valid reports whether the status is a known workflow state.
func (s VerificationStatus) Valid() bool {
	switch s {
	case VerificationPending, VerificationVerified, VerificationRejected:
		return true
	}
	return false
}

// Terminal reports whether the status is a decision state.
func (s VerificationStatus) Terminal() bool {
	return s == VerificationVerified || s == VerificationRejected
}

// Student represents a graduating learner awaiting certificate issuance.
type Student struct {
	ID               int64              `db:"id" json:"id"`
	NISN             string             `db:"nisn" json:"nisn"`
	NIS              string             `db:"nis" json:"nis"`
	FullName         string             `db:"full_name" json:"full_name"`
	BirthPlace       string             `db:"birth_place" json:"birth_place"`
	BirthDate        time.Time          `db:"birth_date" json:"birth_date"`
	ParentName       string             `db:"parent_name" json:"parent_name"`
	ClassName        string             `db:"class_name" json:"class_name"`
	Status           VerificationStatus `db:"status" json:"status"`
	VerifiedBy       *int64             `db:"verified_by" json:"verified_by,omitempty"`
	VerifiedAt       *time.Time         `db:"verified_at" json:"verified_at,omitempty"`
	VerificationNote *string            `db:"verification_note" json:"verification_note,omitempty"`
	Active           bool               `db:"active" json:"active"`
	CreatedAt        time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time          `db:"updated_at" json:"updated_at"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	ClassName string
	Status    *VerificationStatus
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
