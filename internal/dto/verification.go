package dto

// SubmitVerificationRequest carries an admin decision for a student record.
type SubmitVerificationRequest struct {
	Decision string `json:"decision" validate:"required"`
	Note     string `json:"note"`
}

// VerificationResult echoes the updated workflow state.
type VerificationResult struct {
	StudentID  int64  `json:"student_id"`
	Status     string `json:"status"`
	VerifiedBy int64  `json:"verified_by"`
	VerifiedAt string `json:"verified_at"`
	Note       string `json:"note,omitempty"`
}
