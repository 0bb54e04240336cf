package models

import "time"

// GradeMin and GradeMax bound accepted grade values.
const (
	GradeMin = 0.0
	GradeMax = 100.0
)

// Grade represents a single grade entry; one row per (student, subject).
type Grade struct {
	ID        int64     `db:"id" json:"id"`
	StudentID int64     `db:"student_id" json:"student_id"`
	SubjectID int64     `db:"subject_id" json:"subject_id"`
	Value     float64   `db:"value" json:"value"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// GradeRow is a grade joined with its subject for display and rendering.
type GradeRow struct {
	SubjectCode string  `db:"subject_code" json:"subject_code"`
	SubjectName string  `db:"subject_name" json:"subject_name"`
	Value       float64 `db:"value" json:"value"`
}
