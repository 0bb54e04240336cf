package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sklapp/skl-api/internal/models"
)

// GradeRepository manages grade persistence.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs a GradeRepository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

// ListByStudent returns all grades for a student joined with subject
// identity, ordered by subject code for stable certificate output.
func (r *GradeRepository) ListByStudent(ctx context.Context, studentID int64) ([]models.GradeRow, error) {
	const query = `SELECT sub.code AS subject_code, sub.name AS subject_name, g.value
        FROM grades g
        JOIN subjects sub ON sub.id = g.subject_id
        WHERE g.student_id = $1
        ORDER BY sub.code ASC`
	var rows []models.GradeRow
	if err := r.db.SelectContext(ctx, &rows, query, studentID); err != nil {
		return nil, fmt.Errorf("list grades: %w", err)
	}
	return rows, nil
}

// Upsert writes a grade enforcing one row per (student, subject).
func (r *GradeRepository) Upsert(ctx context.Context, grade *models.Grade) error {
	now := time.Now().UTC()
	if grade.CreatedAt.IsZero() {
		grade.CreatedAt = now
	}
	grade.UpdatedAt = now
	const query = `INSERT INTO grades (student_id, subject_id, value, created_at, updated_at)
        VALUES (:student_id, :subject_id, :value, :created_at, :updated_at)
        ON CONFLICT (student_id, subject_id)
        DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		return fmt.Errorf("upsert grade: %w", err)
	}
	return nil
}

// BulkUpsert performs upserts within a transaction so a bulk entry either
// fully applies or not at all.
func (r *GradeRepository) BulkUpsert(ctx context.Context, grades []models.Grade) error {
	if len(grades) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk grade tx: %w", err)
	}
	const query = `INSERT INTO grades (student_id, subject_id, value, created_at, updated_at)
        VALUES (:student_id, :subject_id, :value, :created_at, :updated_at)
        ON CONFLICT (student_id, subject_id)
        DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	now := time.Now().UTC()
	for i := range grades {
		if grades[i].CreatedAt.IsZero() {
			grades[i].CreatedAt = now
		}
		grades[i].UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, query, grades[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("bulk upsert grade: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk grade tx: %w", err)
	}
	return nil
}
