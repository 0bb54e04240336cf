package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sklapp/skl-api/internal/models"
)

// StudentRepository manages persistence for student records.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs a StudentRepository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

const studentColumns = `id, nisn, nis, full_name, birth_place, birth_date, parent_name, class_name,
        status, verified_by, verified_at, verification_note, active, created_at, updated_at`

// List returns students matching the provided filters.
func (r *StudentRepository) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	base := "FROM students"
	conditions := []string{"1=1"}
	args := []interface{}{}

	if filter.ClassName != "" {
		conditions = append(conditions, fmt.Sprintf("class_name = $%d", len(args)+1))
		args = append(args, filter.ClassName)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, *filter.Status)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(full_name) LIKE $%d OR nisn LIKE $%d OR nis LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	base = fmt.Sprintf("%s WHERE %s", base, strings.Join(conditions, " AND "))

	allowedSorts := map[string]string{
		"full_name":  "full_name",
		"nisn":       "nisn",
		"class_name": "class_name",
		"status":     "status",
		"created_at": "created_at",
	}
	column, ok := allowedSorts[filter.SortBy]
	if !ok {
		column = "created_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", studentColumns, base, column, order, size, offset)

	var students []models.Student
	if err := r.db.SelectContext(ctx, &students, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list students: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count students: %w", err)
	}
	return students, total, nil
}

// FindByID fetches a student by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id int64) (*models.Student, error) {
	query := fmt.Sprintf("SELECT %s FROM students WHERE id = $1", studentColumns)
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}

// ExistsByNISN checks if a student with given NISN exists optionally excluding an ID.
func (r *StudentRepository) ExistsByNISN(ctx context.Context, nisn string, excludeID int64) (bool, error) {
	query := "SELECT 1 FROM students WHERE nisn = $1"
	args := []interface{}{nisn}
	if excludeID > 0 {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check nisn: %w", err)
	}
	return true, nil
}

// Create inserts a new student record in PENDING state.
func (r *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	now := time.Now().UTC()
	if student.CreatedAt.IsZero() {
		student.CreatedAt = now
	}
	student.UpdatedAt = now
	if student.Status == "" {
		student.Status = models.VerificationPending
	}
	const query = `INSERT INTO students (nisn, nis, full_name, birth_place, birth_date, parent_name, class_name, status, active, created_at, updated_at)
        VALUES (:nisn, :nis, :full_name, :birth_place, :birth_date, :parent_name, :class_name, :status, :active, :created_at, :updated_at)
        RETURNING id`
	rows, err := r.db.NamedQueryContext(ctx, query, student)
	if err != nil {
		return fmt.Errorf("create student: %w", err)
	}
	defer rows.Close() //nolint:errcheck
	if rows.Next() {
		if err := rows.Scan(&student.ID); err != nil {
			return fmt.Errorf("scan student id: %w", err)
		}
	}
	return nil
}

// Update modifies the identity fields of an existing student. Workflow
// columns are only touched through UpdateVerification.
func (r *StudentRepository) Update(ctx context.Context, student *models.Student) error {
	student.UpdatedAt = time.Now().UTC()
	const query = `UPDATE students SET nisn = :nisn, nis = :nis, full_name = :full_name, birth_place = :birth_place,
        birth_date = :birth_date, parent_name = :parent_name, class_name = :class_name, active = :active, updated_at = :updated_at
        WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, student); err != nil {
		return fmt.Errorf("update student: %w", err)
	}
	return nil
}

// Deactivate marks a student as inactive. Student rows are never deleted.
func (r *StudentRepository) Deactivate(ctx context.Context, id int64) error {
	const query = `UPDATE students SET active = false, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate student: %w", err)
	}
	return nil
}

// VerificationParams captures a single atomic workflow transition.
type VerificationParams struct {
	StudentID  int64
	Status     models.VerificationStatus
	VerifierID int64
	DecidedAt  time.Time
	Note       *string
}

// UpdateVerification applies the workflow transition in one statement so
// status, verifier and timestamp always change together. Returns
// sql.ErrNoRows when the student does not exist.
func (r *StudentRepository) UpdateVerification(ctx context.Context, params VerificationParams) error {
	const query = `UPDATE students SET status = $2, verified_by = $3, verified_at = $4, verification_note = $5, updated_at = $4
        WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, params.StudentID, params.Status, params.VerifierID, params.DecidedAt, params.Note)
	if err != nil {
		return fmt.Errorf("update verification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("verification rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ResetVerification returns a student to PENDING, clearing the decision
// columns. Returns sql.ErrNoRows when the student does not exist.
func (r *StudentRepository) ResetVerification(ctx context.Context, id int64) error {
	const query = `UPDATE students SET status = $2, verified_by = NULL, verified_at = NULL, verification_note = NULL, updated_at = $3
        WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id, models.VerificationPending, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("reset verification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reset rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListVerifiedIDs returns the ids of all verified, active students.
func (r *StudentRepository) ListVerifiedIDs(ctx context.Context) ([]int64, error) {
	const query = `SELECT id FROM students WHERE status = $1 AND active = true ORDER BY id ASC`
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids, query, models.VerificationVerified); err != nil {
		return nil, fmt.Errorf("list verified students: %w", err)
	}
	return ids, nil
}
