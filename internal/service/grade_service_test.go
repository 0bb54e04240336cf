package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sklapp/skl-api/internal/models"
	appErrors "github.com/sklapp/skl-api/pkg/errors"
)

type stubGradeRepo struct {
	rows     []models.GradeRow
	upserted []models.Grade
	bulk     [][]models.Grade
}

func (s *stubGradeRepo) ListByStudent(ctx context.Context, studentID int64) ([]models.GradeRow, error) {
	return s.rows, nil
}

func (s *stubGradeRepo) Upsert(ctx context.Context, grade *models.Grade) error {
	s.upserted = append(s.upserted, *grade)
	return nil
}

func (s *stubGradeRepo) BulkUpsert(ctx context.Context, grades []models.Grade) error {
	s.bulk = append(s.bulk, grades)
	return nil
}

type stubStudentFinder struct {
	student *models.Student
	err     error
}

func (s *stubStudentFinder) FindByID(ctx context.Context, id int64) (*models.Student, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.student, nil
}

type stubSubjectFinder struct {
	subject *models.Subject
	err     error
}

func (s *stubSubjectFinder) FindByID(ctx context.Context, id int64) (*models.Subject, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.subject, nil
}

func newGradeTestService(repo *stubGradeRepo, invalidator *stubInvalidator) *GradeService {
	students := &stubStudentFinder{student: &models.Student{ID: 7, Active: true}}
	subjects := &stubSubjectFinder{subject: &models.Subject{ID: 2, Code: "MTK", Name: "Matematika"}}
	var inv certificateInvalidator
	if invalidator != nil {
		inv = invalidator
	}
	return NewGradeService(repo, students, subjects, inv, nil, nil)
}

func TestGradeUpsert(t *testing.T) {
	repo := &stubGradeRepo{}
	invalidator := &stubInvalidator{}
	svc := newGradeTestService(repo, invalidator)

	err := svc.Upsert(context.Background(), 7, UpsertGradeRequest{SubjectID: 2, Value: 88.5})
	require.NoError(t, err)
	require.Len(t, repo.upserted, 1)
	assert.Equal(t, 88.5, repo.upserted[0].Value)
	assert.Equal(t, []int64{7}, invalidator.invalidated)
}

func TestGradeUpsertRejectsOutOfRange(t *testing.T) {
	repo := &stubGradeRepo{}
	svc := newGradeTestService(repo, nil)

	for _, value := range []float64{-1, 100.5, 250} {
		err := svc.Upsert(context.Background(), 7, UpsertGradeRequest{SubjectID: 2, Value: value})
		require.Error(t, err, "value %v must be rejected", value)
		assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	}
	assert.Empty(t, repo.upserted)
}

func TestGradeUpsertBoundaryValues(t *testing.T) {
	repo := &stubGradeRepo{}
	svc := newGradeTestService(repo, nil)

	require.NoError(t, svc.Upsert(context.Background(), 7, UpsertGradeRequest{SubjectID: 2, Value: 0}))
	require.NoError(t, svc.Upsert(context.Background(), 7, UpsertGradeRequest{SubjectID: 2, Value: 100}))
	assert.Len(t, repo.upserted, 2)
}

func TestGradeUpsertUnknownSubject(t *testing.T) {
	repo := &stubGradeRepo{}
	students := &stubStudentFinder{student: &models.Student{ID: 7}}
	subjects := &stubSubjectFinder{err: sql.ErrNoRows}
	svc := NewGradeService(repo, students, subjects, nil, nil, nil)

	err := svc.Upsert(context.Background(), 7, UpsertGradeRequest{SubjectID: 99, Value: 80})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestGradeBulkUpsert(t *testing.T) {
	repo := &stubGradeRepo{}
	invalidator := &stubInvalidator{}
	svc := newGradeTestService(repo, invalidator)

	err := svc.BulkUpsert(context.Background(), 7, BulkUpsertGradesRequest{Grades: []UpsertGradeRequest{
		{SubjectID: 2, Value: 80},
		{SubjectID: 3, Value: 90},
	}})
	require.NoError(t, err)
	require.Len(t, repo.bulk, 1)
	assert.Len(t, repo.bulk[0], 2)
	assert.Equal(t, []int64{7}, invalidator.invalidated)
}

func TestGradeBulkUpsertRejectsDuplicateSubject(t *testing.T) {
	repo := &stubGradeRepo{}
	svc := newGradeTestService(repo, nil)

	err := svc.BulkUpsert(context.Background(), 7, BulkUpsertGradesRequest{Grades: []UpsertGradeRequest{
		{SubjectID: 2, Value: 80},
		{SubjectID: 2, Value: 85},
	}})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.bulk)
}

func TestGradeListByStudent(t *testing.T) {
	repo := &stubGradeRepo{rows: []models.GradeRow{{SubjectCode: "MTK", SubjectName: "Matematika", Value: 90}}}
	svc := newGradeTestService(repo, nil)

	rows, err := svc.ListByStudent(context.Background(), 7)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "MTK", rows[0].SubjectCode)
}
