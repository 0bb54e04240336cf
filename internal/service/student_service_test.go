package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sklapp/skl-api/internal/models"
	appErrors "github.com/sklapp/skl-api/pkg/errors"
)

type stubStudentRepo struct {
	students map[int64]*models.Student
	nisns    map[string]bool
	created  []*models.Student
	nextID   int64
}

func newStubStudentRepo() *stubStudentRepo {
	return &stubStudentRepo{students: map[int64]*models.Student{}, nisns: map[string]bool{}, nextID: 1}
}

func (s *stubStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	var out []models.Student
	for _, st := range s.students {
		out = append(out, *st)
	}
	if filter.Page > 1 {
		return nil, len(out), nil
	}
	return out, len(out), nil
}

func (s *stubStudentRepo) FindByID(ctx context.Context, id int64) (*models.Student, error) {
	st, ok := s.students[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *st
	return &clone, nil
}

func (s *stubStudentRepo) ExistsByNISN(ctx context.Context, nisn string, excludeID int64) (bool, error) {
	return s.nisns[nisn], nil
}

func (s *stubStudentRepo) Create(ctx context.Context, student *models.Student) error {
	student.ID = s.nextID
	s.nextID++
	s.students[student.ID] = student
	s.nisns[student.NISN] = true
	s.created = append(s.created, student)
	return nil
}

func (s *stubStudentRepo) Update(ctx context.Context, student *models.Student) error {
	s.students[student.ID] = student
	return nil
}

func (s *stubStudentRepo) Deactivate(ctx context.Context, id int64) error {
	if st, ok := s.students[id]; ok {
		st.Active = false
	}
	return nil
}

func TestStudentCreate(t *testing.T) {
	repo := newStubStudentRepo()
	svc := NewStudentService(repo, nil, nil, nil, nil)

	student, err := svc.Create(context.Background(), CreateStudentRequest{
		NISN:       "0051234567",
		NIS:        "2021001",
		FullName:   "Siti Aminah",
		BirthPlace: "Bandung",
		BirthDate:  time.Date(2007, 8, 17, 0, 0, 0, 0, time.UTC),
		ClassName:  "XII IPA 1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.VerificationPending, student.Status)
	assert.True(t, student.Active)
	assert.NotZero(t, student.ID)
}

func TestStudentCreateDuplicateNISN(t *testing.T) {
	repo := newStubStudentRepo()
	repo.nisns["0051234567"] = true
	svc := NewStudentService(repo, nil, nil, nil, nil)

	_, err := svc.Create(context.Background(), CreateStudentRequest{
		NISN:       "0051234567",
		NIS:        "2021001",
		FullName:   "Siti Aminah",
		BirthPlace: "Bandung",
		BirthDate:  time.Date(2007, 8, 17, 0, 0, 0, 0, time.UTC),
		ClassName:  "XII IPA 1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestStudentCreateMissingFields(t *testing.T) {
	svc := NewStudentService(newStubStudentRepo(), nil, nil, nil, nil)

	_, err := svc.Create(context.Background(), CreateStudentRequest{NISN: "0051234567"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStudentImportCSV(t *testing.T) {
	repo := newStubStudentRepo()
	audit := &stubAuditLogger{}
	svc := NewStudentService(repo, audit, nil, nil, nil)

	csv := strings.Join([]string{
		"nisn,nis,full_name,birth_place,birth_date,parent_name,class_name",
		"0051234567,2021001,Siti Aminah,Bandung,2007-08-17,Budi Santoso,XII IPA 1",
		"0051234568,2021002,Agus Salim,Garut,2007-01-02,Dedi Salim,XII IPA 2",
	}, "\n")

	result, err := svc.ImportCSV(context.Background(), strings.NewReader(csv), 1)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Created)
	assert.Zero(t, result.Skipped)
	assert.Len(t, repo.created, 2)
	require.Len(t, audit.entries, 1)
	assert.Equal(t, models.AuditActionStudentImport, audit.entries[0].Action)
}

func TestStudentImportCSVReportsBadRows(t *testing.T) {
	repo := newStubStudentRepo()
	repo.nisns["0051234567"] = true
	svc := NewStudentService(repo, nil, nil, nil, nil)

	csv := strings.Join([]string{
		"nisn,nis,full_name,birth_place,birth_date,parent_name,class_name",
		"0051234567,2021001,Siti Aminah,Bandung,2007-08-17,Budi Santoso,XII IPA 1",
		"0051234568,2021002,Agus Salim,Garut,17-08-2007,Dedi Salim,XII IPA 2",
		"0051234569,2021003,Rina Marlina,Bogor,2007-03-09,Asep Marlina,XII IPS 1",
	}, "\n")

	result, err := svc.ImportCSV(context.Background(), strings.NewReader(csv), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 2, result.Skipped)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, 2, result.Errors[0].Line)
	assert.Equal(t, 3, result.Errors[1].Line)
}

func TestStudentImportCSVEmptyFile(t *testing.T) {
	svc := NewStudentService(newStubStudentRepo(), nil, nil, nil, nil)

	_, err := svc.ImportCSV(context.Background(), strings.NewReader(""), 1)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStudentExportRosterCSV(t *testing.T) {
	repo := newStubStudentRepo()
	svc := NewStudentService(repo, nil, nil, nil, nil)
	_, err := svc.Create(context.Background(), CreateStudentRequest{
		NISN:       "0051234567",
		NIS:        "2021001",
		FullName:   "Siti Aminah",
		BirthPlace: "Bandung",
		BirthDate:  time.Date(2007, 8, 17, 0, 0, 0, 0, time.UTC),
		ClassName:  "XII IPA 1",
	})
	require.NoError(t, err)

	data, err := svc.ExportRosterCSV(context.Background(), models.StudentFilter{})
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "nisn,nis,full_name,class_name,status,verified_at")
	assert.Contains(t, out, "Siti Aminah")
	assert.Contains(t, out, "PENDING")
}

func TestStudentDeactivate(t *testing.T) {
	repo := newStubStudentRepo()
	svc := NewStudentService(repo, nil, nil, nil, nil)
	student, err := svc.Create(context.Background(), CreateStudentRequest{
		NISN:       "0051234567",
		NIS:        "2021001",
		FullName:   "Siti Aminah",
		BirthPlace: "Bandung",
		BirthDate:  time.Date(2007, 8, 17, 0, 0, 0, 0, time.UTC),
		ClassName:  "XII IPA 1",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(context.Background(), student.ID))
	assert.False(t, repo.students[student.ID].Active)
}

func TestStudentUpdateDropsCachedCertificate(t *testing.T) {
	repo := newStubStudentRepo()
	certs := &stubInvalidator{}
	svc := NewStudentService(repo, nil, certs, nil, nil)
	student, err := svc.Create(context.Background(), CreateStudentRequest{
		NISN:       "0051234567",
		NIS:        "2021001",
		FullName:   "Siti Aminah",
		BirthPlace: "Bandung",
		BirthDate:  time.Date(2007, 8, 17, 0, 0, 0, 0, time.UTC),
		ClassName:  "XII IPA 1",
	})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), student.ID, UpdateStudentRequest{
		NISN:       "0051234568",
		NIS:        "2021001",
		FullName:   "Siti Aminah Putri",
		BirthPlace: "Bandung",
		BirthDate:  time.Date(2007, 8, 17, 0, 0, 0, 0, time.UTC),
		ClassName:  "XII IPA 1",
		Active:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, "Siti Aminah Putri", updated.FullName)
	require.Len(t, certs.invalidated, 1)
	assert.Equal(t, student.ID, certs.invalidated[0])
}

func TestStudentDeactivateDropsCachedCertificate(t *testing.T) {
	repo := newStubStudentRepo()
	certs := &stubInvalidator{}
	svc := NewStudentService(repo, nil, certs, nil, nil)
	student, err := svc.Create(context.Background(), CreateStudentRequest{
		NISN:       "0051234567",
		NIS:        "2021001",
		FullName:   "Siti Aminah",
		BirthPlace: "Bandung",
		BirthDate:  time.Date(2007, 8, 17, 0, 0, 0, 0, time.UTC),
		ClassName:  "XII IPA 1",
	})
	require.NoError(t, err)

	require.NoError(t, svc.Deactivate(context.Background(), student.ID))
	assert.Equal(t, []int64{student.ID}, certs.invalidated)
}

type memCacheRepo struct {
	entries map[string][]byte
}

func newMemCacheRepo() *memCacheRepo {
	return &memCacheRepo{entries: map[string][]byte{}}
}

func (m *memCacheRepo) GetBytes(ctx context.Context, key string) ([]byte, error) {
	data, ok := m.entries[key]
	if !ok {
		return nil, appErrors.ErrCacheMiss
	}
	return data, nil
}

func (m *memCacheRepo) SetBytes(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.entries[key] = value
	return nil
}

func (m *memCacheRepo) DeleteByPattern(ctx context.Context, pattern string) error {
	prefix := strings.TrimSuffix(pattern, "*")
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}

type nameEchoRenderer struct{}

func (nameEchoRenderer) Render(cert models.CertificateData) ([]byte, error) {
	return []byte("PDF:" + cert.StudentName), nil
}

// An identity correction must not keep serving the previously cached
// render for the rest of the TTL.
func TestStudentUpdateRefreshesDownloadedCertificate(t *testing.T) {
	repo := newStubStudentRepo()
	cache := NewCacheService(newMemCacheRepo(), nil, time.Hour, nil, true)
	certSvc := NewCertificateService(repo, &stubCertGradeReader{}, &stubCertSettingsReader{settings: schoolSettings()}, nameEchoRenderer{}, cache, nil, nil)
	studentSvc := NewStudentService(repo, nil, certSvc, nil, nil)

	student := verifiedStudent()
	repo.students[student.ID] = student
	repo.nisns[student.NISN] = true

	_, first, err := certSvc.Download(context.Background(), student.ID, models.CertificateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "PDF:Siti Aminah", string(first))

	_, err = studentSvc.Update(context.Background(), student.ID, UpdateStudentRequest{
		NISN:       "0051234568",
		NIS:        student.NIS,
		FullName:   "Siti Aminah Putri",
		BirthPlace: student.BirthPlace,
		BirthDate:  student.BirthDate,
		ClassName:  student.ClassName,
		Active:     true,
	})
	require.NoError(t, err)

	_, second, err := certSvc.Download(context.Background(), student.ID, models.CertificateOptions{})
	require.NoError(t, err)
	assert.Equal(t, "PDF:Siti Aminah Putri", string(second))
}
