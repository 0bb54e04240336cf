package pdf

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/sklapp/skl-api/internal/models"
	appErrors "github.com/sklapp/skl-api/pkg/errors"
)

// CertificateRenderer turns an assembled CertificateData into a paginated
// PDF. Rendering is deterministic: the same input always produces the
// same visual document. Optional assets (letterhead, signature image)
// degrade to text blocks when missing, never to an error.
type CertificateRenderer struct {
	assetsDir string
}

// NewCertificateRenderer constructs a renderer resolving relative image
// paths against assetsDir.
func NewCertificateRenderer(assetsDir string) *CertificateRenderer {
	return &CertificateRenderer{assetsDir: assetsDir}
}

// Render produces the certificate PDF. It fails with a RENDER_ERROR when
// the document model misses required fields; by the assembler's contract
// this only happens on a programming error upstream.
func (r *CertificateRenderer) Render(cert models.CertificateData) ([]byte, error) {
	if cert.StudentName == "" {
		return nil, appErrors.Clone(appErrors.ErrRender, "certificate data missing student name")
	}
	if cert.CertNumber == "" {
		return nil, appErrors.Clone(appErrors.ErrRender, "certificate data missing certificate number")
	}
	if cert.IssueDate == "" {
		return nil, appErrors.Clone(appErrors.ErrRender, "certificate data missing issue date")
	}

	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetMargins(20, 15, 20)
	doc.SetAutoPageBreak(true, 20)
	doc.AddPage()
	tr := doc.UnicodeTranslatorFromDescriptor("")

	r.renderHeader(doc, tr, cert)
	r.renderTitle(doc, tr, cert)
	r.renderBody(doc, tr, cert)
	if cert.ShowGrades {
		r.renderGrades(doc, tr, cert)
	}
	r.renderClosing(doc, tr, cert)
	r.renderFooter(doc, tr, cert)

	buf := &bytes.Buffer{}
	if err := doc.Output(buf); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrRender.Code, appErrors.ErrRender.Status, "render certificate pdf")
	}
	return buf.Bytes(), nil
}

func (r *CertificateRenderer) renderHeader(doc *gofpdf.Fpdf, tr func(string) string, cert models.CertificateData) {
	if cert.UseHeaderImage {
		if path, ok := r.usableImage(cert.HeaderImagePath); ok {
			doc.ImageOptions(path, 20, 12, 170, 0, false, gofpdf.ImageOptions{ReadDpi: true}, 0, "")
			doc.SetY(42)
			doc.SetLineWidth(0.6)
			doc.Line(20, 40, 190, 40)
			doc.Ln(4)
			return
		}
	}

	doc.SetFont("Times", "B", 16)
	doc.CellFormat(0, 8, tr(strings.ToUpper(cert.SchoolName)), "", 1, "C", false, 0, "")
	if cert.SchoolAddress != "" {
		doc.SetFont("Times", "", 10)
		doc.CellFormat(0, 5, tr(cert.SchoolAddress), "", 1, "C", false, 0, "")
	}
	doc.Ln(2)
	doc.SetLineWidth(0.6)
	doc.Line(20, doc.GetY(), 190, doc.GetY())
	doc.Ln(6)
}

func (r *CertificateRenderer) renderTitle(doc *gofpdf.Fpdf, tr func(string) string, cert models.CertificateData) {
	title := cert.Title
	if title == "" {
		title = "SURAT KETERANGAN LULUS"
	}
	doc.SetFont("Times", "BU", 14)
	doc.CellFormat(0, 8, tr(strings.ToUpper(title)), "", 1, "C", false, 0, "")
	doc.SetFont("Times", "", 11)
	doc.CellFormat(0, 6, tr("Nomor: "+cert.CertNumber), "", 1, "C", false, 0, "")
	doc.Ln(4)
}

func (r *CertificateRenderer) renderBody(doc *gofpdf.Fpdf, tr func(string) string, cert models.CertificateData) {
	if cert.OpeningText != "" {
		doc.SetFont("Times", "", 11)
		doc.MultiCell(0, 6, tr(cert.OpeningText), "", "J", false)
		doc.Ln(2)
	}

	rows := []struct {
		label string
		value string
	}{
		{"Nama", cert.StudentName},
		{"NISN", cert.NISN},
		{"NIS", cert.NIS},
		{"Tempat, Tanggal Lahir", joinPlaceDate(cert.BirthPlace, cert.BirthDate)},
		{"Nama Orang Tua/Wali", cert.ParentName},
		{"Kelas", cert.ClassName},
	}

	doc.SetFont("Times", "", 11)
	for _, row := range rows {
		if row.value == "" {
			continue
		}
		doc.SetX(30)
		doc.CellFormat(55, 6, tr(row.label), "", 0, "", false, 0, "")
		doc.CellFormat(5, 6, ":", "", 0, "", false, 0, "")
		doc.CellFormat(0, 6, tr(row.value), "", 1, "", false, 0, "")
	}
	doc.Ln(3)
}

func (r *CertificateRenderer) renderGrades(doc *gofpdf.Fpdf, tr func(string) string, cert models.CertificateData) {
	doc.SetFont("Times", "B", 11)
	doc.CellFormat(0, 6, tr("Daftar Nilai"), "", 1, "", false, 0, "")

	doc.SetFont("Times", "B", 10)
	doc.CellFormat(12, 7, "No", "1", 0, "C", false, 0, "")
	doc.CellFormat(118, 7, tr("Mata Pelajaran"), "1", 0, "C", false, 0, "")
	doc.CellFormat(40, 7, tr("Nilai"), "1", 1, "C", false, 0, "")

	doc.SetFont("Times", "", 10)
	for i, grade := range cert.Grades {
		doc.CellFormat(12, 7, fmt.Sprintf("%d", i+1), "1", 0, "C", false, 0, "")
		doc.CellFormat(118, 7, tr(grade.SubjectName), "1", 0, "", false, 0, "")
		doc.CellFormat(40, 7, formatGrade(grade.Value), "1", 1, "C", false, 0, "")
	}

	doc.SetFont("Times", "B", 10)
	doc.CellFormat(130, 7, tr("Rata-rata"), "1", 0, "R", false, 0, "")
	doc.CellFormat(40, 7, formatGrade(cert.AverageGrade), "1", 1, "C", false, 0, "")
	doc.Ln(3)
}

func (r *CertificateRenderer) renderClosing(doc *gofpdf.Fpdf, tr func(string) string, cert models.CertificateData) {
	if cert.ClosingText == "" {
		return
	}
	doc.SetFont("Times", "", 11)
	doc.MultiCell(0, 6, tr(cert.ClosingText), "", "J", false)
	doc.Ln(4)
}

func (r *CertificateRenderer) renderFooter(doc *gofpdf.Fpdf, tr func(string) string, cert models.CertificateData) {
	// Keep the signing block on one page.
	if doc.GetY() > 220 {
		doc.AddPage()
	}

	blockX := 120.0
	doc.SetFont("Times", "", 11)
	doc.SetX(blockX)
	doc.CellFormat(0, 6, tr(joinPlaceDate(cert.City, cert.IssueDate)), "", 1, "C", false, 0, "")
	doc.SetX(blockX)
	doc.CellFormat(0, 6, tr("Kepala Sekolah,"), "", 1, "C", false, 0, "")

	signed := false
	if cert.UseDigitalSignature {
		if path, ok := r.usableImage(cert.SignatureImagePath); ok {
			x := blockX + (190-blockX-40)/2
			doc.ImageOptions(path, x, doc.GetY()+2, 40, 0, false, gofpdf.ImageOptions{ReadDpi: true}, 0, "")
			doc.Ln(26)
			signed = true
		}
	}
	if !signed {
		// Blank signing space for a wet-ink signature.
		doc.Ln(24)
	}

	doc.SetFont("Times", "BU", 11)
	doc.SetX(blockX)
	doc.CellFormat(0, 6, tr(cert.HeadmasterName), "", 1, "C", false, 0, "")
	if cert.HeadmasterNIP != "" {
		doc.SetFont("Times", "", 11)
		doc.SetX(blockX)
		doc.CellFormat(0, 6, tr("NIP. "+cert.HeadmasterNIP), "", 1, "C", false, 0, "")
	}
}

// usableImage resolves the path and verifies gofpdf can actually consume
// the file, using a scratch document so a broken asset never poisons the
// real one.
func (r *CertificateRenderer) usableImage(path string) (string, bool) {
	if path == "" {
		return "", false
	}
	if !filepath.IsAbs(path) && r.assetsDir != "" {
		path = filepath.Join(r.assetsDir, path)
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".gif":
	default:
		return "", false
	}

	scratch := gofpdf.New("P", "mm", "A4", "")
	scratch.AddPage()
	scratch.RegisterImageOptions(path, gofpdf.ImageOptions{ReadDpi: true})
	if !scratch.Ok() {
		return "", false
	}
	return path, true
}

func joinPlaceDate(place, date string) string {
	if place == "" {
		return date
	}
	if date == "" {
		return place
	}
	return place + ", " + date
}

func formatGrade(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
