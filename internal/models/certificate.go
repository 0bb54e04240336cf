package models

// CertificateOptions controls certificate assembly per request.
type CertificateOptions struct {
	ShowGrades bool
}

// CertificateGrade is a single grade line on the certificate.
type CertificateGrade struct {
	SubjectName string  `json:"subject_name"`
	Value       float64 `json:"value"`
}

// CertificateData is the render-ready document model joining the student,
// the grade rows and the school settings. It is assembled fresh per
// request and never persisted.
type CertificateData struct {
	CertNumber string `json:"cert_number"`
	IssueDate  string `json:"issue_date"`

	StudentName string `json:"student_name"`
	NISN        string `json:"nisn"`
	NIS         string `json:"nis"`
	BirthPlace  string `json:"birth_place"`
	BirthDate   string `json:"birth_date"`
	ParentName  string `json:"parent_name"`
	ClassName   string `json:"class_name"`

	SchoolName          string `json:"school_name"`
	SchoolAddress       string `json:"school_address"`
	HeadmasterName      string `json:"headmaster_name"`
	HeadmasterNIP       string `json:"headmaster_nip"`
	City                string `json:"city"`
	Title               string `json:"title"`
	OpeningText         string `json:"opening_text"`
	ClosingText         string `json:"closing_text"`
	UseHeaderImage      bool   `json:"use_header_image"`
	HeaderImagePath     string `json:"header_image_path"`
	UseDigitalSignature bool   `json:"use_digital_signature"`
	SignatureImagePath  string `json:"signature_image_path"`

	ShowGrades   bool               `json:"show_grades"`
	Grades       []CertificateGrade `json:"grades,omitempty"`
	AverageGrade float64            `json:"average_grade,omitempty"`
}
