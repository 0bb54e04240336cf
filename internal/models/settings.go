package models

import "time"

// Settings is the singleton configuration record driving certificate
// rendering. Stored as a single row with id = 1.
type Settings struct {
	ID                  int64     `db:"id" json:"id"`
	SchoolName          string    `db:"school_name" json:"school_name"`
	SchoolAddress       string    `db:"school_address" json:"school_address"`
	HeadmasterName      string    `db:"headmaster_name" json:"headmaster_name"`
	HeadmasterNIP       string    `db:"headmaster_nip" json:"headmaster_nip"`
	City                string    `db:"city" json:"city"`
	CertificateTitle    string    `db:"certificate_title" json:"certificate_title"`
	OpeningText         string    `db:"opening_text" json:"opening_text"`
	ClosingText         string    `db:"closing_text" json:"closing_text"`
	UseHeaderImage      bool      `db:"use_header_image" json:"use_header_image"`
	HeaderImagePath     string    `db:"header_image_path" json:"header_image_path"`
	UseDigitalSignature bool      `db:"use_digital_signature" json:"use_digital_signature"`
	SignatureImagePath  string    `db:"signature_image_path" json:"signature_image_path"`
	UpdatedBy           *int64    `db:"updated_by" json:"updated_by,omitempty"`
	UpdatedAt           time.Time `db:"updated_at" json:"updated_at"`
}
