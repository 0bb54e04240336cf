package dto

import "time"

// ExportStatus tracks the lifecycle of a batch certificate export.
type ExportStatus string

const (
	ExportStatusQueued    ExportStatus = "QUEUED"
	ExportStatusRunning   ExportStatus = "RUNNING"
	ExportStatusCompleted ExportStatus = "COMPLETED"
	ExportStatusFailed    ExportStatus = "FAILED"
)

// CreateExportRequest triggers a batch certificate export.
type CreateExportRequest struct {
	ShowGrades bool `json:"show_grades"`
}

// ExportJobView describes an export job to API consumers.
type ExportJobView struct {
	ID          string       `json:"id"`
	Status      ExportStatus `json:"status"`
	ShowGrades  bool         `json:"show_grades"`
	Total       int          `json:"total"`
	Completed   int          `json:"completed"`
	DownloadURL string       `json:"download_url,omitempty"`
	ExpiresAt   *time.Time   `json:"expires_at,omitempty"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}
