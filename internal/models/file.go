package models

import "time"

// File is the metadata row for an uploaded object.
type File struct {
	ID               string    `db:"id" json:"id"`
	Filename         string    `db:"filename" json:"filename"`
	OriginalFilename string    `db:"original_filename" json:"original_filename"`
	StoragePath      string    `db:"storage_path" json:"storage_path"`
	FileSize         int64     `db:"file_size" json:"file_size"`
	FileType         string    `db:"file_type" json:"file_type"`
	UploadedBy       string    `db:"uploaded_by" json:"uploaded_by"`
	Description      string    `db:"description" json:"description"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// FileFilter captures list criteria for files.
type FileFilter struct {
	Search   string
	FileType string
	DateFrom *time.Time
	DateTo   *time.Time
	Page     int
	PageSize int
}

// AccessType classifies a file interaction.
type AccessType string

const (
	AccessView     AccessType = "view"
	AccessDownload AccessType = "download"
	AccessPreview  AccessType = "preview"
)

// Valid reports whether a is a known access type.
func (a AccessType) Valid() bool {
	switch a {
	case AccessView, AccessDownload, AccessPreview:
		return true
	}
	return false
}

// FileAccessLog is an append-only record of a file interaction.
type FileAccessLog struct {
	ID         string     `db:"id" json:"id"`
	FileID     string     `db:"file_id" json:"file_id"`
	UserID     string     `db:"user_id" json:"user_id"`
	AccessType AccessType `db:"access_type" json:"access_type"`
	AccessedAt time.Time  `db:"accessed_at" json:"accessed_at"`
}

// FileAccessStats aggregates access log rows per type for one file.
type FileAccessStats struct {
	FileID         string     `db:"file_id" json:"file_id"`
	Views          int        `db:"views" json:"views"`
	Downloads      int        `db:"downloads" json:"downloads"`
	Previews       int        `db:"previews" json:"previews"`
	LastAccessedAt *time.Time `db:"last_accessed_at" json:"last_accessed_at,omitempty"`
}

// Total returns the number of recorded interactions.
func (s FileAccessStats) Total() int { return s.Views + s.Downloads + s.Previews }

// FileAccessReportRow is one line of the admin file access report.
type FileAccessReportRow struct {
	FileID           string     `db:"file_id"`
	OriginalFilename string     `db:"original_filename"`
	UploaderEmail    string     `db:"uploader_email"`
	Views            int        `db:"views"`
	Downloads        int        `db:"downloads"`
	Previews         int        `db:"previews"`
	LastAccessedAt   *time.Time `db:"last_accessed_at"`
}

// SignedFileURL is a time-boxed link to file content.
type SignedFileURL struct {
	FileID    string    `json:"file_id"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}
