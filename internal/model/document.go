package model

import (
	"encoding/json"
	"time"
)

// Document lifecycle statuses. Only the ingestion pipeline moves a
// document between them; chat operations never mutate a document.
const (
	DocumentStatusPending    = "PENDING"
	DocumentStatusProcessing = "PROCESSING"
	DocumentStatusCompleted  = "COMPLETED"
	DocumentStatusFailed     = "FAILED"
)

type Document struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	CourseID        uint      `gorm:"not null;index" json:"course_id"`
	UserID          uint      `gorm:"not null;index" json:"user_id"`
	Filename        string    `gorm:"size:256;not null" json:"filename"`
	MimeType        string    `gorm:"size:128;not null" json:"mime_type"`
	SizeBytes       int64     `gorm:"not null" json:"size_bytes"`
	StorageLocation string    `gorm:"size:512;not null" json:"-"`
	Status          string    `gorm:"size:16;not null;index" json:"status"`
	ExtractedText   string    `gorm:"type:longtext" json:"extracted_text,omitempty"`
	Metadata        string    `gorm:"type:text" json:"-"` // JSON object
	ErrorMessage    string    `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// MetadataMap returns the parsed metadata object; empty map on parse error.
func (d *Document) MetadataMap() map[string]any {
	m := map[string]any{}
	if d.Metadata != "" {
		_ = json.Unmarshal([]byte(d.Metadata), &m)
	}
	return m
}

// SetMetadata stores the metadata object as JSON.
func (d *Document) SetMetadata(m map[string]any) {
	if len(m) == 0 {
		d.Metadata = "{}"
		return
	}
	b, _ := json.Marshal(m)
	d.Metadata = string(b)
}
