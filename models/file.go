package models

import (
	"time"

	"github.com/google/uuid"
)

// File represents an uploaded source document, such as a statute text
// submitted for article extraction
type File struct {
	ID          uuid.UUID  `json:"id"`
	UploadedBy  *uuid.UUID `json:"uploaded_by,omitempty"`
	Filename    string     `json:"filename"`
	MimeType    string     `json:"mime_type"`
	Size        int64      `json:"size"`
	StoragePath string     `json:"storage_path"`
	CreatedAt   time.Time  `json:"created_at"`
}
