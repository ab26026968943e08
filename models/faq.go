package models

import (
	"time"

	"github.com/google/uuid"
)

// FAQ is a frequently asked question shown on the help pages
type FAQ struct {
	ID        uuid.UUID `json:"id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Category  string    `json:"category,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
