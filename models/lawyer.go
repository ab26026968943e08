package models

import (
	"time"

	"github.com/google/uuid"
)

// Lawyer represents a lawyer profile available for matching and booking
type Lawyer struct {
	ID                uuid.UUID  `json:"id"`
	UserID            *uuid.UUID `json:"user_id,omitempty"`
	Name              string     `json:"name"`
	Email             string     `json:"email"`
	Specialization    LegalType  `json:"specialization"`
	Languages         []string   `json:"languages"`
	YearsOfExperience int        `json:"years_of_experience"`
	Rating            float64    `json:"rating"`
	HourlyRate        float64    `json:"hourly_rate"`
	Bio               string     `json:"bio,omitempty"`
	Active            bool       `json:"active"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// RankedLawyer is a lawyer placed by the matching flow
type RankedLawyer struct {
	Lawyer *Lawyer `json:"lawyer"`
	Score  int     `json:"score"`
	Reason string  `json:"reason,omitempty"`
}
