package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// LegalType is the top level of the legal taxonomy
type LegalType string

const (
	LegalTypeCivil      LegalType = "Civil"
	LegalTypeCriminal   LegalType = "Criminal"
	LegalTypeCommercial LegalType = "Commercial"
	LegalTypeFamily     LegalType = "Family"
	LegalTypeLabor      LegalType = "Labor"
)

// LegalTypes lists every stored type in display order
var LegalTypes = []LegalType{
	LegalTypeCivil,
	LegalTypeCriminal,
	LegalTypeCommercial,
	LegalTypeFamily,
	LegalTypeLabor,
}

// labelSuffixes are stripped from caller-facing labels such as "Civil cases"
var labelSuffixes = []string{" cases", " case", " law", " matters"}

// NormalizeLegalType translates a caller-facing label ("Civil cases",
// "criminal", "Labour law") into the stored enum value. The second return
// value is false when the label does not name a known type.
func NormalizeLegalType(label string) (LegalType, bool) {
	s := strings.ToLower(strings.TrimSpace(label))
	for _, suffix := range labelSuffixes {
		s = strings.TrimSuffix(s, suffix)
	}
	if s == "labour" {
		s = "labor"
	}
	for _, t := range LegalTypes {
		if strings.ToLower(string(t)) == s {
			return t, true
		}
	}
	return "", false
}

// StoredLegalType returns the enum value for label, or label itself when it
// is not a known type so that lookups simply match nothing.
func StoredLegalType(label string) LegalType {
	if t, ok := NormalizeLegalType(label); ok {
		return t
	}
	return LegalType(strings.TrimSpace(label))
}

// Article is a single numbered legal provision
type Article struct {
	ArticleNumber string `json:"article_number" bson:"article_number" yaml:"article_number"`
	Title         string `json:"title,omitempty" bson:"title,omitempty" yaml:"title"`
	Description   string `json:"description" bson:"description" yaml:"description"`
}

// Validate checks the required fields of an article
func (a Article) Validate() error {
	if strings.TrimSpace(a.ArticleNumber) == "" {
		return fmt.Errorf("article_number is required")
	}
	if strings.TrimSpace(a.Description) == "" {
		return fmt.Errorf("description is required for article %s", a.ArticleNumber)
	}
	return nil
}

// LegalArticle groups the articles filed under one (type, subclass) pair
type LegalArticle struct {
	ID        uuid.UUID `json:"id" bson:"_id"`
	Type      LegalType `json:"type" bson:"type"`
	Subclass  string    `json:"subclass" bson:"subclass"`
	Articles  []Article `json:"articles" bson:"articles"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// DuplicateArticleNumbers returns the article numbers of incoming that
// already exist in existing or repeat inside incoming, in incoming order.
func DuplicateArticleNumbers(existing, incoming []Article) []string {
	seen := make(map[string]bool, len(existing)+len(incoming))
	for _, a := range existing {
		seen[a.ArticleNumber] = true
	}
	var dups []string
	for _, a := range incoming {
		if seen[a.ArticleNumber] {
			dups = append(dups, a.ArticleNumber)
			continue
		}
		seen[a.ArticleNumber] = true
	}
	return dups
}

// Category is a distinct (type, subclass) pair present in the article store
type Category struct {
	Type         LegalType `json:"type" bson:"type"`
	Subclass     string    `json:"subclass" bson:"subclass"`
	ArticleCount int       `json:"article_count" bson:"article_count"`
}
