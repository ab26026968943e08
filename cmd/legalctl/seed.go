package main

import (
	"bytes"
	"fmt"

	"legalmatch-backend/models"
	"legalmatch-backend/service"

	"gopkg.in/yaml.v3"
)

// SeedFile is the layout of a legalctl seed file
type SeedFile struct {
	Sources []SeedSource `yaml:"sources"`
	Lawyers []SeedLawyer `yaml:"lawyers"`
	FAQs    []SeedFAQ    `yaml:"faqs"`
}

// SeedSource is the article list of one (type, subclass) pair
type SeedSource struct {
	Type     string           `yaml:"type"`
	Subclass string           `yaml:"subclass"`
	Articles []models.Article `yaml:"articles"`
}

type SeedLawyer struct {
	Name              string   `yaml:"name"`
	Email             string   `yaml:"email"`
	Specialization    string   `yaml:"specialization"`
	Languages         []string `yaml:"languages"`
	YearsOfExperience int      `yaml:"years_of_experience"`
	Rating            float64  `yaml:"rating"`
	HourlyRate        float64  `yaml:"hourly_rate"`
	Bio               string   `yaml:"bio"`
}

type SeedFAQ struct {
	Question string `yaml:"question"`
	Answer   string `yaml:"answer"`
	Category string `yaml:"category"`
}

func (s SeedSource) request() service.InsertArticlesRequest {
	return service.InsertArticlesRequest{Type: s.Type, Subclass: s.Subclass, Articles: s.Articles}
}

func (l SeedLawyer) input() service.LawyerInput {
	return service.LawyerInput{
		Name:              l.Name,
		Email:             l.Email,
		Specialization:    l.Specialization,
		Languages:         l.Languages,
		YearsOfExperience: l.YearsOfExperience,
		Rating:            l.Rating,
		HourlyRate:        l.HourlyRate,
		Bio:               l.Bio,
	}
}

// parseSeedFile decodes a seed file and checks it before anything is
// written, so a typo does not leave a half seeded database
func parseSeedFile(data []byte) (*SeedFile, error) {
	var seed SeedFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}

	for i, src := range seed.Sources {
		if _, err := src.request().Validate(); err != nil {
			return nil, fmt.Errorf("sources[%d]: %w", i, err)
		}
	}
	for i, l := range seed.Lawyers {
		if _, ok := models.NormalizeLegalType(l.Specialization); !ok {
			return nil, fmt.Errorf("lawyers[%d]: unknown specialization %q", i, l.Specialization)
		}
	}
	if len(seed.Sources)+len(seed.Lawyers)+len(seed.FAQs) == 0 {
		return nil, fmt.Errorf("seed file is empty")
	}
	return &seed, nil
}
