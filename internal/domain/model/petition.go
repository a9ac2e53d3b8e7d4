package model

import (
	"slices"
	"strings"
	"unicode/utf8"
)

const (
	minPetitionTitleLen       = 5
	minPetitionDescriptionLen = 20
)

// PetitionCategories are the legal areas offered on the submission form.
var PetitionCategories = []string{
	"civil",
	"trabalhista",
	"penal",
	"consumidor",
	"familia",
	"tributario",
	"administrativo",
	"outros",
}

// SubmitPetitionRequest is the user's free-text petition.
type SubmitPetitionRequest struct {
	Title       string `json:"title"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

// Validate normalizes and validates SubmitPetitionRequest.
func (r *SubmitPetitionRequest) Validate() error {
	r.Title = strings.TrimSpace(r.Title)
	r.Category = strings.ToLower(strings.TrimSpace(r.Category))
	r.Description = strings.TrimSpace(r.Description)

	if r.Title == "" {
		return fieldErr("title", "title is required")
	}
	if utf8.RuneCountInString(r.Title) < minPetitionTitleLen {
		return fieldErr("title", "title must have at least 5 characters")
	}
	if r.Category == "" {
		return fieldErr("category", "category is required")
	}
	if !slices.Contains(PetitionCategories, r.Category) {
		return fieldErr("category", "invalid category")
	}
	if r.Description == "" {
		return fieldErr("description", "description is required")
	}
	if utf8.RuneCountInString(r.Description) < minPetitionDescriptionLen {
		return fieldErr("description", "description must have at least 20 characters")
	}
	return nil
}

// Text renders the petition as the case's original text.
func (r SubmitPetitionRequest) Text() string {
	return r.Title + "\n\nCategoria: " + r.Category + "\n\n" + r.Description
}
