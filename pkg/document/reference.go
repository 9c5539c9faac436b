package document

import (
	"errors"
	"fmt"
	"path"
	"strings"
)

// Category groups stored documents by the role they play in grading.
type Category string

const (
	CategoryAssignment Category = "assignment"
	CategoryRubric     Category = "rubric"
	CategorySubmission Category = "submission"
)

// Folder returns the storage folder documents of this category live under.
func (c Category) Folder() string {
	return string(c) + "s"
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryAssignment, CategoryRubric, CategorySubmission:
		return true
	default:
		return false
	}
}

// ErrInvalidReference indicates a reference that cannot be resolved by any store.
var ErrInvalidReference = errors.New("invalid document reference")

// Reference identifies a stored document. Stores decide where it physically lives.
type Reference struct {
	Category Category
	Name     string
}

// NewReference builds a reference for the given category and file name.
func NewReference(category Category, name string) Reference {
	return Reference{Category: category, Name: strings.TrimSpace(name)}
}

// Validate rejects unknown categories and names that would escape the category folder.
func (r Reference) Validate() error {
	if !r.Category.Valid() {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidReference, r.Category)
	}
	if r.Name == "" || r.Name == "." || r.Name == ".." || path.Base(r.Name) != r.Name || strings.Contains(r.Name, "\\") {
		return fmt.Errorf("%w: bad name %q", ErrInvalidReference, r.Name)
	}
	return nil
}

// Key is the category-relative location of the document, e.g. "rubrics/week1.pdf".
func (r Reference) Key() string {
	return r.Category.Folder() + "/" + r.Name
}

func (r Reference) String() string {
	return string(r.Category) + ":" + r.Name
}
