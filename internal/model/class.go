package model

import (
	"fmt"
	"strings"
)

// ClassRecord is one recognized category with its reference embedding.
type ClassRecord struct {
	ID        int64     `json:"classId"`
	Label     string    `json:"label"`
	Embedding []float64 `json:"-"`
}

// ClassFilter selects classes by label, id, or both.
type ClassFilter struct {
	Label *string
	ID    *int64
}

// ByLabel returns a filter matching label.
func ByLabel(label string) ClassFilter {
	return ClassFilter{Label: &label}
}

// ByID returns a filter matching id.
func ByID(id int64) ClassFilter {
	return ClassFilter{ID: &id}
}

// IsEmpty reports whether the filter has no criteria.
func (f ClassFilter) IsEmpty() bool {
	return f.Label == nil && f.ID == nil
}

func (f ClassFilter) String() string {
	var parts []string
	if f.Label != nil {
		parts = append(parts, fmt.Sprintf("label=%q", *f.Label))
	}
	if f.ID != nil {
		parts = append(parts, fmt.Sprintf("id=%d", *f.ID))
	}
	return strings.Join(parts, " ")
}
