package shared

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"leavedesk/internal/transport/http/api"
)

type ValidationIssue struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// Validator collects field issues from query and path parameters. Body
// payloads go through ValidateStruct instead.
type Validator struct {
	issues []ValidationIssue
}

func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) Add(field, reason string) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return
	}
	v.issues = append(v.issues, ValidationIssue{Field: strings.TrimSpace(field), Reason: reason})
}

// Enum accepts an empty value or one of allowed, case-insensitively.
func (v *Validator) Enum(field, value string, allowed []string, reason string) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return
	}
	for _, candidate := range allowed {
		if value == strings.ToLower(candidate) {
			return
		}
	}
	v.Add(field, reason)
}

func (v *Validator) Date(field, raw string) (time.Time, bool) {
	parsed, err := ParseDate(strings.TrimSpace(raw))
	if err != nil || parsed.IsZero() {
		v.Add(field, "must be a valid date in YYYY-MM-DD format")
		return time.Time{}, false
	}
	return parsed, true
}

func (v *Validator) DateOrder(startField string, start time.Time, endField string, end time.Time) {
	if start.IsZero() || end.IsZero() || !end.Before(start) {
		return
	}
	v.Add(startField, "must be on or before "+endField)
	v.Add(endField, "must be on or after "+startField)
}

// Year parses raw as a calendar year, returning fallback when raw is empty.
func (v *Validator) Year(field, raw string, fallback int) int {
	if strings.TrimSpace(raw) == "" {
		return fallback
	}
	year, err := ParseYear(raw, time.Time{})
	if err != nil {
		v.Add(field, err.Error())
	}
	return year
}

func (v *Validator) Month(field, raw string) int {
	month, err := ParseMonth(raw)
	if err != nil {
		v.Add(field, err.Error())
	}
	return month
}

// ID requires raw to be a UUID.
func (v *Validator) ID(field, raw string) string {
	raw = strings.TrimSpace(raw)
	if _, err := uuid.Parse(raw); err != nil {
		v.Add(field, "must be a valid id")
		return ""
	}
	return raw
}

// Issues returns the collected issues ordered by field.
func (v *Validator) Issues() []ValidationIssue {
	if len(v.issues) == 0 {
		return nil
	}
	out := append([]ValidationIssue(nil), v.issues...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

// Reject writes a validation error and returns true when issues were found.
func (v *Validator) Reject(w http.ResponseWriter, requestID string) bool {
	issues := v.Issues()
	if issues == nil {
		return false
	}
	FailValidation(w, requestID, issues)
	return true
}

func FailValidation(w http.ResponseWriter, requestID string, issues []ValidationIssue) {
	api.FailWithDetails(w, http.StatusBadRequest, "validation_error", "payload validation failed", map[string]any{"fields": issues}, requestID)
}
