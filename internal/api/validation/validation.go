// Package validation checks request fields and collects per-field messages
// for the "Validation failed" error body.
package validation

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

	// Brand colors are stored as #RRGGBB.
	hexColorRegex = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
)

const (
	msgInvalidEmail = "Invalid email format"
	msgInvalidURL   = "Must be an http or https URL"
	msgInvalidColor = "Brand color must be in #RRGGBB format"
	msgTooLong      = "Too long"
)

func IsValidEmail(email string) bool {
	if len(email) > 254 {
		return false
	}
	return emailRegex.MatchString(email)
}

func IsValidHexColor(color string) bool {
	return hexColorRegex.MatchString(color)
}

// IsValidURL accepts absolute http and https URLs with a host.
func IsValidURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Errors maps a JSON field name to its message. The first message recorded
// for a field wins.
type Errors map[string]string

func New() Errors {
	return make(Errors)
}

func (e Errors) Add(field, msg string) {
	if _, ok := e[field]; !ok {
		e[field] = msg
	}
}

// Required rejects a blank value.
func (e Errors) Required(field, value, msg string) {
	if strings.TrimSpace(value) == "" {
		e.Add(field, msg)
	}
}

// NotBlank rejects a present but blank optional value.
func (e Errors) NotBlank(field string, value *string, msg string) {
	if value != nil && strings.TrimSpace(*value) == "" {
		e.Add(field, msg)
	}
}

// Email requires an address in a valid format. value should already be
// normalized.
func (e Errors) Email(field, value, missingMsg string) {
	switch {
	case value == "":
		e.Add(field, missingMsg)
	case !IsValidEmail(value):
		e.Add(field, msgInvalidEmail)
	}
}

// OptionalEmail checks the format of a present address.
func (e Errors) OptionalEmail(field string, value *string) {
	if value != nil && !IsValidEmail(strings.TrimSpace(*value)) {
		e.Add(field, msgInvalidEmail)
	}
}

func (e Errors) MaxLen(field string, value *string, max int) {
	if value != nil && utf8.RuneCountInString(*value) > max {
		e.Add(field, msgTooLong)
	}
}

// OptionalURL accepts nil and the empty string, which clears the field.
func (e Errors) OptionalURL(field string, value *string) {
	if value != nil && *value != "" && !IsValidURL(*value) {
		e.Add(field, msgInvalidURL)
	}
}

func (e Errors) OptionalColor(field string, value *string) {
	if value != nil && !IsValidHexColor(*value) {
		e.Add(field, msgInvalidColor)
	}
}

// UUID requires a parseable id.
func (e Errors) UUID(field, value, msg string) {
	if _, err := uuid.Parse(value); err != nil {
		e.Add(field, msg)
	}
}

// OptionalUUID accepts nil and the empty string.
func (e Errors) OptionalUUID(field string, value *string, msg string) {
	if value != nil && *value != "" {
		e.UUID(field, *value, msg)
	}
}

// LinkMap checks that every value of a free-form link map is a URL string.
func (e Errors) LinkMap(field string, links map[string]interface{}) {
	for name, link := range links {
		s, ok := link.(string)
		if !ok || (s != "" && !IsValidURL(s)) {
			e.Add(field+"."+name, msgInvalidURL)
		}
	}
}
