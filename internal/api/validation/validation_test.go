package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		valid bool
	}{
		{"valid_simple", "agent@example.com", true},
		{"valid_subdomain", "agent@mail.example.fr", true},
		{"valid_plus", "agent+deal@example.com", true},
		{"valid_dot", "jean.dupont@example.com", true},
		{"invalid_no_at", "agentexample.com", false},
		{"invalid_no_domain", "agent@", false},
		{"invalid_no_user", "@example.com", false},
		{"invalid_double_at", "agent@@example.com", false},
		{"invalid_spaces", "agent @example.com", false},
		{"invalid_no_tld", "agent@example", false},
		{"too_long", strings.Repeat("a", 250) + "@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidEmail(tt.email), "Email: %s", tt.email)
		})
	}
}

func TestIsValidHexColor(t *testing.T) {
	tests := []struct {
		color string
		valid bool
	}{
		{"#1a1a2e", true},
		{"#FFFFFF", true},
		{"1a1a2e", false},
		{"#fff", false},
		{"#1a1a2g", false},
		{"#1a1a2e00", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.color, func(t *testing.T) {
			assert.Equal(t, tt.valid, IsValidHexColor(tt.color))
		})
	}
}

func TestIsValidURL(t *testing.T) {
	assert.True(t, IsValidURL("https://cdn.example.com/logo.png"))
	assert.True(t, IsValidURL("http://localhost:3000/photo.jpg"))
	assert.False(t, IsValidURL("ftp://example.com/file"))
	assert.False(t, IsValidURL("/relative/path.png"))
	assert.False(t, IsValidURL("javascript:alert(1)"))
}

func strPtr(s string) *string { return &s }

func TestErrors(t *testing.T) {
	tests := []struct {
		name  string
		check func(Errors)
		want  map[string]string
	}{
		{"required blank", func(e Errors) { e.Required("title", "  ", "Title is required") }, map[string]string{"title": "Title is required"}},
		{"required present", func(e Errors) { e.Required("title", "Offer", "Title is required") }, map[string]string{}},
		{"not blank nil", func(e Errors) { e.NotBlank("name", nil, "Name cannot be empty") }, map[string]string{}},
		{"not blank empty", func(e Errors) { e.NotBlank("name", strPtr(""), "Name cannot be empty") }, map[string]string{"name": "Name cannot be empty"}},
		{"email missing", func(e Errors) { e.Email("email", "", "Email is required") }, map[string]string{"email": "Email is required"}},
		{"email malformed", func(e Errors) { e.Email("email", "nope", "Email is required") }, map[string]string{"email": "Invalid email format"}},
		{"optional email", func(e Errors) { e.OptionalEmail("clientEmail", strPtr(" buyer@example.com ")) }, map[string]string{}},
		{"max len in runes", func(e Errors) { e.MaxLen("phone", strPtr("ééé"), 3) }, map[string]string{}},
		{"max len exceeded", func(e Errors) { e.MaxLen("phone", strPtr("1234"), 3) }, map[string]string{"phone": "Too long"}},
		{"url cleared", func(e Errors) { e.OptionalURL("logoUrl", strPtr("")) }, map[string]string{}},
		{"url scheme", func(e Errors) { e.OptionalURL("logoUrl", strPtr("ftp://x")) }, map[string]string{"logoUrl": "Must be an http or https URL"}},
		{"color", func(e Errors) { e.OptionalColor("brandColor", strPtr("red")) }, map[string]string{"brandColor": "Brand color must be in #RRGGBB format"}},
		{"uuid", func(e Errors) { e.UUID("agentId", "42", "Invalid agent ID") }, map[string]string{"agentId": "Invalid agent ID"}},
		{"optional uuid empty", func(e Errors) { e.OptionalUUID("templateId", strPtr(""), "Invalid template ID") }, map[string]string{}},
		{"link map", func(e Errors) {
			e.LinkMap("socialLinks", map[string]interface{}{"ok": "https://x.example", "bad": "javascript:alert(1)", "num": 3})
		}, map[string]string{"socialLinks.bad": "Must be an http or https URL", "socialLinks.num": "Must be an http or https URL"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New()
			tt.check(e)
			assert.Equal(t, tt.want, map[string]string(e))
		})
	}
}

func TestErrors_FirstMessageWins(t *testing.T) {
	e := New()
	e.NotBlank("fullName", strPtr(" "), "Full name cannot be empty")
	e.MaxLen("fullName", strPtr(" "), 0)
	assert.Equal(t, "Full name cannot be empty", e["fullName"])
}
