package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDateOnly(t *testing.T) {
	paris := time.FixedZone("CET", 3600)

	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{"utc afternoon", time.Date(2026, 5, 4, 15, 30, 0, 0, time.UTC), time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)},
		{"already midnight", time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC), time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)},
		{"offset crosses midnight", time.Date(2026, 5, 4, 0, 30, 0, 0, paris), time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(DateOnly(tt.in)))
			assert.Equal(t, time.UTC, DateOnly(tt.in).Location())
		})
	}
}

func TestBase_BeforeCreate(t *testing.T) {
	var b Base
	require.NoError(t, b.BeforeCreate(nil))
	assert.NotEqual(t, uuid.Nil, b.ID)

	fixed := uuid.MustParse("00000000-0000-4000-8000-000000000001")
	b = Base{ID: fixed}
	require.NoError(t, b.BeforeCreate(nil))
	assert.Equal(t, fixed, b.ID)
}
